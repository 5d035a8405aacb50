package athenactl

import (
	"flag"
	"fmt"
	"strings"

	"github.com/athenakit/athenakit/internal/sqltext"
)

type paramKind int

const (
	paramString paramKind = iota
	paramRaw
	paramList
)

// paramFlag collects repeated k=v flags into a shared Params map.
type paramFlag struct {
	params sqltext.Params
	kind   paramKind
}

func bindParamFlags(fs *flag.FlagSet, params sqltext.Params) {
	fs.Var(&paramFlag{params: params, kind: paramString}, "param", "query parameter substituted as a quoted string, k=v (repeatable)")
	fs.Var(&paramFlag{params: params, kind: paramRaw}, "raw", "query parameter substituted verbatim, k=v (repeatable)")
	fs.Var(&paramFlag{params: params, kind: paramList}, "list", "query parameter substituted as a quoted list, k=a,b (repeatable)")
}

func (p *paramFlag) String() string {
	return ""
}

func (p *paramFlag) Set(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", raw)
	}
	switch p.kind {
	case paramRaw:
		p.params[name] = sqltext.Raw(value)
	case paramList:
		p.params[name] = splitList(value)
	default:
		p.params[name] = value
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
