package sqltext

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Raw is substituted verbatim, without quoting.
type Raw string

// Params maps token names to substitution values.
type Params map[string]any

type sourceKind int

const (
	sourceInline sourceKind = iota
	sourceFile
)

// Source is query text given either inline or as a file reference.
type Source struct {
	kind  sourceKind
	value string
}

func Inline(text string) Source {
	return Source{kind: sourceInline, value: text}
}

func File(path string) Source {
	return Source{kind: sourceFile, value: path}
}

// IsFile reports whether the source refers to a file.
func (s Source) IsFile() bool {
	return s.kind == sourceFile
}

// Text resolves the source to query text.
func (s Source) Text() (string, error) {
	if s.kind == sourceInline {
		return s.value, nil
	}
	data, err := os.ReadFile(s.value)
	if err != nil {
		return "", fmt.Errorf("read query file %q: %w", s.value, err)
	}
	return string(data), nil
}

func (s Source) String() string {
	if s.kind == sourceFile {
		return "file:" + s.value
	}
	return s.value
}

// Load resolves the source and substitutes params into it.
func Load(source Source, params Params) (string, error) {
	text, err := source.Text()
	if err != nil {
		return "", err
	}
	return Infuse(text, params), nil
}

// Infuse replaces ${name} tokens with SQL literals built from params:
// strings become 'v', slices become 'a','b' and Raw values are inserted as is.
// Everything else is formatted with fmt. Tokens without a param are kept.
func Infuse(template string, params Params) string {
	if len(params) == 0 {
		return template
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := tokenPattern.FindStringSubmatch(token)[1]
		value, ok := params[name]
		if !ok {
			return token
		}
		return literal(value)
	})
}

func literal(value any) string {
	switch typed := value.(type) {
	case Raw:
		return string(typed)
	case string:
		return quote(typed)
	case []string:
		quoted := make([]string, len(typed))
		for i, item := range typed {
			quoted[i] = quote(item)
		}
		return strings.Join(quoted, ",")
	case []byte:
		return quote(string(typed))
	case nil:
		return "NULL"
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		quoted := make([]string, rv.Len())
		for i := range quoted {
			quoted[i] = quote(fmt.Sprint(rv.Index(i).Interface()))
		}
		return strings.Join(quoted, ",")
	}
	return fmt.Sprint(value)
}

func quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
