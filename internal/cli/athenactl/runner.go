package athenactl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/athenakit/athenakit/internal/client"
	"github.com/athenakit/athenakit/internal/fetch"
	"github.com/athenakit/athenakit/internal/lifecycle"
	"github.com/athenakit/athenakit/internal/localsql"
	"github.com/athenakit/athenakit/internal/sqltext"
	"github.com/athenakit/athenakit/internal/table"
)

// Client is the query surface the commands use. *client.Athena implements it.
type Client interface {
	Query(ctx context.Context, source sqltext.Source, opts client.QueryOptions) (*table.Table, error)
	CreateTable(ctx context.Context, source sqltext.Source, opts client.CreateOptions) (lifecycle.TableRef, error)
	ExecuteStatement(ctx context.Context, source sqltext.Source, opts client.StatementOptions) (iter.Seq2[lifecycle.RowPage, error], error)
	CancelQuery(ctx context.Context, id string) error
}

type Options struct {
	Client Client
	Stdout io.Writer
	Stderr io.Writer
}

// localTableName is the table the query result is loaded as for -local-sql.
const localTableName = "result"

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	if len(args) < 1 {
		writeUsage(stderr)
		return 2
	}
	if defaults.Client == nil {
		_, _ = fmt.Fprintln(stderr, "athena client is not configured")
		return 1
	}

	command := strings.TrimSpace(args[0])
	switch command {
	case "query":
		return runQuery(ctx, defaults.Client, args[1:], stdout, stderr)
	case "create-table":
		return runCreateTable(ctx, defaults.Client, args[1:], stdout, stderr)
	case "exec":
		return runExec(ctx, defaults.Client, args[1:], stdout, stderr)
	case "cancel":
		return runCancel(ctx, defaults.Client, args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		writeUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

func runQuery(ctx context.Context, c Client, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	params := sqltext.Params{}
	bindParamFlags(fs, params)
	dateFields := fs.String("date-fields", "", "comma separated columns to parse as timestamps (default from config)")
	concurrency := fs.Int("concurrency", 0, "result objects decoded in parallel; -1 uses every CPU (default from config)")
	output := fs.String("output", "csv", "output format: csv or json")
	localSQL := fs.String("local-sql", "", "SQL run locally over the result, loaded as table \""+localTableName+"\"")

	source, ok := parseSource(fs, args, stderr)
	if !ok {
		return 2
	}
	if *output != "csv" && *output != "json" {
		_, _ = fmt.Fprintf(stderr, "invalid -output %q\n", *output)
		return 2
	}

	opts := client.QueryOptions{Params: params, Concurrency: *concurrency}
	if strings.TrimSpace(*dateFields) != "" {
		opts.DateFields = splitList(*dateFields)
	}
	result, err := c.Query(ctx, source, opts)
	if err != nil {
		return reportError(stderr, err)
	}
	if strings.TrimSpace(*localSQL) != "" {
		result, err = runLocalSQL(ctx, result, *localSQL)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "local sql failed: %v\n", err)
			return 1
		}
	}

	if *output == "json" {
		err = writeJSON(stdout, result)
	} else {
		err = writeCSV(stdout, result.ColumnNames(), result.Rows)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func runCreateTable(ctx context.Context, c Client, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("create-table", flag.ContinueOnError)
	fs.SetOutput(stderr)
	params := sqltext.Params{}
	bindParamFlags(fs, params)
	name := fs.String("name", "", "table name (default: generated)")
	prefix := fs.String("prefix", "", "prefix for generated table names (default from config)")
	overwrite := fs.Bool("overwrite", false, "drop the table and delete its data first")

	source, ok := parseSource(fs, args, stderr)
	if !ok {
		return 2
	}
	ref, err := c.CreateTable(ctx, source, client.CreateOptions{
		Params:    params,
		Name:      *name,
		Prefix:    *prefix,
		Overwrite: *overwrite,
	})
	if err != nil {
		return reportError(stderr, err)
	}
	_, _ = fmt.Fprintf(stdout, "%s\t%s\n", ref.Name, ref.Location.String())
	return 0
}

func runExec(ctx context.Context, c Client, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	fs.SetOutput(stderr)
	params := sqltext.Params{}
	bindParamFlags(fs, params)
	database := fs.String("database", "", "database the statement runs in (default from config)")
	pageSize := fs.Int("page-size", 0, "rows per result page, at most 1000 (default from config)")

	source, ok := parseSource(fs, args, stderr)
	if !ok {
		return 2
	}
	pages, err := c.ExecuteStatement(ctx, source, client.StatementOptions{
		Database: *database,
		Params:   params,
		PageSize: *pageSize,
	})
	if err != nil {
		return reportError(stderr, err)
	}

	writer := csv.NewWriter(stdout)
	header := false
	for page, err := range pages {
		if err != nil {
			return reportError(stderr, err)
		}
		if !header && len(page.Columns) > 0 {
			names := make([]string, len(page.Columns))
			for i, column := range page.Columns {
				names[i] = column.Name
			}
			if err := writer.Write(names); err != nil {
				_, _ = fmt.Fprintf(stderr, "write output: %v\n", err)
				return 1
			}
			header = true
		}
		for _, row := range page.Rows {
			if err := writer.Write(formatRow(row)); err != nil {
				_, _ = fmt.Fprintf(stderr, "write output: %v\n", err)
				return 1
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_, _ = fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func runCancel(ctx context.Context, c Client, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "usage: athenactl cancel <execution-id>")
		return 2
	}
	id := fs.Arg(0)
	if err := c.CancelQuery(ctx, id); err != nil {
		return reportError(stderr, err)
	}
	_, _ = fmt.Fprintf(stdout, "cancel requested for %s\n", id)
	return 0
}

// reportError prints err the way users expect to see execution outcomes and
// returns the exit code. A user interrupt is a clean exit.
func reportError(stderr io.Writer, err error) int {
	var (
		cancelled *lifecycle.QueryCancelledError
		failed    *lifecycle.QueryFailedError
		decodeErr *fetch.DecodeError
	)
	switch {
	case errors.Is(err, lifecycle.ErrInterrupted), errors.Is(err, context.Canceled):
		_, _ = fmt.Fprintln(stderr, lifecycle.ErrInterrupted.Error())
		return 0
	case errors.As(err, &cancelled):
		_, _ = fmt.Fprintln(stderr, cancelled.Error())
	case errors.As(err, &failed):
		_, _ = fmt.Fprintln(stderr, failed.Error())
	case errors.As(err, &decodeErr):
		_, _ = fmt.Fprintf(stderr, "decode error: %v\n", decodeErr.Err)
	default:
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return 1
}

func runLocalSQL(ctx context.Context, result *table.Table, sqlText string) (*table.Table, error) {
	engine, err := localsql.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = engine.Close() }()
	if err := engine.Load(ctx, localTableName, result); err != nil {
		return nil, err
	}
	return engine.Query(ctx, sqlText, 0)
}

func parseSource(fs *flag.FlagSet, args []string, stderr io.Writer) (sqltext.Source, bool) {
	if err := fs.Parse(args); err != nil {
		return sqltext.Source{}, false
	}
	if fs.NArg() < 1 {
		_, _ = fmt.Fprintf(stderr, "usage: athenactl %s [flags] <sql | @file>\n", fs.Name())
		return sqltext.Source{}, false
	}
	text := strings.Join(fs.Args(), " ")
	if path, ok := strings.CutPrefix(text, "@"); ok {
		return sqltext.File(path), true
	}
	return sqltext.Inline(text), true
}

func writeCSV(w io.Writer, columns []string, rows [][]any) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(formatRow(row)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(w io.Writer, t *table.Table) error {
	records := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for i, column := range t.Columns {
			if i < len(row) {
				record[column.Name] = row[i]
			}
		}
		records = append(records, record)
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

func formatRow(row []any) []string {
	out := make([]string, len(row))
	for i, value := range row {
		out[i] = formatValue(value)
	}
	return out
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: athenactl <command> [flags] <sql | @file>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  query          materialize a query and print the result")
	_, _ = fmt.Fprintln(w, "  create-table   materialize a query as a table and print its name and location")
	_, _ = fmt.Fprintln(w, "  exec           run a statement and print its result rows")
	_, _ = fmt.Fprintln(w, "  cancel         stop a running execution by id")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "parameters: -param k=v (quoted), -raw k=v (verbatim), -list k=a,b (quoted list)")
}
