package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/athenakit/athenakit/internal/lifecycle"
	"github.com/athenakit/athenakit/internal/sqltext"
	"github.com/athenakit/athenakit/internal/storage"
	"github.com/athenakit/athenakit/internal/table"
)

const (
	DefaultTablePrefix = "tmp_"
	DefaultPageSize    = lifecycle.MaxPageSize
)

var DefaultDateFields = []string{"date", "event_date", "report_date"}

// Lifecycle is the execution side of the client. *lifecycle.Controller
// implements it.
type Lifecycle interface {
	Submit(ctx context.Context, statement, database string) (string, error)
	AwaitCompletion(ctx context.Context, id string) (lifecycle.ExecutionReport, error)
	Cancel(ctx context.Context, id string) error
	CreateTableFromQuery(ctx context.Context, query, name string, overwrite bool) (lifecycle.TableRef, error)
	Results(ctx context.Context, id string, pageSize int) iter.Seq2[lifecycle.RowPage, error]
}

// TableFetcher materializes the objects under a location. *fetch.Fetcher
// implements it.
type TableFetcher interface {
	FetchTable(ctx context.Context, location storage.Location, concurrency int) (*table.Table, error)
}

// NameFunc generates a table name with the given prefix.
type NameFunc func(prefix string) string

// Athena runs queries and turns their results into tables.
type Athena struct {
	Lifecycle   Lifecycle
	Fetcher     TableFetcher
	Database    string
	Concurrency int
	PageSize    int
	TablePrefix string
	DateFields  []string
	Names       NameFunc
	Logger      *slog.Logger
}

type QueryOptions struct {
	Params sqltext.Params
	// DateFields overrides the client's timestamp columns when non-nil.
	DateFields []string
	// Concurrency overrides the client's fetch concurrency when non-zero.
	Concurrency int
}

type CreateOptions struct {
	Params    sqltext.Params
	Name      string
	Prefix    string
	Overwrite bool
}

type StatementOptions struct {
	Database string
	Params   sqltext.Params
	PageSize int
}

// withDefaults returns a copy of a with unset fields filled in, leaving the
// shared client untouched.
func (a *Athena) withDefaults() *Athena {
	resolved := *a
	if resolved.Concurrency == 0 {
		resolved.Concurrency = 1
	}
	if resolved.TablePrefix == "" {
		resolved.TablePrefix = DefaultTablePrefix
	}
	if resolved.DateFields == nil {
		resolved.DateFields = DefaultDateFields
	}
	if resolved.Names == nil {
		resolved.Names = RandomName
	}
	if resolved.PageSize <= 0 {
		resolved.PageSize = DefaultPageSize
	}
	return &resolved
}

// Query materializes source into a temporary table and reads it back.
// Configured date columns that are present are parsed into timestamps.
func (a *Athena) Query(ctx context.Context, source sqltext.Source, opts QueryOptions) (*table.Table, error) {
	a = a.withDefaults()
	ref, err := a.CreateTable(ctx, source, CreateOptions{Params: opts.Params})
	if err != nil {
		return nil, err
	}

	concurrency := a.Concurrency
	if opts.Concurrency != 0 {
		concurrency = opts.Concurrency
	}
	result, err := a.Fetcher.FetchTable(ctx, ref.Location, concurrency)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref.Name, err)
	}

	dateFields := a.DateFields
	if opts.DateFields != nil {
		dateFields = opts.DateFields
	}
	if err := table.ParseTimestamps(result, dateFields...); err != nil {
		return nil, err
	}
	if a.Logger != nil {
		a.Logger.InfoContext(ctx, "query materialized",
			slog.String("table", ref.Name),
			slog.Int("rows", result.NumRows()),
			slog.Int("columns", len(result.Columns)),
		)
	}
	return result, nil
}

// CreateTable materializes source as a table and returns its name and data
// location. Without an explicit name one is generated from the prefix.
func (a *Athena) CreateTable(ctx context.Context, source sqltext.Source, opts CreateOptions) (lifecycle.TableRef, error) {
	a = a.withDefaults()
	query, err := sqltext.Load(source, opts.Params)
	if err != nil {
		return lifecycle.TableRef{}, err
	}
	name := opts.Name
	if name == "" {
		prefix := opts.Prefix
		if prefix == "" {
			prefix = a.TablePrefix
		}
		name = a.Names(prefix)
	}
	if err := storage.ValidateTableName(name); err != nil {
		return lifecycle.TableRef{}, err
	}
	return a.Lifecycle.CreateTableFromQuery(ctx, query, name, opts.Overwrite)
}

// ExecuteStatement runs a statement that is not materialized, such as DDL or
// SHOW, and returns its result pages once it succeeded.
func (a *Athena) ExecuteStatement(ctx context.Context, source sqltext.Source, opts StatementOptions) (iter.Seq2[lifecycle.RowPage, error], error) {
	a = a.withDefaults()
	statement, err := sqltext.Load(source, opts.Params)
	if err != nil {
		return nil, err
	}
	database := opts.Database
	if database == "" {
		database = a.Database
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = a.PageSize
	}

	id, err := a.Lifecycle.Submit(ctx, statement, database)
	if err != nil {
		return nil, err
	}
	report, err := a.Lifecycle.AwaitCompletion(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.Interrupted {
		return nil, lifecycle.ErrInterrupted
	}
	return a.Lifecycle.Results(ctx, id, pageSize), nil
}

func (a *Athena) CancelQuery(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("execution id is required")
	}
	return a.Lifecycle.Cancel(ctx, id)
}

// RandomName returns prefix followed by a random UUID with underscores.
func RandomName(prefix string) string {
	return prefix + underscored(uuid.New())
}

// SeededNames returns a generator whose sequence of names depends only on
// seed.
func SeededNames(seed int64) NameFunc {
	var mu sync.Mutex
	source := rand.New(rand.NewSource(seed))
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		id, err := uuid.NewRandomFromReader(source)
		if err != nil {
			panic(fmt.Sprintf("seeded uuid: %v", err))
		}
		return prefix + underscored(id)
	}
}

func underscored(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "_")
}
