package lifecycle

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/athenakit/athenakit/internal/progress"
	"github.com/athenakit/athenakit/internal/storage"
)

func TestAwaitCompletionPollsUntilSucceeded(t *testing.T) {
	api := &fakeAPI{states: []types.QueryExecutionState{
		types.QueryExecutionStateQueued,
		types.QueryExecutionStateRunning,
		types.QueryExecutionStateRunning,
		types.QueryExecutionStateSucceeded,
	}}
	counter := &progress.Counter{}
	waits := 0
	controller := &Controller{
		API:      api,
		Config:   Config{PollInterval: time.Second},
		Progress: func() progress.Reporter { return counter },
		Wait: func(_ context.Context, d time.Duration) error {
			if d != time.Second {
				t.Fatalf("wait duration = %s", d)
			}
			waits++
			return nil
		},
	}

	report, err := controller.AwaitCompletion(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("AwaitCompletion() error = %v", err)
	}
	if report.State != StateSucceeded || report.Polls != 4 || report.Interrupted {
		t.Fatalf("report = %+v", report)
	}
	if api.statusCalls() != 4 || waits != 3 {
		t.Fatalf("status calls = %d, waits = %d", api.statusCalls(), waits)
	}
	if report.Statistics.EngineExecutionTime != 1500*time.Millisecond || report.Statistics.DataScannedBytes != 2048 {
		t.Fatalf("statistics = %+v", report.Statistics)
	}
	if counter.Ticks() != 3 {
		t.Fatalf("ticks = %d", counter.Ticks())
	}
	if calls, finalErr := counter.Finalized(); calls != 1 || finalErr != nil {
		t.Fatalf("Finalized() = %d, %v", calls, finalErr)
	}
}

func TestAwaitCompletionCancelledCarriesReason(t *testing.T) {
	api := &fakeAPI{
		states: []types.QueryExecutionState{types.QueryExecutionStateRunning, types.QueryExecutionStateCancelled},
		reason: "user requested",
	}
	controller := &Controller{API: api, Wait: noWait}

	_, err := controller.AwaitCompletion(context.Background(), "q-2")
	var cancelled *QueryCancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("AwaitCompletion() error = %v, want QueryCancelledError", err)
	}
	if cancelled.Reason != "user requested" || err.Error() != "query cancelled: user requested" {
		t.Fatalf("error = %v", err)
	}
}

func TestAwaitCompletionFailedCarriesReason(t *testing.T) {
	api := &fakeAPI{
		states: []types.QueryExecutionState{types.QueryExecutionStateFailed},
		reason: "SYNTAX_ERROR: line 1:8",
	}
	counter := &progress.Counter{}
	controller := &Controller{API: api, Wait: noWait, Progress: func() progress.Reporter { return counter }}

	_, err := controller.AwaitCompletion(context.Background(), "q-3")
	var failed *QueryFailedError
	if !errors.As(err, &failed) || failed.Reason != "SYNTAX_ERROR: line 1:8" || failed.ID != "q-3" {
		t.Fatalf("AwaitCompletion() error = %v", err)
	}
	if _, finalErr := counter.Finalized(); finalErr == nil {
		t.Fatal("expected reporter to be finalized with failure")
	}
}

func TestAwaitCompletionTreatsUnknownStateAsPending(t *testing.T) {
	api := &fakeAPI{states: []types.QueryExecutionState{"PAUSED", types.QueryExecutionStateSucceeded}}
	controller := &Controller{API: api, Wait: noWait}

	report, err := controller.AwaitCompletion(context.Background(), "q-4")
	if err != nil || report.State != StateSucceeded || report.Polls != 2 {
		t.Fatalf("AwaitCompletion() = %+v, %v", report, err)
	}
}

func TestAwaitCompletionInterruptStopsOnce(t *testing.T) {
	api := &fakeAPI{states: []types.QueryExecutionState{
		types.QueryExecutionStateRunning,
		types.QueryExecutionStateRunning,
		types.QueryExecutionStateSucceeded,
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controller := &Controller{
		API: api,
		Wait: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	report, err := controller.AwaitCompletion(ctx, "q-5")
	if err != nil {
		t.Fatalf("AwaitCompletion() error = %v", err)
	}
	if !report.Interrupted || report.ID != "q-5" {
		t.Fatalf("report = %+v", report)
	}
	if api.statusCalls() != 1 {
		t.Fatalf("status calls = %d, want 1", api.statusCalls())
	}
	if got := api.stopped(); len(got) != 1 || got[0] != "q-5" {
		t.Fatalf("stop requests = %v", got)
	}
	if api.stopCtxErr != nil {
		t.Fatalf("stop request sent with done context: %v", api.stopCtxErr)
	}
}

func TestAwaitCompletionReturnsStatusErrors(t *testing.T) {
	boom := errors.New("throttled")
	api := &fakeAPI{statusErr: boom}
	controller := &Controller{API: api, Wait: noWait}

	if _, err := controller.AwaitCompletion(context.Background(), "q-6"); !errors.Is(err, boom) {
		t.Fatalf("AwaitCompletion() error = %v", err)
	}
	if api.statusCalls() != 1 || len(api.stopped()) != 0 {
		t.Fatalf("status calls = %d, stops = %v", api.statusCalls(), api.stopped())
	}
}

func TestSubmitWrapsRejection(t *testing.T) {
	api := &fakeAPI{startErr: errors.New("InvalidRequestException")}
	controller := &Controller{API: api, Config: Config{Workgroup: "analytics"}}

	_, err := controller.Submit(context.Background(), "SELECT 1", "db")
	var submission *SubmissionError
	if !errors.As(err, &submission) {
		t.Fatalf("Submit() error = %v, want SubmissionError", err)
	}
}

func TestSubmitSetsWorkgroupAndDatabase(t *testing.T) {
	api := &fakeAPI{}
	controller := &Controller{API: api, Config: Config{Workgroup: "analytics"}}

	id, err := controller.Submit(context.Background(), "SHOW TABLES", "sales")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id != "exec-1" {
		t.Fatalf("id = %q", id)
	}
	input := api.started[0]
	if aws.ToString(input.WorkGroup) != "analytics" || aws.ToString(input.QueryExecutionContext.Database) != "sales" {
		t.Fatalf("input = %+v", input)
	}

	if _, err := controller.Submit(context.Background(), "SELECT 1", ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if api.started[1].QueryExecutionContext != nil {
		t.Fatal("expected no execution context for empty database")
	}
}

func TestCreateTableFromQueryOverwriteOrder(t *testing.T) {
	api := &fakeAPI{succeedAll: true}
	store := &recordingStore{api: api}
	controller := &Controller{
		API:   api,
		Store: store,
		Config: Config{
			Workgroup:      "analytics",
			OutputLocation: storage.MustParseLocation("s3://results/athena/"),
		},
		Wait: noWait,
	}

	ref, err := controller.CreateTableFromQuery(context.Background(), "SELECT 1 AS x", "tmp_abc", true)
	if err != nil {
		t.Fatalf("CreateTableFromQuery() error = %v", err)
	}
	if ref.Name != "analytics.tmp_abc" || ref.Location.String() != "s3://results/athena/analytics.tmp_abc" {
		t.Fatalf("ref = %+v", ref)
	}
	want := []string{
		"start:DROP TABLE IF EXISTS analytics.tmp_abc",
		"delete:s3://results/athena/analytics.tmp_abc",
		"start:CREATE TABLE analytics.tmp_abc WITH (format = 'ORC', external_location = 's3://results/athena/analytics.tmp_abc') AS SELECT 1 AS x",
	}
	if strings.Join(api.events, "\n") != strings.Join(want, "\n") {
		t.Fatalf("events =\n%s\nwant\n%s", strings.Join(api.events, "\n"), strings.Join(want, "\n"))
	}
}

func TestControllerSharedAcrossGoroutinesKeepsConfig(t *testing.T) {
	api := &fakeAPI{succeedAll: true}
	controller := &Controller{
		API: api,
		Config: Config{
			Workgroup:      "analytics",
			OutputLocation: storage.MustParseLocation("s3://results/athena/"),
		},
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := controller.CreateTableFromQuery(context.Background(), "SELECT 1", "tmp_"+itoa(i), false)
			if err == nil && ref.Name != "analytics.tmp_"+itoa(i) {
				err = errors.New("unexpected table " + ref.Name)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CreateTableFromQuery() error = %v", err)
		}
	}
	if controller.Config.Database != "" || controller.Config.Format != "" || controller.Config.PollInterval != 0 {
		t.Fatalf("Config mutated to %+v", controller.Config)
	}
	if controller.Wait != nil || controller.Progress != nil {
		t.Fatal("Wait or Progress defaults written back to the shared controller")
	}
	if len(api.started) != 8 {
		t.Fatalf("started = %d", len(api.started))
	}
}

func TestCreateTableFromQueryFailedDropAborts(t *testing.T) {
	api := &fakeAPI{states: []types.QueryExecutionState{types.QueryExecutionStateFailed}, reason: "access denied"}
	store := &recordingStore{api: api}
	controller := &Controller{
		API:    api,
		Store:  store,
		Config: Config{Workgroup: "analytics", OutputLocation: storage.MustParseLocation("s3://results/")},
		Wait:   noWait,
	}

	_, err := controller.CreateTableFromQuery(context.Background(), "SELECT 1", "t1", true)
	var failed *QueryFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("CreateTableFromQuery() error = %v", err)
	}
	if len(api.events) != 1 || !strings.HasPrefix(api.events[0], "start:DROP TABLE") {
		t.Fatalf("events = %v", api.events)
	}
}

func TestCreateTableFromQueryInterrupted(t *testing.T) {
	api := &fakeAPI{states: []types.QueryExecutionState{types.QueryExecutionStateRunning}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controller := &Controller{
		API:    api,
		Config: Config{Workgroup: "analytics", Format: FormatParquet, OutputLocation: storage.MustParseLocation("s3://results/")},
		Wait: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	if _, err := controller.CreateTableFromQuery(ctx, "SELECT 1", "t1", false); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("CreateTableFromQuery() error = %v", err)
	}
	if !strings.Contains(api.events[0], "format = 'PARQUET'") {
		t.Fatalf("statement = %s", api.events[0])
	}
	if len(api.stopped()) != 1 {
		t.Fatalf("stop requests = %v", api.stopped())
	}
}

func TestCreateTableFromQueryRejectsBadName(t *testing.T) {
	controller := &Controller{API: &fakeAPI{}, Config: Config{Workgroup: "analytics"}}
	if _, err := controller.CreateTableFromQuery(context.Background(), "SELECT 1", "bad-name", false); err == nil {
		t.Fatal("expected invalid table name error")
	}
}

func noWait(context.Context, time.Duration) error { return nil }

type fakeAPI struct {
	mu         sync.Mutex
	states     []types.QueryExecutionState
	reason     string
	succeedAll bool
	statusErr  error
	startErr   error

	started    []*athena.StartQueryExecutionInput
	events     []string
	polls      int
	stops      []string
	stopCtxErr error

	pages [][]types.Row
}

func (f *fakeAPI) StartQueryExecution(_ context.Context, params *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, params)
	f.events = append(f.events, "start:"+aws.ToString(params.QueryString))
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("exec-" + itoa(len(f.started)))}, nil
}

func (f *fakeAPI) GetQueryExecution(_ context.Context, params *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	state := types.QueryExecutionStateSucceeded
	if !f.succeedAll && len(f.states) > 0 {
		state = f.states[0]
		if len(f.states) > 1 {
			f.states = f.states[1:]
		}
	}
	return &athena.GetQueryExecutionOutput{QueryExecution: &types.QueryExecution{
		QueryExecutionId: params.QueryExecutionId,
		Status: &types.QueryExecutionStatus{
			State:             state,
			StateChangeReason: aws.String(f.reason),
		},
		Statistics: &types.QueryExecutionStatistics{
			EngineExecutionTimeInMillis: aws.Int64(1500),
			TotalExecutionTimeInMillis:  aws.Int64(1800),
			DataScannedInBytes:          aws.Int64(2048),
		},
	}}, nil
}

func (f *fakeAPI) StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, aws.ToString(params.QueryExecutionId))
	f.stopCtxErr = ctx.Err()
	return &athena.StopQueryExecutionOutput{}, nil
}

func (f *fakeAPI) GetQueryResults(_ context.Context, params *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	index := 0
	if token := aws.ToString(params.NextToken); token != "" {
		index = int(token[0] - '0')
	}
	out := &athena.GetQueryResultsOutput{ResultSet: &types.ResultSet{
		ResultSetMetadata: &types.ResultSetMetadata{ColumnInfo: []types.ColumnInfo{
			{Name: aws.String("id"), Type: aws.String("integer")},
			{Name: aws.String("name"), Type: aws.String("varchar")},
		}},
		Rows: f.pages[index],
	}}
	if index+1 < len(f.pages) {
		out.NextToken = aws.String(itoa(index + 1))
	}
	return out, nil
}

func (f *fakeAPI) statusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeAPI) stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stops...)
}

type recordingStore struct {
	api *fakeAPI
}

func (s *recordingStore) List(context.Context, storage.Location) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (s *recordingStore) Get(context.Context, storage.Location) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (s *recordingStore) Delete(_ context.Context, prefix storage.Location) error {
	s.api.mu.Lock()
	defer s.api.mu.Unlock()
	s.api.events = append(s.api.events, "delete:"+prefix.String())
	return nil
}

func itoa(n int) string {
	return string(rune('0' + n))
}
