package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/athenakit/athenakit/internal/observability"
	"github.com/athenakit/athenakit/internal/progress"
	"github.com/athenakit/athenakit/internal/storage"
)

const (
	FormatORC     = "ORC"
	FormatParquet = "PARQUET"

	stopTimeout = 30 * time.Second
)

type Config struct {
	Workgroup      string
	Database       string
	OutputLocation storage.Location
	PollInterval   time.Duration
	Format         string
}

// Controller submits statements, waits for them to reach a terminal state and
// creates tables from queries.
type Controller struct {
	API      API
	Store    storage.ObjectStore
	Config   Config
	Progress progress.Factory
	Logger   *slog.Logger
	// Wait blocks between polls. It must return ctx.Err() when ctx is done.
	Wait func(ctx context.Context, d time.Duration) error
}

// withDefaults returns a copy of c with unset fields filled in. The receiver
// is never written, so one Controller may serve concurrent calls.
func (c *Controller) withDefaults() *Controller {
	resolved := *c
	if resolved.Config.PollInterval <= 0 {
		resolved.Config.PollInterval = 5 * time.Second
	}
	if resolved.Config.Format == "" {
		resolved.Config.Format = FormatORC
	}
	if resolved.Config.Database == "" {
		resolved.Config.Database = resolved.Config.Workgroup
	}
	if resolved.Wait == nil {
		resolved.Wait = sleep
	}
	if resolved.Progress == nil {
		resolved.Progress = progress.NopFactory
	}
	return &resolved
}

// Submit starts statement in database and returns the execution id. An empty
// database leaves the execution context unset.
func (c *Controller) Submit(ctx context.Context, statement, database string) (string, error) {
	c = c.withDefaults()
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(statement),
	}
	if c.Config.Workgroup != "" {
		input.WorkGroup = aws.String(c.Config.Workgroup)
	}
	if database != "" {
		input.QueryExecutionContext = &types.QueryExecutionContext{Database: aws.String(database)}
	}
	out, err := c.API.StartQueryExecution(ctx, input)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		return "", &SubmissionError{Err: errors.New("service returned no execution id")}
	}
	if c.Logger != nil {
		c.Logger.InfoContext(ctx, "query submitted", slog.String("execution_id", id), slog.String("database", database))
		c.Logger.DebugContext(ctx, "query text", slog.String("execution_id", id), slog.String("statement", statement))
	}
	return id, nil
}

// AwaitCompletion polls the execution until it reaches a terminal state. When
// ctx is cancelled while waiting, one stop request is sent and the returned
// report is marked Interrupted with a nil error.
func (c *Controller) AwaitCompletion(ctx context.Context, id string) (report ExecutionReport, err error) {
	c = c.withDefaults()
	ctx = observability.ContextWithExecutionID(ctx, id)
	report.ID = id

	reporter := c.Progress()
	defer func() {
		if err == nil && report.Interrupted {
			reporter.Done(ErrInterrupted)
			return
		}
		reporter.Done(err)
	}()

	for {
		if ctx.Err() != nil {
			return c.interrupt(ctx, report), nil
		}
		out, pollErr := c.API.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
		if pollErr != nil {
			if ctx.Err() != nil {
				return c.interrupt(ctx, report), nil
			}
			return report, fmt.Errorf("get query execution %s: %w", id, pollErr)
		}
		observability.IncrementExecutionPolls()
		report = updateReport(report, out.QueryExecution)

		switch report.State {
		case StateSucceeded:
			observability.ObserveExecution("succeeded", report.Statistics.EngineExecutionTime, report.Statistics.DataScannedBytes)
			return report, nil
		case StateFailed:
			observability.ObserveExecution("failed", 0, 0)
			return report, &QueryFailedError{ID: id, Reason: report.StateChangeReason}
		case StateCancelled:
			observability.ObserveExecution("cancelled", 0, 0)
			return report, &QueryCancelledError{ID: id, Reason: report.StateChangeReason}
		}

		reporter.Tick()
		if waitErr := c.Wait(ctx, c.Config.PollInterval); waitErr != nil {
			if ctx.Err() != nil {
				return c.interrupt(ctx, report), nil
			}
			return report, fmt.Errorf("wait for query execution %s: %w", id, waitErr)
		}
	}
}

// Cancel asks the service to stop the execution without waiting for it.
func (c *Controller) Cancel(ctx context.Context, id string) error {
	if _, err := c.API.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{QueryExecutionId: aws.String(id)}); err != nil {
		return fmt.Errorf("stop query execution %s: %w", id, err)
	}
	return nil
}

func (c *Controller) interrupt(ctx context.Context, report ExecutionReport) ExecutionReport {
	report.Interrupted = true
	observability.ObserveExecution("interrupted", 0, 0)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	err := c.Cancel(stopCtx, report.ID)
	if c.Logger != nil {
		if err != nil {
			c.Logger.ErrorContext(stopCtx, "stop interrupted query", observability.ExecutionAttr(ctx), slog.Any("error", err))
		} else {
			c.Logger.InfoContext(stopCtx, "interrupted query stopped", observability.ExecutionAttr(ctx))
		}
	}
	return report
}

// execute submits statement in the configured database and waits for it.
func (c *Controller) execute(ctx context.Context, statement string) (ExecutionReport, error) {
	id, err := c.Submit(ctx, statement, c.Config.Database)
	if err != nil {
		return ExecutionReport{}, err
	}
	report, err := c.AwaitCompletion(ctx, id)
	if err != nil {
		return report, err
	}
	if report.Interrupted {
		return report, ErrInterrupted
	}
	return report, nil
}

func updateReport(report ExecutionReport, execution *types.QueryExecution) ExecutionReport {
	report.Polls++
	if execution == nil {
		report.State = ""
		return report
	}
	if execution.Status != nil {
		report.State = State(strings.ToUpper(string(execution.Status.State)))
		report.StateChangeReason = aws.ToString(execution.Status.StateChangeReason)
	}
	if stats := execution.Statistics; stats != nil {
		report.Statistics = Statistics{
			EngineExecutionTime: time.Duration(aws.ToInt64(stats.EngineExecutionTimeInMillis)) * time.Millisecond,
			TotalExecutionTime:  time.Duration(aws.ToInt64(stats.TotalExecutionTimeInMillis)) * time.Millisecond,
			DataScannedBytes:    aws.ToInt64(stats.DataScannedInBytes),
		}
	}
	return report
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
