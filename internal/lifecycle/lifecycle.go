package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/athena"

	"github.com/athenakit/athenakit/internal/storage"
)

// API is the part of the Athena client the controller drives.
type API interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

var _ API = (*athena.Client)(nil)

type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transition can happen. Unknown states
// are not terminal.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

type Statistics struct {
	EngineExecutionTime time.Duration
	TotalExecutionTime  time.Duration
	DataScannedBytes    int64
}

// ExecutionReport is the snapshot taken by the last status poll.
type ExecutionReport struct {
	ID                string
	State             State
	StateChangeReason string
	Statistics        Statistics
	Polls             int
	Interrupted       bool
}

// TableRef names a table created from a query and the prefix holding its data.
type TableRef struct {
	Name     string
	Location storage.Location
}

// ErrInterrupted is returned by operations that need a finished execution
// when the wait was interrupted and the execution was stopped.
var ErrInterrupted = errors.New("query cancelled by user")

type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit query: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

type QueryFailedError struct {
	ID     string
	Reason string
}

func (e *QueryFailedError) Error() string {
	return fmt.Sprintf("query failed: %s", e.Reason)
}

type QueryCancelledError struct {
	ID     string
	Reason string
}

func (e *QueryCancelledError) Error() string {
	return fmt.Sprintf("query cancelled: %s", e.Reason)
}
