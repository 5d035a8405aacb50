package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/athenakit/athenakit/internal/observability"
	"github.com/athenakit/athenakit/internal/progress"
	"github.com/athenakit/athenakit/internal/storage"
	"github.com/athenakit/athenakit/internal/table"
)

// AllCPUs selects one worker per available processing unit.
const AllCPUs = -1

// DecodeError reports a result object that could not be decoded. The whole
// fetch fails with it.
type DecodeError struct {
	Location string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Location, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Fetcher reads every result object under a location and merges the decoded
// fragments into one table.
type Fetcher struct {
	Store    storage.ObjectStore
	Decoder  Decoder
	Gzipped  bool
	Progress progress.Factory
	Logger   *slog.Logger
}

// FetchTable lists the objects under location and decodes them with the given
// concurrency: 1 is sequential, N > 1 uses up to N workers and AllCPUs uses
// runtime.NumCPU workers. An empty location yields an empty table.
func (f *Fetcher) FetchTable(ctx context.Context, location storage.Location, concurrency int) (_ *table.Table, err error) {
	workers, err := workerCount(concurrency)
	if err != nil {
		return nil, err
	}
	if f.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	decoder := f.Decoder
	if decoder == nil {
		decoder = ORCDecoder{}
	}

	reporter := f.reporter()
	start := time.Now()
	defer func() {
		reporter.Done(err)
		observability.ObserveFetch(observability.Outcome(err), time.Since(start))
	}()

	objects, err := f.Store.List(ctx, location)
	if err != nil {
		return nil, err
	}
	objects = dataObjects(objects)

	var fragments []*table.Table
	if workers == 1 {
		fragments, err = f.fetchSequential(ctx, location.Scheme, decoder, objects, reporter)
	} else {
		fragments, err = f.fetchParallel(ctx, location.Scheme, decoder, objects, workers, reporter)
	}
	if err != nil {
		return nil, err
	}

	merged, err := table.Concat(fragments)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", location.String(), err)
	}
	if f.Logger != nil {
		f.Logger.DebugContext(ctx, "fetched result set",
			slog.String("location", location.String()),
			slog.Int("objects", len(objects)),
			slog.Int("workers", workers),
			slog.Int("rows", merged.NumRows()),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return merged, nil
}

func (f *Fetcher) fetchSequential(ctx context.Context, scheme string, decoder Decoder, objects []storage.ObjectInfo, reporter progress.Reporter) ([]*table.Table, error) {
	fragments := make([]*table.Table, 0, len(objects))
	for _, object := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fragment, err := f.fetchOne(ctx, scheme, decoder, object)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, fragment)
		reporter.Tick()
	}
	return fragments, nil
}

// fetchParallel decodes objects on a bounded errgroup. Workers signal each
// finished object on completed; only this goroutine touches the reporter.
// Fragments keep their listing position.
func (f *Fetcher) fetchParallel(ctx context.Context, scheme string, decoder Decoder, objects []storage.ObjectInfo, workers int, reporter progress.Reporter) ([]*table.Table, error) {
	fragments := make([]*table.Table, len(objects))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	completed := make(chan struct{})
	var waitErr error
	go func() {
		defer close(completed)
		for i, object := range objects {
			if groupCtx.Err() != nil {
				break
			}
			group.Go(func() error {
				fragment, err := f.fetchOne(groupCtx, scheme, decoder, object)
				if err != nil {
					return err
				}
				fragments[i] = fragment
				completed <- struct{}{}
				return nil
			})
		}
		waitErr = group.Wait()
	}()

	for range completed {
		reporter.Tick()
	}
	if waitErr != nil {
		return nil, waitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fragments, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, scheme string, decoder Decoder, object storage.ObjectInfo) (*table.Table, error) {
	location := object.Location(scheme)
	body, err := f.Store.Get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location.String(), err)
	}
	raw, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location.String(), err)
	}
	observability.ObserveFetchedObject(len(raw))

	data := raw
	if f.Gzipped {
		data, err = gunzip(raw)
		if err != nil {
			return nil, &DecodeError{Location: location.String(), Err: err}
		}
	}
	fragment, err := decoder.Decode(data)
	if err != nil {
		return nil, &DecodeError{Location: location.String(), Err: err}
	}
	return fragment, nil
}

func (f *Fetcher) reporter() progress.Reporter {
	if f.Progress == nil {
		return progress.Nop{}
	}
	return f.Progress()
}

func gunzip(raw []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return data, nil
}

// dataObjects drops folder placeholder keys.
func dataObjects(objects []storage.ObjectInfo) []storage.ObjectInfo {
	out := make([]storage.ObjectInfo, 0, len(objects))
	for _, object := range objects {
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		out = append(out, object)
	}
	return out
}

func workerCount(concurrency int) (int, error) {
	switch {
	case concurrency == AllCPUs:
		return max(runtime.NumCPU(), 1), nil
	case concurrency >= 1:
		return concurrency, nil
	default:
		return 0, fmt.Errorf("invalid concurrency %d: want %d or a positive worker count", concurrency, AllCPUs)
	}
}
