package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// Reporter records units of work for one scope and is finalized once when the
// scope exits.
type Reporter interface {
	Tick()
	Done(err error)
}

// Factory returns a fresh Reporter for a new scope.
type Factory func() Reporter

type Options struct {
	Prefix   string
	Filler   string
	Complete string
	Failure  string
}

// Bar renders ticks as a growing line on a terminal-like writer.
type Bar struct {
	out   io.Writer
	opts  Options
	ticks atomic.Int64
	mu    sync.Mutex
	done  bool
}

func NewBar(out io.Writer, opts Options) *Bar {
	if out == nil {
		out = io.Discard
	}
	if opts.Prefix == "" {
		opts.Prefix = "Running: "
	}
	if opts.Filler == "" {
		opts.Filler = "█"
	}
	if opts.Complete == "" {
		opts.Complete = "Successfully completed."
	}
	if opts.Failure == "" {
		opts.Failure = "Completed with failure!"
	}
	return &Bar{out: out, opts: opts}
}

// BarFactory builds a Factory that writes every scope to out.
func BarFactory(out io.Writer, opts Options) Factory {
	return func() Reporter {
		return NewBar(out, opts)
	}
}

func (b *Bar) Tick() {
	n := b.ticks.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	_, _ = fmt.Fprintf(b.out, "\r%s%s", b.opts.Prefix, strings.Repeat(b.opts.Filler, int(n)))
}

// Done writes the final status line. Calls after the first are ignored.
func (b *Bar) Done(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	status := b.opts.Complete
	if err != nil {
		status = b.opts.Failure
	}
	_, _ = fmt.Fprintf(b.out, "\n%s\n", status)
}

func (b *Bar) Ticks() int64 {
	return b.ticks.Load()
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Tick()      {}
func (Nop) Done(error) {}

// NopFactory is the Factory used when no reporter is configured.
func NopFactory() Reporter {
	return Nop{}
}

// Counter counts ticks and remembers the final result; tests use it to observe
// tick granularity.
type Counter struct {
	ticks atomic.Int64
	mu    sync.Mutex
	done  int
	err   error
}

func (c *Counter) Tick() {
	c.ticks.Add(1)
}

func (c *Counter) Done(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
	c.err = err
}

func (c *Counter) Ticks() int64 {
	return c.ticks.Load()
}

// Finalized reports how many times Done was called and the last error passed.
func (c *Counter) Finalized() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done, c.err
}
