// Package reports defines the report framework the compiler drives: a
// container fans every merged event out to a set of generators, each
// generator accumulates state and finally emits reports. Static reports are
// files uploaded next to the merged log; dynamic reports are rows applied to
// the relational store inside one shared transaction.
package reports

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/matchlog/matchlog/internal/logging"
)

// Kind distinguishes how a report is persisted.
type Kind uint8

const (
	// Static reports are files uploaded to cold storage.
	Static Kind = iota

	// Dynamic reports are rows written to the relational store.
	Dynamic
)

// Report is one finished artifact of a generator.
type Report interface {
	Kind() Kind

	// Canonical is the report family segment of the storage key, e.g.
	// "characters" or "deaths".
	Canonical() string

	// Name identifies the artifact within its family.
	Name() string
}

// StaticReport is a finished file in the work directory, uploaded under
// form=Report/partition={p}/canonical={c}/{name}.
type StaticReport struct {
	CanonicalName string
	FileName      string
	Path          string
}

func (r *StaticReport) Kind() Kind        { return Static }
func (r *StaticReport) Canonical() string { return r.CanonicalName }
func (r *StaticReport) Name() string      { return r.FileName }

// Open opens the report file for reading.
func (r *StaticReport) Open() (*os.File, error) {
	return os.Open(r.Path)
}

// DynamicReport applies its rows inside the caller's transaction. Apply must
// be idempotent so a retried compilation does not duplicate rows.
type DynamicReport interface {
	Report
	Apply(ctx context.Context, tx *sql.Tx) error
}

// Generator accumulates events of one game and emits reports at the end.
type Generator[P any] interface {
	// Name identifies the generator for logging and quarantine tracking.
	Name() string

	// Handle consumes one decoded packet.
	Handle(p *P) error

	// Finalize closes out accumulated state. Called once, after the last
	// packet and before Reports.
	Finalize() error

	// Reports returns the finished artifacts. Only valid after Finalize.
	Reports() []Report
}

// LineSink is the game-erased view of a container the compiler drives.
type LineSink interface {
	HandleLine(line []byte) error
	Finalize() error
	Reports() []Report
}

// Container fans decoded packets out to generators. A generator that returns
// an error is quarantined: it stops receiving packets and contributes no
// reports, but the others are unaffected.
type Container[P any] struct {
	decode      func(line []byte) (*P, error)
	generators  []Generator[P]
	quarantined map[string]error
	logger      *logging.Logger
}

// NewContainer creates a container over the given decode function and
// generators.
func NewContainer[P any](decode func(line []byte) (*P, error), generators []Generator[P], logger *logging.Logger) *Container[P] {
	return &Container[P]{
		decode:      decode,
		generators:  generators,
		quarantined: make(map[string]error),
		logger:      logger.With("component", "reports"),
	}
}

// HandleLine decodes one merged log line and dispatches it. A line that
// fails to decode is an error for the whole compilation; a generator failure
// only quarantines that generator.
func (c *Container[P]) HandleLine(line []byte) error {
	p, err := c.decode(line)
	if err != nil {
		return fmt.Errorf("failed to decode packet: %w", err)
	}

	for _, gen := range c.generators {
		if _, bad := c.quarantined[gen.Name()]; bad {
			continue
		}
		if err := c.handleOne(gen, p); err != nil {
			c.quarantine(gen.Name(), err)
		}
	}
	return nil
}

// handleOne isolates a single generator call so a panic inside one
// generator cannot take down the compilation.
func (c *Container[P]) handleOne(gen Generator[P], p *P) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return gen.Handle(p)
}

// Finalize runs every healthy generator's Finalize on its own worker
// goroutine. Failures quarantine the generator; Finalize itself only fails
// if every generator ends up quarantined.
func (c *Container[P]) Finalize() error {
	type result struct {
		name string
		err  error
	}

	results := make(chan result, len(c.generators))
	var wg sync.WaitGroup

	for _, gen := range c.generators {
		if _, bad := c.quarantined[gen.Name()]; bad {
			continue
		}

		wg.Add(1)
		go func(gen Generator[P]) {
			defer wg.Done()
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("generator panic: %v", r)
					}
				}()
				return gen.Finalize()
			}()
			results <- result{name: gen.Name(), err: err}
		}(gen)
	}

	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			c.quarantine(res.name, res.err)
		}
	}

	if len(c.generators) > 0 && len(c.quarantined) == len(c.generators) {
		return fmt.Errorf("all report generators failed")
	}
	return nil
}

// Reports collects the artifacts of every healthy generator.
func (c *Container[P]) Reports() []Report {
	var out []Report
	for _, gen := range c.generators {
		if _, bad := c.quarantined[gen.Name()]; bad {
			continue
		}
		out = append(out, gen.Reports()...)
	}
	return out
}

// Quarantined returns the failed generators and their first error.
func (c *Container[P]) Quarantined() map[string]error {
	return c.quarantined
}

func (c *Container[P]) quarantine(name string, err error) {
	if _, exists := c.quarantined[name]; exists {
		return
	}
	c.quarantined[name] = err
	c.logger.Warn("Quarantined report generator", "generator", name, "error", err)
}
