package source

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// State tracks one source through its execution lifecycle.
type State int

const (
	StatePending State = iota
	StateConnecting
	StateQuerying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateQuerying:
		return "querying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the raw result of one source's execution. Err set means the
// source failed (connect, timeout or query rejection) and Rows is empty;
// the failure never aborts the batch.
type Outcome struct {
	Source Descriptor
	State  State
	Rows   []Row
	Err    error
}

// Executor runs a query per source, strictly sequentially. The center
// databases are fragile single-session systems; one connection at a time
// is a reliability requirement, not a simplification.
type Executor struct {
	dialer         Dialer
	connectTimeout time.Duration
	queryTimeout   time.Duration
	log            zerolog.Logger
}

func NewExecutor(dialer Dialer, connectTimeout, queryTimeout time.Duration, log zerolog.Logger) *Executor {
	return &Executor{
		dialer:         dialer,
		connectTimeout: connectTimeout,
		queryTimeout:   queryTimeout,
		log:            log,
	}
}

// Execute runs queries[i] against sources[i], one source at a time.
// Outcomes preserve source order. Cancellation of ctx is honored between
// sources; within a source the connect and query deadlines bound the wait.
func (e *Executor) Execute(ctx context.Context, sources []Descriptor, queries []string) []Outcome {
	out := make([]Outcome, 0, len(sources))
	for i, d := range sources {
		if err := ctx.Err(); err != nil {
			out = append(out, Outcome{Source: d, State: StateFailed, Err: err})
			continue
		}
		out = append(out, e.executeOne(ctx, d, queries[i]))
	}
	return out
}

// executeOne drives the pending → connecting → querying → done|failed
// machine for a single source. The connection is released on every exit
// path before the next source is touched.
func (e *Executor) executeOne(ctx context.Context, d Descriptor, query string) Outcome {
	o := Outcome{Source: d, State: StatePending}

	o.State = StateConnecting
	connectCtx, cancelConnect := context.WithTimeout(ctx, e.connectTimeout)
	conn, err := e.dialer.Dial(connectCtx, d)
	cancelConnect()
	if err != nil {
		o.State = StateFailed
		o.Err = err
		e.log.Error().Err(err).Str("source", d.DisplayName()).Msg("source connect failed")
		return o
	}
	defer conn.Close()

	o.State = StateQuerying
	queryCtx, cancelQuery := context.WithTimeout(ctx, e.queryTimeout)
	rows, err := conn.Query(queryCtx, query)
	cancelQuery()
	if err != nil {
		o.State = StateFailed
		o.Err = err
		e.log.Error().Err(err).Str("source", d.DisplayName()).Msg("source query failed")
		return o
	}

	o.State = StateDone
	o.Rows = rows
	e.log.Debug().Str("source", d.DisplayName()).Int("rows", len(rows)).Msg("source query done")
	return o
}
