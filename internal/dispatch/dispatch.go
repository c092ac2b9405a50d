// Package dispatch maps a multipart part's name to a caller-registered
// target and issues that target's lifecycle calls, exactly as the state
// machine commits data (spec 4.4).
//
// Grounded on backends/stream.go and backends/decorate.go's
// StreamDecorator/StreamProcessor wiring discipline: build the chain (or,
// here, the registration table) once during setup, then invoke it
// uniformly from the hot path without ever mutating the wiring again.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/mailchannels/mpfdstream/internal/header"
	"github.com/mailchannels/mpfdstream/target"
)

// ErrDuplicateName is returned by Register when name is already bound.
var ErrDuplicateName = errors.New("dispatch: duplicate target name")

// ErrRegisteredAfterStart is returned by Register once the table has been
// locked by the first Push (spec 6.2: "must be called before the first
// push").
var ErrRegisteredAfterStart = errors.New("dispatch: register called after push started")

// Table is the registration table of spec 3: part-name (exact byte
// match, here a Go string since part names decode to UTF-8-safe ASCII
// tokens per Content-Disposition grammar) to Target.
type Table struct {
	byName map[string]target.Target
	locked bool
}

// NewTable returns an empty registration table.
func NewTable() *Table {
	return &Table{byName: make(map[string]target.Target)}
}

// Register binds name to t. Must be called before Lock (i.e. before the
// parser's first push).
func (tb *Table) Register(name string, t target.Target) error {
	if tb.locked {
		return ErrRegisteredAfterStart
	}
	if _, exists := tb.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	tb.byName[name] = t
	return nil
}

// Lock freezes the table against further registration; called once by
// the state machine on the first Push.
func (tb *Table) Lock() { tb.locked = true }

// Lookup returns the target registered for name, if any.
func (tb *Table) Lookup(name string) (target.Target, bool) {
	t, ok := tb.byName[name]
	return t, ok
}

// Part records the dispatch lifecycle state for one in-flight part
// (whether Start and HeadersParsed have been called). Part does not check
// the call order itself; spec 4.3's ordering (start precedes any
// data_received; headers_parsed falls between start and the first
// data_received; finish follows the last data_received) comes from the
// state machine calling these methods in that sequence.
type Part struct {
	target  target.Target
	started bool
	headed  bool
}

// Dispatcher drives a Table's targets through the part lifecycle.
type Dispatcher struct {
	Table *Table
}

// NewDispatcher builds a Dispatcher over table.
func NewDispatcher(table *Table) *Dispatcher {
	return &Dispatcher{Table: table}
}

// Begin looks up name and, if registered, calls Start, returning a Part
// handle for the subsequent HeadersParsed/Data/Finish calls. A nil Part
// (ok=false) means the part is unregistered: the state machine still
// advances past it, but must not call Data/Finish on the returned value.
func (d *Dispatcher) Begin(name string) (*Part, bool, error) {
	t, ok := d.Table.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	if err := t.Start(); err != nil {
		return nil, true, err
	}
	return &Part{target: t, started: true}, true, nil
}

// HeadersParsed delivers the decoded disposition to p's target.
func (p *Part) HeadersParsed(d header.Disposition) error {
	p.headed = true
	return p.target.HeadersParsed(d)
}

// Data delivers committed payload bytes to p's target.
func (p *Part) Data(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return p.target.DataReceived(b)
}

// Finish completes p's target lifecycle. Never called on an error path
// (spec 7).
func (p *Part) Finish() error {
	return p.target.Finish()
}
