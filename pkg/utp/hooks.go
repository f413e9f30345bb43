package utp

import "github.com/lthibault/utpwerks/pkg/engine"

// Hooks observe endpoint events.  Embed NopHooks to override a subset.
type Hooks interface {
	// Writable is called whenever the writable latch is updated.
	Writable(e *Endpoint, writable bool)
	// Error is called with errors reported by the transport engine.  The
	// endpoint is left as is; implementations decide whether to tear it down.
	Error(e *Endpoint, err error)
	// Overhead is called with protocol overhead statistics.
	Overhead(e *Endpoint, o engine.Overhead)
}

// NopHooks ignores every event.
type NopHooks struct{}

// Writable does nothing
func (NopHooks) Writable(*Endpoint, bool) {}

// Error does nothing
func (NopHooks) Error(*Endpoint, error) {}

// Overhead does nothing
func (NopHooks) Overhead(*Endpoint, engine.Overhead) {}

// OverheadCounter is a Hooks implementation that tallies overhead bytes.
type OverheadCounter struct {
	NopHooks
	Sent, Received int
}

// Overhead adds the sample to the running totals.
func (c *OverheadCounter) Overhead(_ *Endpoint, o engine.Overhead) {
	if o.Send {
		c.Sent += o.Bytes
	} else {
		c.Received += o.Bytes
	}
}
