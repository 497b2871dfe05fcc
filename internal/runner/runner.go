// Package runner drives the pipeline stages on a background goroutine so a
// front end can interleave progress reporting. Semantics are unchanged from
// the synchronous engine: one stage per request, no mid-stage suspension,
// and out-of-order requests run against whatever state exists.
package runner

import (
	"context"

	"fortigate-policy-flattener/internal/engine"
	"fortigate-policy-flattener/internal/model"
	"fortigate-policy-flattener/internal/parser"
)

// Request is one pipeline stage invocation.
type Request interface{ isRequest() }

// MakeList parses a configuration blob into a fresh store and reports the
// address and service listings.
type MakeList struct {
	Config       string
	SeedServices map[string]*model.TokenSet
}

// Normalize reports the normalized policy rows of the current store.
type Normalize struct{}

// Flatten rebuilds the flattened row list per the toggles and reports it.
type Flatten struct {
	Addresses bool
	Services  bool
}

// Lookup matches a lookup-list blob against the current flattened rows.
type Lookup struct {
	List            string
	FqdnGeoMatchAll bool
}

func (MakeList) isRequest()  {}
func (Normalize) isRequest() {}
func (Flatten) isRequest()   {}
func (Lookup) isRequest()    {}

// Response is the result of one stage, delivered in request order.
type Response interface{ isResponse() }

type MadeList struct {
	AddrList string
	SvcList  string
}

type Normalized struct {
	Text string
}

type Flattened struct {
	Text string
}

type LookedUp struct {
	All                string
	WithoutIneffectual string
}

func (MadeList) isResponse()   {}
func (Normalized) isResponse() {}
func (Flattened) isResponse()  {}
func (LookedUp) isResponse()   {}

// Runner owns the store and derived state for one pipeline session. All
// state is confined to the background goroutine; callers communicate only
// through the channels.
type Runner struct {
	requests  chan Request
	responses chan Response
	done      chan struct{}
}

// New starts a runner. Cancel the context to abandon in-progress state; the
// next runner starts from a clean store.
func New(ctx context.Context) *Runner {
	r := &Runner{
		requests:  make(chan Request, 1),
		responses: make(chan Response, 1),
		done:      make(chan struct{}),
	}
	go r.run(ctx)
	return r
}

// Requests is the stage-invocation channel. Close it to stop the runner.
func (r *Runner) Requests() chan<- Request {
	return r.requests
}

// Responses delivers stage results in the order the stages ran.
func (r *Runner) Responses() <-chan Response {
	return r.responses
}

// Done is closed when the runner goroutine exits.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)
	defer close(r.responses)

	store := model.NewStore()
	var flat []model.Row

	for {
		var req Request
		var ok bool
		select {
		case <-ctx.Done():
			return
		case req, ok = <-r.requests:
			if !ok {
				return
			}
		}

		var resp Response
		switch m := req.(type) {
		case MakeList:
			p := parser.NewConfigParser()
			p.SeedServices = m.SeedServices
			store = p.Parse(m.Config)
			flat = nil
			resp = MadeList{
				AddrList: engine.AddressListing(store),
				SvcList:  engine.ServiceListing(store),
			}
		case Normalize:
			resp = Normalized{Text: engine.RowsText(engine.NormalizedRows(store))}
		case Flatten:
			flat = engine.FlattenStore(store, engine.FlattenOptions{
				Addresses: m.Addresses,
				Services:  m.Services,
			})
			resp = Flattened{Text: engine.RowsText(flat)}
		case Lookup:
			result := engine.Lookup(store, flat, m.List, engine.LookupOptions{
				FqdnGeoMatchAll: m.FqdnGeoMatchAll,
			})
			resp = LookedUp{All: result.All, WithoutIneffectual: result.WithoutIneffectual}
		default:
			continue
		}

		select {
		case <-ctx.Done():
			return
		case r.responses <- resp:
		}
	}
}
