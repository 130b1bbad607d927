package sim

import (
	"fmt"
	"io"
	"strings"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/metrics"
	"github.com/rustyeddy/tradesim/strategy"
)

// RouteStatus is a route's final lifecycle state.
type RouteStatus struct {
	Route market.Route
	State strategy.RouteState
	Err   error
}

// Report is the full outcome of one run.
type Report struct {
	RunID   string
	Mode    string
	Steps   int
	Summary metrics.Summary
	Account broker.Account
	Routes  []RouteStatus
}

func (e *Engine) report(mode string) Report {
	rep := Report{
		RunID:   e.runID,
		Mode:    mode,
		Steps:   e.steps,
		Summary: e.rec.Summarize(),
		Account: e.bkr.Account(),
	}
	for _, rr := range e.routes {
		rep.Routes = append(rep.Routes, RouteStatus{
			Route: rr.route,
			State: rr.rt.State(),
			Err:   rr.rt.Err(),
		})
	}
	return rep
}

// Notes summarizes per-route outcomes for the run record; empty when every
// route terminated cleanly.
func (r Report) Notes() string {
	var parts []string
	for _, rs := range r.Routes {
		if rs.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: %v", rs.Route, rs.Err))
		}
	}
	return strings.Join(parts, "; ")
}

// Write prints the report in the standard summary layout, followed by the
// per-route states.
func (r Report) Write(w io.Writer) {
	metrics.WriteSummary(w, r.RunID, r.Summary)
	fmt.Fprintln(w, "Routes")
	fmt.Fprintln(w, "--------------------------------------------------")
	for _, rs := range r.Routes {
		if rs.Err != nil {
			fmt.Fprintf(w, "%-40s %s (%v)\n", rs.Route, rs.State, rs.Err)
		} else {
			fmt.Fprintf(w, "%-40s %s\n", rs.Route, rs.State)
		}
	}
	fmt.Fprintf(w, "\nSteps:         %d\n", r.Steps)
	fmt.Fprintf(w, "Balance:       %.2f %s\n", r.Account.Balance, r.Account.Currency)
}
