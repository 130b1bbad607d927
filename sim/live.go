package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/rustyeddy/tradesim/market"
)

type liveCandle struct {
	idx int
	c   market.Candle
	err error
}

// RunLive drives the engine from blocking feeds (websocket streams). Each
// route gets a pump goroutine feeding a single merge channel; candles are
// processed strictly serially through the same step pipeline as a backtest,
// so live execution keeps every ordering invariant. A feed error halts only
// its route; the run ends when the context is canceled or every feed has
// stopped.
func (e *Engine) RunLive(ctx context.Context) (Report, error) {
	e.start()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan liveCandle)
	var wg sync.WaitGroup

	for i, rr := range e.routes {
		wg.Add(1)
		go func(idx int, rr *routeRunner) {
			defer wg.Done()
			for {
				c, ok, err := rr.feed.Next(ctx)
				if err != nil {
					select {
					case merged <- liveCandle{idx: idx, err: err}:
					case <-ctx.Done():
					}
					return
				}
				if !ok {
					select {
					case merged <- liveCandle{idx: idx, err: errFeedDone}:
					case <-ctx.Done():
					}
					return
				}
				select {
				case merged <- liveCandle{idx: idx, c: c}:
				case <-ctx.Done():
					return
				}
			}
		}(i, rr)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	live := len(e.routes)
	for live > 0 {
		select {
		case <-ctx.Done():
			cancel()
			<-done
			return e.finish("live", nil)
		case lc := <-merged:
			rr := e.routes[lc.idx]
			if lc.err != nil {
				if rr.done {
					continue
				}
				rr.done = true
				live--
				if lc.err != errFeedDone {
					fmt.Printf("feed %s: %v; route halted\n", rr.route, lc.err)
					e.bkr.HaltRoute(rr.route)
				}
				continue
			}
			if rr.done {
				continue
			}
			if err := rr.check(lc.c); err != nil {
				fmt.Printf("%v; route halted\n", err)
				rr.done = true
				live--
				e.bkr.HaltRoute(rr.route)
				continue
			}
			rr.last = lc.c.OpenTime
			rr.hasLast = true
			if err := e.step(rr, lc.c); err != nil {
				cancel()
				<-done
				return e.finish("live", err)
			}
		}
	}

	cancel()
	<-done
	return e.finish("live", nil)
}

var errFeedDone = fmt.Errorf("feed closed")
