package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyeddy/tradesim/market"
)

// BinanceWS streams closed klines for one route over the Binance websocket
// API. Each message is parsed and only bars the exchange marks closed are
// emitted, so the engine sees the same bar-at-a-time sequence a historical
// feed produces. Reconnects with backoff on read errors; candles are
// re-checked for monotonicity by the driver either way.
type BinanceWS struct {
	route market.Route
	url   string

	out  chan market.Candle
	done chan struct{}

	readTimeout time.Duration
}

// DefaultBinanceURL is the spot stream endpoint.
const DefaultBinanceURL = "wss://stream.binance.com:9443/ws"

func NewBinanceWS(route market.Route, url string) *BinanceWS {
	if url == "" {
		url = DefaultBinanceURL
	}
	f := &BinanceWS{
		route:       route,
		url:         url,
		out:         make(chan market.Candle, 256),
		done:        make(chan struct{}),
		readTimeout: 90 * time.Second,
	}
	go f.run()
	return f
}

func (f *BinanceWS) streamName() string {
	sym := strings.ToLower(strings.ReplaceAll(f.route.Symbol, "_", ""))
	return fmt.Sprintf("%s@kline_%s", sym, f.route.Timeframe)
}

func (f *BinanceWS) run() {
	backoff := time.Second
	for {
		select {
		case <-f.done:
			return
		default:
		}

		if err := f.pump(); err != nil {
			log.Printf("feed: %s: %v (reconnecting in %s)", f.streamName(), err, backoff)
		}

		select {
		case <-f.done:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *BinanceWS) pump() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.url+"/"+f.streamName(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data),
			time.Now().Add(10*time.Second))
	})

	for {
		select {
		case <-f.done:
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		c, closed, err := f.parse(raw)
		if err != nil || !closed {
			continue
		}
		select {
		case f.out <- c:
		case <-f.done:
			return nil
		}
	}
}

type binanceKlineEvent struct {
	Event string `json:"e"`
	Kline struct {
		OpenTime int64  `json:"t"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

func (f *BinanceWS) parse(raw []byte) (market.Candle, bool, error) {
	var ev binanceKlineEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return market.Candle{}, false, err
	}
	if ev.Event != "kline" {
		return market.Candle{}, false, nil
	}

	k := ev.Kline
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad kline field %q: %w", s, err)
		}
		vals[i] = v
	}

	return market.Candle{
		Exchange:  f.route.Exchange,
		Symbol:    f.route.Symbol,
		Timeframe: f.route.Timeframe,
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, k.Closed, nil
}

// Next blocks until the next closed bar, end of stream, or ctx cancellation.
func (f *BinanceWS) Next(ctx context.Context) (market.Candle, bool, error) {
	select {
	case <-ctx.Done():
		return market.Candle{}, false, ctx.Err()
	case c, ok := <-f.out:
		if !ok {
			return market.Candle{}, false, nil
		}
		return c, true, nil
	case <-f.done:
		return market.Candle{}, false, nil
	}
}

func (f *BinanceWS) Close() error {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	return nil
}
