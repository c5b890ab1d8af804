package refprice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/health"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// tickerResponse is the REST ticker endpoint payload.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	TS     int64  `json:"ts"` // exchange timestamp, milliseconds
}

// RESTClient fetches reference prices over HTTP. A circuit breaker keeps a
// dead endpoint from stalling guard checks with repeated timeouts; while
// the breaker is open the client fails immediately and the stream price
// (or NO_REFERENCE) takes over.
type RESTClient struct {
	http      *resty.Client
	breaker   *gobreaker.CircuitBreaker
	collector *health.MetricsCollector
	clk       clock.Clock
	log       zerolog.Logger
}

// NewRESTClient creates a REST reference price client with retry and a
// circuit breaker.
func NewRESTClient(baseURL string, timeout time.Duration, collector *health.MetricsCollector, clk clock.Clock, log zerolog.Logger) *RESTClient {
	lg := log.With().Str("component", "refprice_rest").Logger()

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "refprice-rest",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Reference price circuit breaker state changed")
		},
	})

	return &RESTClient{
		http:      httpClient,
		breaker:   breaker,
		collector: collector,
		clk:       clk,
		log:       lg,
	}
}

// FetchPrice fetches the current ticker price for a symbol.
func (c *RESTClient) FetchPrice(ctx context.Context, symbol string) (Price, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchTicker(ctx, symbol)
	})
	if err != nil {
		if err != gobreaker.ErrOpenState && err != gobreaker.ErrTooManyRequests {
			c.collector.RecordRequest(SourceREST, false, ctx.Err() == context.DeadlineExceeded, false)
			c.collector.RecordError(SourceREST, false)
		}
		return Price{}, err
	}

	ticker := result.(*tickerResponse)

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		c.collector.RecordError(SourceREST, false)
		return Price{}, fmt.Errorf("failed to parse ticker price %q: %w", ticker.Price, err)
	}
	if !price.IsPositive() {
		c.collector.RecordError(SourceREST, false)
		return Price{}, fmt.Errorf("ticker price for %s is not positive: %s", symbol, ticker.Price)
	}

	c.collector.RecordRequest(SourceREST, true, false, false)
	c.collector.RecordData(SourceREST, time.UnixMilli(ticker.TS).UTC(), 3, 3)
	c.collector.RecordValue(SourceREST, "price", price.InexactFloat64())

	return Price{
		Source: SourceREST,
		Symbol: symbol,
		Price:  price,
		At:     c.clk.Now().UTC(),
	}, nil
}

// fetchTicker performs the raw HTTP call, wrapped by the breaker.
func (c *RESTClient) fetchTicker(ctx context.Context, symbol string) (*tickerResponse, error) {
	var result tickerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get("/ticker")
	if err != nil {
		return nil, fmt.Errorf("get ticker: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get ticker: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}
