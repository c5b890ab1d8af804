// Package refprice supplies independent reference prices for the
// data-reality guard. A ticker WebSocket stream gives a continuously
// updated last price; a REST endpoint serves as fallback behind a short
// TTL cache. Both feeds report into the source health collector, so the
// guard's references are themselves scored like any other data source.
package refprice

import (
	"context"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Source names as registered with the health collector.
const (
	SourceStream = "refprice_ws"
	SourceREST   = "refprice_rest"
)

// Price is one reference price observation from a single source.
type Price struct {
	Source string
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

// StreamSource yields the last streamed price for a symbol.
type StreamSource interface {
	LatestPrice(symbol string) (Price, bool)
}

// RESTSource fetches the current price for a symbol on demand.
type RESTSource interface {
	FetchPrice(ctx context.Context, symbol string) (Price, error)
}

// Service combines the stream and REST feeds into the reference set the
// guard compares stored prices against. Either feed may be absent (nil);
// with no feeds every lookup returns empty and the guard fails closed.
type Service struct {
	stream       StreamSource
	rest         RESTSource
	restCache    *cache.Cache
	streamMaxAge time.Duration
	clk          clock.Clock
	log          zerolog.Logger
}

// NewService creates a reference price service. Stream prices older than
// streamMaxAge are discarded; REST responses are reused for cacheTTL so
// guard checks in quick succession do not hammer the endpoint.
func NewService(stream StreamSource, rest RESTSource, streamMaxAge, cacheTTL time.Duration, clk clock.Clock, log zerolog.Logger) *Service {
	if streamMaxAge <= 0 {
		streamMaxAge = 30 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Second
	}
	return &Service{
		stream:       stream,
		rest:         rest,
		restCache:    cache.New(cacheTTL, time.Minute),
		streamMaxAge: streamMaxAge,
		clk:          clk,
		log:          log.With().Str("component", "refprice").Logger(),
	}
}

// Prices returns every currently usable reference price for the symbol.
// An empty result means no reference is available, not that the price is
// fine; the caller decides how hard to fail.
func (s *Service) Prices(ctx context.Context, symbol string) []Price {
	var prices []Price

	if s.stream != nil {
		if p, ok := s.stream.LatestPrice(symbol); ok {
			age := s.clk.Now().Sub(p.At)
			if age <= s.streamMaxAge {
				prices = append(prices, p)
			} else {
				s.log.Debug().
					Str("symbol", symbol).
					Dur("age", age).
					Msg("Discarding stale stream price")
			}
		}
	}

	if s.rest != nil {
		if p, ok := s.cachedREST(symbol); ok {
			prices = append(prices, p)
		} else if p, err := s.rest.FetchPrice(ctx, symbol); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("REST reference price fetch failed")
		} else {
			s.restCache.Set(symbol, p, cache.DefaultExpiration)
			prices = append(prices, p)
		}
	}

	return prices
}

func (s *Service) cachedREST(symbol string) (Price, bool) {
	v, ok := s.restCache.Get(symbol)
	if !ok {
		return Price{}, false
	}
	p, ok := v.(Price)
	return p, ok
}
