package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into the services to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// Publisher receives domain events after the producing transaction commits.
// Implemented by ws.Hub and redis.EventBus.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Publishers fans an event out to every publisher. A failing publisher does
// not stop delivery to the others.
type Publishers []Publisher

// Publish implements Publisher.
func (ps Publishers) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clock returns the current time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// ──────────────────────────────────────────────────────────────────────────────
// notifier: post-commit event delivery shared by the services
// ──────────────────────────────────────────────────────────────────────────────

type notifier struct {
	publisher Publisher
}

// emit delivers events in a goroutine. Errors are logged, never returned: the
// state change they describe is already committed.
func (n *notifier) emit(events ...domain.Event) {
	if n.publisher == nil || len(events) == 0 {
		return
	}
	go n.deliver(events)
}

func (n *notifier) deliver(events []domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, ev := range events {
		if err := n.publisher.Publish(ctx, ev); err != nil {
			log.Printf("[events] WARN: publish %s for market %s: %v", ev.Type, ev.MarketID, err)
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Config conversions
// ──────────────────────────────────────────────────────────────────────────────

// tradeFeeRate returns the configured LP fee as a decimal fraction.
func tradeFeeRate(cfg *config.Config) decimal.Decimal {
	return decimal.NewFromFloat(cfg.Liquidity.TradeFeeRate)
}

// disputeFee converts the configured fee (currency units) to micro-units.
func disputeFee(cfg *config.Config) domain.Micros {
	return domain.Micros(decimal.NewFromFloat(cfg.Resolution.DisputeFee).Shift(6).Round(0).IntPart())
}

// disputeWindow returns the configured window or the default.
func disputeWindow(cfg *config.Config) time.Duration {
	if cfg.Resolution.DisputeWindow <= 0 {
		return domain.DefaultDisputeWindow
	}
	return cfg.Resolution.DisputeWindow
}

// clampPage applies the API's pagination bounds.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
