// Package scores is the score refresh gateway: it pulls recent results from
// the provider feeds and writes them into the game store.
//
// Each feed sits behind its own circuit breaker so a provider outage costs
// one fast failure per pass instead of a full HTTP timeout, and never
// blocks the other sports.
package scores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/albapepper/scoracle-settlement/internal/provider"
	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

// GameWriter persists provider results. Final rows must be left untouched.
type GameWriter interface {
	UpsertGames(ctx context.Context, games []settlement.GameRecord) (int, error)
}

// Config tunes the gateway.
type Config struct {
	// LookbackDays is how many days before today are re-polled each pass,
	// so late-finishing and corrected games are picked up.
	LookbackDays int
	// BreakerTimeout is how long a tripped breaker stays open.
	BreakerTimeout time.Duration
}

// Refresher implements settlement.ScoreRefresher.
type Refresher struct {
	writer   GameWriter
	sources  []provider.GameSource
	breakers map[string]*gobreaker.CircuitBreaker
	lookback int
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a refresher over the given feeds.
func New(writer GameWriter, sources []provider.GameSource, cfg Config, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}
	if cfg.LookbackDays < 0 {
		cfg.LookbackDays = 0
	}

	r := &Refresher{
		writer:   writer,
		sources:  sources,
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(sources)),
		lookback: cfg.LookbackDays,
		now:      time.Now,
		logger:   logger,
	}
	for _, src := range sources {
		r.breakers[src.Sport()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "scores-" + src.Sport(),
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info("Circuit breaker state changed",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return r
}

// RefreshScores fetches every feed for the lookback window and upserts the
// results. A failing feed does not stop the others; its error is joined
// into the returned error and the count covers the feeds that succeeded.
func (r *Refresher) RefreshScores(ctx context.Context) (int, error) {
	days := r.window()
	total := 0
	var errs []error

	for _, src := range r.sources {
		n, err := r.refreshSource(ctx, src, days)
		if err != nil {
			r.logger.Warn("Score refresh failed", "sport", src.Sport(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Sport(), err))
			continue
		}
		r.logger.Info("Scores refreshed", "sport", src.Sport(), "updated", n)
		total += n
	}
	return total, errors.Join(errs...)
}

func (r *Refresher) refreshSource(ctx context.Context, src provider.GameSource, days []settlement.Day) (int, error) {
	out, err := r.breakers[src.Sport()].Execute(func() (interface{}, error) {
		return src.GetGames(ctx, days)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch games: %w", err)
	}
	games := out.([]settlement.GameRecord)

	n, err := r.writer.UpsertGames(ctx, games)
	if err != nil {
		return n, fmt.Errorf("upsert games: %w", err)
	}
	return n, nil
}

// window returns today and the LookbackDays before it, oldest first.
func (r *Refresher) window() []settlement.Day {
	today := settlement.DayOf(r.now().UTC())
	days := make([]settlement.Day, 0, r.lookback+1)
	for i := r.lookback; i >= 0; i-- {
		days = append(days, today.AddDays(-i))
	}
	return days
}

// BreakerStates reports each feed's breaker state, keyed by sport.
func (r *Refresher) BreakerStates() map[string]string {
	states := make(map[string]string, len(r.breakers))
	for sport, cb := range r.breakers {
		states[sport] = cb.State().String()
	}
	return states
}
