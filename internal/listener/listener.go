// Package listener provides a Postgres LISTEN/NOTIFY consumer. It holds a
// dedicated pgx connection (not from the pool) listening on the
// `scores_refreshed` and `settlement_completed` channels.
//
// A game_results trigger fires pg_notify('scores_refreshed', sport) when a
// game goes final, which wakes the settlement scheduler early. Every replica
// publishes settlement_completed after a pass that settled something, so
// peers can drop their cached entry responses.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	ChannelScoresRefreshed     = "scores_refreshed"
	ChannelSettlementCompleted = "settlement_completed"

	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Handlers receive notification payloads. A nil handler ignores its channel.
// Handlers run on the listener goroutine and must not block.
type Handlers struct {
	ScoresRefreshed     func(sport string)
	SettlementCompleted func(runID string)
}

func (h Handlers) channels() []string {
	var chans []string
	if h.ScoresRefreshed != nil {
		chans = append(chans, ChannelScoresRefreshed)
	}
	if h.SettlementCompleted != nil {
		chans = append(chans, ChannelSettlementCompleted)
	}
	return chans
}

// Start opens a dedicated connection and listens on the configured
// channels. It reconnects automatically on connection loss. Blocks until
// ctx is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, h Handlers, logger *slog.Logger) {
	if len(h.channels()) == 0 {
		return
	}
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, h, logger)
		if ctx.Err() != nil {
			logger.Info("Listener stopped (context cancelled)")
			return
		}

		logger.Error("Listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, h Handlers, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	for _, ch := range h.channels() {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return fmt.Errorf("LISTEN %s: %w", ch, err)
		}
	}
	logger.Info("Listener connected", "channels", h.channels())

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		dispatch(h, notification, logger)
	}
}

func dispatch(h Handlers, n *pgconn.Notification, logger *slog.Logger) {
	switch n.Channel {
	case ChannelScoresRefreshed:
		logger.Info("Scores refreshed notification", "sport", n.Payload)
		if h.ScoresRefreshed != nil {
			h.ScoresRefreshed(n.Payload)
		}
	case ChannelSettlementCompleted:
		logger.Debug("Settlement completed notification", "run_id", n.Payload, "from_pid", n.PID)
		if h.SettlementCompleted != nil {
			h.SettlementCompleted(n.Payload)
		}
	default:
		logger.Warn("Notification on unexpected channel", "channel", n.Channel)
	}
}
