package scores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-settlement/internal/provider"
	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

type stubSource struct {
	sport string
	games []settlement.GameRecord
	err   error

	mu    sync.Mutex
	calls int
	days  []settlement.Day
}

func (s *stubSource) Sport() string { return s.sport }

func (s *stubSource) GetGames(ctx context.Context, days []settlement.Day) ([]settlement.GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.days = days
	if s.err != nil {
		return nil, s.err
	}
	return s.games, nil
}

type stubWriter struct {
	mu      sync.Mutex
	written []settlement.GameRecord
	err     error
}

func (w *stubWriter) UpsertGames(ctx context.Context, games []settlement.GameRecord) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	w.written = append(w.written, games...)
	return len(games), nil
}

func record(id, sport string) settlement.GameRecord {
	d, _ := settlement.ParseDay("2024-03-01")
	return settlement.GameRecord{GameID: id, Sport: sport, Date: d, HomeTeam: "A", AwayTeam: "B", Status: settlement.GameScheduled}
}

func fixedNow() time.Time { return time.Date(2024, 3, 3, 18, 0, 0, 0, time.UTC) }

func TestRefreshScores_WritesEverySource(t *testing.T) {
	nba := &stubSource{sport: "NBA", games: []settlement.GameRecord{record("nba-1", "NBA"), record("nba-2", "NBA")}}
	nfl := &stubSource{sport: "NFL", games: []settlement.GameRecord{record("nfl-1", "NFL")}}
	w := &stubWriter{}

	r := New(w, []provider.GameSource{nba, nfl}, Config{LookbackDays: 2}, nil)
	r.now = fixedNow

	n, err := r.RefreshScores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, w.written, 3)

	require.Len(t, nba.days, 3)
	assert.Equal(t, "2024-03-01", nba.days[0].String())
	assert.Equal(t, "2024-03-03", nba.days[2].String())
}

func TestRefreshScores_FailingSourceDoesNotBlockOthers(t *testing.T) {
	nba := &stubSource{sport: "NBA", err: errors.New("connection refused")}
	nfl := &stubSource{sport: "NFL", games: []settlement.GameRecord{record("nfl-1", "NFL")}}
	w := &stubWriter{}

	r := New(w, []provider.GameSource{nba, nfl}, Config{}, nil)
	n, err := r.RefreshScores(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "NBA")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, n)
	assert.Len(t, w.written, 1)
}

func TestRefreshScores_WriterFailure(t *testing.T) {
	nba := &stubSource{sport: "NBA", games: []settlement.GameRecord{record("nba-1", "NBA")}}
	r := New(&stubWriter{err: errors.New("db down")}, []provider.GameSource{nba}, Config{}, nil)

	n, err := r.RefreshScores(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, err.Error(), "upsert games")
}

func TestRefreshScores_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	nba := &stubSource{sport: "NBA", err: errors.New("timeout")}
	r := New(&stubWriter{}, []provider.GameSource{nba}, Config{BreakerTimeout: time.Hour}, nil)

	for i := 0; i < 3; i++ {
		_, err := r.RefreshScores(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, 3, nba.calls)
	assert.Equal(t, "open", r.BreakerStates()["NBA"])

	_, err := r.RefreshScores(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "err=%v", err)
	assert.Equal(t, 3, nba.calls, "an open breaker must not call the feed")
}

func TestRefreshScores_NoSources(t *testing.T) {
	r := New(&stubWriter{}, nil, Config{}, nil)
	n, err := r.RefreshScores(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
