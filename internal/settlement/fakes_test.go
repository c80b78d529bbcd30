package settlement

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
)

// memEntries is a test-only EntryStore with compare-and-swap settlement.
type memEntries struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	order    []string
	failOn   map[string]error
	fetchErr error
	settles  int // successful open -> settled transitions
	attempts int
}

func newMemEntries(entries ...Entry) *memEntries {
	m := &memEntries{entries: make(map[string]*Entry), failOn: make(map[string]error)}
	for _, e := range entries {
		e := e
		if e.Status == "" {
			e.Status = EntryOpen
		}
		if e.Market == "" {
			e.Market = defaultMarket
		}
		m.entries[e.EntryID] = &e
		m.order = append(m.order, e.EntryID)
	}
	return m
}

func (m *memEntries) FetchOpenEntries(ctx context.Context, market, sport string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []Entry
	for _, id := range m.order {
		e := m.entries[id]
		if e.Status != EntryOpen || e.Market != market {
			continue
		}
		if sport != "" && !strings.EqualFold(e.Sport, sport) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memEntries) TrySettleEntry(ctx context.Context, entryID string, result Outcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if err, ok := m.failOn[entryID]; ok {
		return false, err
	}
	e, ok := m.entries[entryID]
	if !ok {
		return false, errors.New("entry not found")
	}
	if e.Status != EntryOpen {
		return false, nil
	}
	e.Status = EntrySettled
	e.Result = result
	m.settles++
	return true, nil
}

// settleBehind marks an entry settled as if another writer got there first,
// after it has been read.
func (m *memEntries) settleBehind(entryID string, result Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entryID].Status = EntrySettled
	m.entries[entryID].Result = result
}

func (m *memEntries) get(id string) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.entries[id]
}

// memGames is a test-only GameStore.
type memGames struct {
	mu       sync.Mutex
	games    []GameRecord
	fetchErr error
	calls    int
	lastFrom Day
}

func (g *memGames) FetchFinalizedGames(ctx context.Context, sport string, since Day) ([]GameRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastFrom = since
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	var out []GameRecord
	for _, gm := range g.games {
		if sport != "" && !strings.EqualFold(gm.Sport, sport) {
			continue
		}
		if !since.IsZero() && gm.Date.Before(since) {
			continue
		}
		out = append(out, gm)
	}
	return out, nil
}

// mockRefresher is a testify mock of ScoreRefresher.
type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) RefreshScores(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func day(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func intPtr(n int) *int { return &n }

func finalGame(id, sport, date, home, away string, homeScore, awayScore int) GameRecord {
	g := GameRecord{
		GameID:    id,
		Sport:     sport,
		Date:      day(date),
		HomeTeam:  home,
		AwayTeam:  away,
		Status:    GameFinal,
		HomeScore: intPtr(homeScore),
		AwayScore: intPtr(awayScore),
	}
	g.Winner = g.DeriveWinner()
	return g
}

func openEntry(id, sport, date, selected, opponent string) Entry {
	return Entry{
		EntryID:      id,
		OwnerID:      "user-1",
		Date:         day(date),
		SelectedTeam: selected,
		OpponentTeam: opponent,
		Market:       defaultMarket,
		Sport:        sport,
		Status:       EntryOpen,
	}
}
