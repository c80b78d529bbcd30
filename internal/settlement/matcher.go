package settlement

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEntry marks an entry that cannot be matched because its own
// data is incomplete. It is a per-entry failure, not a fault in the matcher.
var ErrMalformedEntry = errors.New("malformed entry")

// MatchFault reports a broken matching contract, e.g. a candidate game that
// is not final. It signals a logic bug in the caller and aborts the run.
type MatchFault struct {
	EntryID string
	GameID  string
	Reason  string
}

func (f *MatchFault) Error() string {
	return fmt.Sprintf("match fault: entry %s vs game %s: %s", f.EntryID, f.GameID, f.Reason)
}

// Match is the result of matching one entry against the finalized games.
type Match struct {
	// Game is the selected record, nil when nothing matched.
	Game *GameRecord
	// Candidates counts every record that satisfied the rule. More than one
	// means the provider sent duplicates; the first in input order wins.
	Candidates int
}

// Found reports whether a game matched.
func (m Match) Found() bool {
	return m.Game != nil
}

// MatchEntry finds the finalized game that represents the same real-world
// game as the entry: same day and the same unordered team pair, compared
// case-insensitively with no other normalization.
func MatchEntry(e Entry, games []GameRecord) (Match, error) {
	if e.Date.IsZero() || e.SelectedTeam == "" || e.OpponentTeam == "" {
		return Match{}, fmt.Errorf("%w: entry %s needs date, selected and opponent team", ErrMalformedEntry, e.EntryID)
	}

	var m Match
	for i := range games {
		g := &games[i]
		if g.Status != GameFinal {
			return Match{}, &MatchFault{EntryID: e.EntryID, GameID: g.GameID, Reason: fmt.Sprintf("candidate status %q is not final", g.Status)}
		}
		if g.Date.IsZero() {
			return Match{}, &MatchFault{EntryID: e.EntryID, GameID: g.GameID, Reason: "candidate has no date"}
		}
		if g.Date != e.Date || !samePair(e.SelectedTeam, e.OpponentTeam, g.HomeTeam, g.AwayTeam) {
			continue
		}
		m.Candidates++
		if m.Game == nil {
			m.Game = g
		}
	}
	return m, nil
}

// OutcomeFor returns win iff the selected team is the game's winner.
// A final game without a winner (a tie) settles as a loss.
func OutcomeFor(e Entry, g GameRecord) Outcome {
	winner := g.Winner
	if winner == "" {
		winner = g.DeriveWinner()
	}
	if winner != "" && strings.EqualFold(e.SelectedTeam, winner) {
		return Win
	}
	return Loss
}

func samePair(a, b, home, away string) bool {
	return (strings.EqualFold(a, home) && strings.EqualFold(b, away)) ||
		(strings.EqualFold(a, away) && strings.EqualFold(b, home))
}
