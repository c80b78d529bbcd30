// Package provider defines the contract between the score refresh gateway
// and the third-party result feeds it polls.
package provider

import (
	"context"

	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

// GameSource fetches game results for one sport from an external feed,
// already normalized into GameRecords.
type GameSource interface {
	// Sport returns the upper-case sport code the source serves.
	Sport() string
	// GetGames returns every game the feed knows for the given days.
	GetGames(ctx context.Context, days []settlement.Day) ([]settlement.GameRecord, error)
}
