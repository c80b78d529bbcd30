package scores

import (
	"log/slog"

	"github.com/albapepper/scoracle-settlement/internal/config"
	"github.com/albapepper/scoracle-settlement/internal/provider"
	"github.com/albapepper/scoracle-settlement/internal/provider/bdl"
)

// Sources builds the provider feeds for every configured sport. Without a
// BallDontLie key there are no feeds and settlement runs on stored results.
func Sources(cfg *config.Config, logger *slog.Logger) []provider.GameSource {
	if cfg.BDLAPIKey == "" {
		logger.Warn("BALLDONTLIE_API_KEY not set, score refresh disabled")
		return nil
	}
	opts := bdl.Options{TeamName: cfg.BDLTeamName}

	var sources []provider.GameSource
	for _, sport := range cfg.Sports {
		switch sport {
		case "NBA":
			sources = append(sources, bdl.NewNBAHandler(cfg.BDLAPIKey, opts, logger))
		case "NFL":
			sources = append(sources, bdl.NewNFLHandler(cfg.BDLAPIKey, opts, logger))
		default:
			logger.Warn("No score feed for sport", "sport", sport)
		}
	}
	return sources
}
