package bdl

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York must resolve in minimal images

	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

const (
	nbaBaseURL = "https://api.balldontlie.io/v1"
	nflBaseURL = "https://api.balldontlie.io/nfl/v1"

	// TeamFullName and TeamShortName select which BDL team field becomes
	// GameRecord.HomeTeam/AwayTeam.
	TeamFullName  = "full_name"
	TeamShortName = "name"
)

// Options tune a GamesHandler. Zero values pick the production defaults.
type Options struct {
	BaseURL           string
	TeamName          string
	RequestsPerMinute int
}

// GamesHandler fetches and normalizes game results for one sport.
type GamesHandler struct {
	sport    string
	client   *Client
	teamName string
	location *time.Location
	logger   *slog.Logger
}

// NewNBAHandler creates an NBA games handler with the given API key.
func NewNBAHandler(apiKey string, opts Options, logger *slog.Logger) *GamesHandler {
	return newGamesHandler("NBA", nbaBaseURL, apiKey, opts, logger)
}

// NewNFLHandler creates an NFL games handler with the given API key.
func NewNFLHandler(apiKey string, opts Options, logger *slog.Logger) *GamesHandler {
	return newGamesHandler("NFL", nflBaseURL, apiKey, opts, logger)
}

func newGamesHandler(sport, baseURL, apiKey string, opts Options, logger *slog.Logger) *GamesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	if opts.RequestsPerMinute == 0 {
		opts.RequestsPerMinute = 600
	}
	if opts.TeamName == "" {
		opts.TeamName = TeamFullName
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &GamesHandler{
		sport:    sport,
		client:   NewClient(baseURL, apiKey, opts.RequestsPerMinute, logger),
		teamName: opts.TeamName,
		location: loc,
		logger:   logger.With("sport", sport),
	}
}

// Sport returns the sport code this handler serves.
func (h *GamesHandler) Sport() string { return h.sport }

// --------------------------------------------------------------------------
// Games (cursor-paginated)
// --------------------------------------------------------------------------

type bdlTeamRaw struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	FullName     string `json:"full_name"`
	Abbreviation string `json:"abbreviation"`
}

type bdlGameRaw struct {
	ID               int        `json:"id"`
	Date             string     `json:"date"`
	Status           string     `json:"status"`
	Period           int        `json:"period"`
	HomeTeamScore    *int       `json:"home_team_score"`
	VisitorTeamScore *int       `json:"visitor_team_score"`
	HomeTeam         bdlTeamRaw `json:"home_team"`
	VisitorTeam      bdlTeamRaw `json:"visitor_team"`
}

// GetGames fetches every game on the given days.
func (h *GamesHandler) GetGames(ctx context.Context, days []settlement.Day) ([]settlement.GameRecord, error) {
	if len(days) == 0 {
		return nil, nil
	}

	params := url.Values{"per_page": {"100"}}
	for _, d := range days {
		params.Add("dates[]", d.String())
	}

	var games []settlement.GameRecord
	for {
		page, err := h.client.fetchGamesPage(ctx, "/games", params)
		if err != nil {
			return nil, fmt.Errorf("fetch %s games: %w", h.sport, err)
		}

		for _, g := range page.Data {
			rec, err := h.normalizeGame(g)
			if err != nil {
				h.logger.Warn("Skipping game", "game_id", g.ID, "error", err)
				continue
			}
			games = append(games, rec)
		}

		if page.Meta.NextCursor == nil {
			break
		}
		params.Set("cursor", strconv.Itoa(*page.Meta.NextCursor))
	}
	return games, nil
}

func (h *GamesHandler) normalizeGame(raw bdlGameRaw) (settlement.GameRecord, error) {
	date, err := h.gameDay(raw.Date)
	if err != nil {
		return settlement.GameRecord{}, err
	}
	home, away := h.teamLabel(raw.HomeTeam), h.teamLabel(raw.VisitorTeam)
	if home == "" || away == "" {
		return settlement.GameRecord{}, fmt.Errorf("missing team name")
	}

	rec := settlement.GameRecord{
		GameID:   fmt.Sprintf("%s-%d", strings.ToLower(h.sport), raw.ID),
		Sport:    h.sport,
		Date:     date,
		HomeTeam: home,
		AwayTeam: away,
		Status:   gameStatus(raw.Status, raw.Period),
	}
	if rec.Status != settlement.GameScheduled {
		rec.HomeScore = raw.HomeTeamScore
		rec.AwayScore = raw.VisitorTeamScore
	}
	if rec.Status == settlement.GameFinal && (rec.HomeScore == nil || rec.AwayScore == nil) {
		return settlement.GameRecord{}, fmt.Errorf("final game without scores")
	}
	rec.Winner = rec.DeriveWinner()
	return rec, nil
}

// gameDay returns the local calendar day of a game. NBA sends a plain date;
// NFL sends a UTC kickoff timestamp, which is shifted to US Eastern so a
// late kickoff stays on its scheduled day.
func (h *GamesHandler) gameDay(raw string) (settlement.Day, error) {
	if len(raw) == len("2006-01-02") {
		return settlement.ParseDay(raw)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return settlement.Day{}, fmt.Errorf("parse game date %q: %w", raw, err)
	}
	if h.sport == "NBA" {
		return settlement.DayOf(t), nil
	}
	return settlement.DayOf(t.In(h.location)), nil
}

func (h *GamesHandler) teamLabel(t bdlTeamRaw) string {
	if h.teamName == TeamShortName && t.Name != "" {
		return t.Name
	}
	if t.FullName != "" {
		return t.FullName
	}
	return t.Name
}

// gameStatus maps BDL's free-form status to the game lifecycle. BDL puts
// "Final" (or "Final/OT") on finished games, a quarter or clock on live
// ones, and a tip-off time or timestamp on scheduled ones.
func gameStatus(status string, period int) settlement.GameStatus {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case strings.HasPrefix(s, "final"):
		return settlement.GameFinal
	case period > 0, isLiveStatus(s):
		return settlement.GameInProgress
	default:
		return settlement.GameScheduled
	}
}

func isLiveStatus(s string) bool {
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '/' }) {
		switch {
		case strings.Contains(tok, "qtr"),
			strings.Contains(tok, "quarter"),
			strings.Contains(tok, "half"),
			strings.Contains(tok, "progress"),
			strings.HasSuffix(tok, "ot"):
			return true
		}
	}
	return false
}
