package bdl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

func mustDay(t *testing.T, s string) settlement.Day {
	t.Helper()
	d, err := settlement.ParseDay(s)
	require.NoError(t, err)
	return d
}

func TestGetGames_PaginatesAndNormalizes(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/games", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, r.URL.Query()["dates[]"])

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprint(w, `{"data":[
				{"id":1,"date":"2024-03-01","status":"Final","period":4,
				 "home_team_score":98,"visitor_team_score":104,
				 "home_team":{"id":16,"name":"Heat","full_name":"Miami Heat"},
				 "visitor_team":{"id":2,"name":"Celtics","full_name":"Boston Celtics"}}
			],"meta":{"next_cursor":7}}`)
			return
		}
		assert.Equal(t, "7", r.URL.Query().Get("cursor"))
		fmt.Fprint(w, `{"data":[
			{"id":2,"date":"2024-03-02","status":"3rd Qtr","period":3,
			 "home_team_score":60,"visitor_team_score":55,
			 "home_team":{"id":20,"name":"Knicks","full_name":"New York Knicks"},
			 "visitor_team":{"id":2,"name":"Celtics","full_name":"Boston Celtics"}},
			{"id":3,"date":"2024-03-02","status":"7:30 pm ET","period":0,
			 "home_team_score":0,"visitor_team_score":0,
			 "home_team":{"id":14,"name":"Lakers","full_name":"Los Angeles Lakers"},
			 "visitor_team":{"id":10,"name":"Warriors","full_name":"Golden State Warriors"}}
		],"meta":{"next_cursor":null}}`)
	}))
	defer srv.Close()

	h := NewNBAHandler("test-key", Options{BaseURL: srv.URL, RequestsPerMinute: 6000}, nil)
	games, err := h.GetGames(context.Background(), []settlement.Day{
		mustDay(t, "2024-03-01"), mustDay(t, "2024-03-02"),
	})
	require.NoError(t, err)
	require.Len(t, games, 3)
	assert.Equal(t, int32(2), requests.Load())

	final := games[0]
	assert.Equal(t, "nba-1", final.GameID)
	assert.Equal(t, "NBA", final.Sport)
	assert.Equal(t, settlement.GameFinal, final.Status)
	assert.Equal(t, "Miami Heat", final.HomeTeam)
	assert.Equal(t, "Boston Celtics", final.Winner)

	assert.Equal(t, settlement.GameInProgress, games[1].Status)
	assert.Empty(t, games[1].Winner)

	assert.Equal(t, settlement.GameScheduled, games[2].Status)
	assert.Nil(t, games[2].HomeScore)
}

func TestGetGames_NFLShiftsKickoffToEastern(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":9,"date":"2024-09-06T00:20:00.000Z","status":"Final/OT",
			 "home_team_score":20,"visitor_team_score":20,
			 "home_team":{"id":1,"name":"Chiefs","full_name":"Kansas City Chiefs"},
			 "visitor_team":{"id":2,"name":"Ravens","full_name":"Baltimore Ravens"}}
		],"meta":{}}`)
	}))
	defer srv.Close()

	h := NewNFLHandler("k", Options{BaseURL: srv.URL, TeamName: TeamShortName, RequestsPerMinute: 6000}, nil)
	games, err := h.GetGames(context.Background(), []settlement.Day{mustDay(t, "2024-09-05")})
	require.NoError(t, err)
	require.Len(t, games, 1)

	g := games[0]
	assert.Equal(t, "nfl-9", g.GameID)
	assert.Equal(t, "2024-09-05", g.Date.String())
	assert.Equal(t, "Chiefs", g.HomeTeam)
	assert.Equal(t, settlement.GameFinal, g.Status)
	assert.Empty(t, g.Winner, "a tie has no winner")
}

func TestGetGames_SkipsBrokenRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":1,"date":"not-a-date","status":"Final",
			 "home_team":{"full_name":"A"},"visitor_team":{"full_name":"B"}},
			{"id":2,"date":"2024-03-01","status":"Final",
			 "home_team":{"full_name":"A"},"visitor_team":{"full_name":"B"}}
		],"meta":{}}`)
	}))
	defer srv.Close()

	h := NewNBAHandler("k", Options{BaseURL: srv.URL, RequestsPerMinute: 6000}, nil)
	games, err := h.GetGames(context.Background(), []settlement.Day{mustDay(t, "2024-03-01")})
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestGetGames_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := NewNBAHandler("k", Options{BaseURL: srv.URL, RequestsPerMinute: 6000}, nil)
	_, err := h.GetGames(context.Background(), []settlement.Day{mustDay(t, "2024-03-01")})
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.Code)
	assert.Contains(t, err.Error(), "503")
}

func TestGetGames_RetriesAfterThrottle(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":9,"date":"2024-03-01","status":"Final",
			"home_team_score":100,"visitor_team_score":90,
			"home_team":{"full_name":"Miami Heat"},"visitor_team":{"full_name":"Boston Celtics"}}],"meta":{}}`)
	}))
	defer srv.Close()

	h := NewNBAHandler("k", Options{BaseURL: srv.URL, RequestsPerMinute: 6000}, nil)
	games, err := h.GetGames(context.Background(), []settlement.Day{mustDay(t, "2024-03-01")})
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Miami Heat", games[0].Winner)
	assert.Equal(t, int32(2), requests.Load())
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Second, retryAfter(""))
	assert.Equal(t, 5*time.Second, retryAfter("5"))
	assert.Equal(t, 30*time.Second, retryAfter("600"))
}

func TestGameStatus(t *testing.T) {
	tests := map[string]struct {
		status string
		period int
		want   settlement.GameStatus
	}{
		"final":          {"Final", 4, settlement.GameFinal},
		"final overtime": {"Final/OT", 5, settlement.GameFinal},
		"quarter":        {"2nd Qtr", 2, settlement.GameInProgress},
		"halftime":       {"Halftime", 0, settlement.GameInProgress},
		"overtime":       {"OT", 0, settlement.GameInProgress},
		"in progress":    {"In Progress", 0, settlement.GameInProgress},
		"tip-off time":   {"7:00 pm ET", 0, settlement.GameScheduled},
		"timestamp":      {"2024-03-01T00:00:00Z", 0, settlement.GameScheduled},
		"empty":          {"", 0, settlement.GameScheduled},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, gameStatus(tc.status, tc.period))
		})
	}
}
