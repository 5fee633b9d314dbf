package api

import (
	"net/http"

	"github.com/graaaaa/playpulse/internal/app"
)

// handleCurrent handles GET /api/current.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelector(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.dashboard.Current(r.Context(), sel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMemberHistory handles GET /api/member-history?start&end.
func (s *Server) handleMemberHistory(w http.ResponseWriter, r *http.Request) {
	sel, rng, err := parseWindowed(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.dashboard.MemberHistory(r.Context(), sel, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleTopGames handles GET /api/top-games?start&end&limit.
func (s *Server) handleTopGames(w http.ResponseWriter, r *http.Request) {
	sel, rng, err := parseWindowed(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.dashboard.TopGames(r.Context(), sel, rng, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRecentActivity handles GET /api/recent-activity?limit&lookback.
func (s *Server) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelector(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lookback, err := parseLookback(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.dashboard.RecentActivity(r.Context(), sel, app.ActivityQuery{Lookback: lookback, Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseWindowed(r *http.Request) (app.Selector, app.RangeQuery, error) {
	sel, err := parseSelector(r)
	if err != nil {
		return app.Selector{}, app.RangeQuery{}, err
	}
	rng, err := parseRange(r)
	if err != nil {
		return app.Selector{}, app.RangeQuery{}, err
	}
	return sel, rng, nil
}
