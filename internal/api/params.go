package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/graaaaa/playpulse/internal/app"
	"github.com/graaaaa/playpulse/internal/model"
)

// parseTime accepts RFC 3339 with or without fractional seconds.
func parseTime(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, model.Validationf("invalid %s: expected RFC 3339 timestamp", name)
	}
	t = t.UTC()
	return &t, nil
}

// parseRange reads ?start and ?end. Missing bounds stay nil and are filled
// from the event window by the use case.
func parseRange(r *http.Request) (app.RangeQuery, error) {
	q := r.URL.Query()
	start, err := parseTime("start", q.Get("start"))
	if err != nil {
		return app.RangeQuery{}, err
	}
	end, err := parseTime("end", q.Get("end"))
	if err != nil {
		return app.RangeQuery{}, err
	}
	return app.RangeQuery{Start: start, End: end}, nil
}

// parseSelector reads the optional ?event override.
func parseSelector(r *http.Request) (app.Selector, error) {
	v := r.URL.Query().Get("event")
	if v == "" {
		return app.Selector{}, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return app.Selector{}, model.Validationf("invalid event: %s", v)
	}
	return app.Selector{EventID: id}, nil
}

// parseLimit reads ?limit. Zero means the default.
func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 1 {
		return 0, model.Validationf("invalid limit: %s", v)
	}
	return limit, nil
}

// parseLookback reads ?lookback as a Go duration such as "6h".
func parseLookback(r *http.Request) (time.Duration, error) {
	v := r.URL.Query().Get("lookback")
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, model.Validationf("invalid lookback: %s", v)
	}
	return d, nil
}

// parseID reads the {id} path parameter.
func parseID(r *http.Request) (int64, error) {
	v := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, model.Validationf("invalid event id: %s", v)
	}
	return id, nil
}
