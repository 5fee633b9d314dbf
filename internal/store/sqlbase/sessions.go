package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// InsertSession inserts s and sets its generated ID. A non-zero s.ID is kept.
func (d *DB) InsertSession(ctx context.Context, s *model.Session) error {
	cols := []string{"user_id", "game_name", "start_time", "end_time", "duration_minutes", "event_id"}

	var end any
	if s.EndTime != nil {
		end = d.t(*s.EndTime)
	}
	err := d.insertRow(ctx, "insert_session", "sessions", cols, &s.ID,
		s.UserID,
		s.GameName,
		d.t(s.StartTime),
		end,
		nullInt(s.DurationMinutes),
		s.EventID,
	)
	return model.Persistence("insert session", err)
}

// FindOpenSession returns the open session for the pair, whichever event it
// belongs to, or nil.
func (d *DB) FindOpenSession(ctx context.Context, userID, game string) (*model.Session, error) {
	row := d.queryRow(ctx, "find_open_session",
		`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND game_name = ? AND end_time IS NULL
		ORDER BY start_time DESC, id DESC LIMIT 1`,
		userID, game)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Persistence("find open session", err)
	}
	return &s, nil
}

// CloseSession sets the end time and duration of an open session. It reports
// false when the session was already closed or does not exist.
func (d *DB) CloseSession(ctx context.Context, id int64, end time.Time, minutes int) (bool, error) {
	res, err := d.exec(ctx, "close_session",
		`UPDATE sessions SET end_time = ?, duration_minutes = ? WHERE id = ? AND end_time IS NULL`,
		d.t(end), minutes, id)
	if err != nil {
		return false, model.Persistence("close session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, model.Persistence("rows affected", err)
	}
	return n > 0, nil
}

// ListSessions returns sessions matching f.
func (d *DB) ListSessions(ctx context.Context, f store.SessionFilter) ([]model.Session, error) {
	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString(`SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`)
	if f.EventID != 0 {
		sb.WriteString(" AND event_id = ?")
		args = append(args, f.EventID)
	}
	if f.UserID != "" {
		sb.WriteString(" AND user_id = ?")
		args = append(args, f.UserID)
	}
	if f.GameName != "" {
		sb.WriteString(" AND game_name = ?")
		args = append(args, f.GameName)
	}
	args = d.rangeClause(&sb, args, "start_time", f.Started)
	if f.OpenOnly {
		sb.WriteString(" AND end_time IS NULL")
	}
	if !f.TouchedSince.IsZero() {
		sb.WriteString(" AND (start_time >= ? OR end_time >= ?)")
		ts := d.t(f.TouchedSince)
		args = append(args, ts, ts)
	}

	if f.Newest {
		sb.WriteString(" ORDER BY COALESCE(end_time, start_time) DESC, id DESC")
	} else {
		sb.WriteString(" ORDER BY start_time ASC, id ASC")
	}
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := d.query(ctx, "list_sessions", sb.String(), args...)
	if err != nil {
		return nil, model.Persistence("list sessions", err)
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, model.Persistence("scan session", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("list sessions", err)
	}
	return sessions, nil
}

// GameSessionTotals groups the sessions started in rng by game. Open
// sessions count toward SessionCount and UniquePlayers but contribute no
// ClosedMinutes.
func (d *DB) GameSessionTotals(ctx context.Context, eventID int64, rng model.Range) ([]store.GameSessionTotal, error) {
	var sb strings.Builder
	args := []any{eventID}

	sb.WriteString(`
	SELECT
		game_name,
		COUNT(*) AS session_count,
		COALESCE(SUM(CASE WHEN end_time IS NOT NULL THEN duration_minutes ELSE 0 END), 0) AS closed_minutes,
		COUNT(DISTINCT user_id) AS unique_players
	FROM sessions
	WHERE event_id = ?`)
	args = d.rangeClause(&sb, args, "start_time", rng)
	sb.WriteString(" GROUP BY game_name")

	rows, err := d.query(ctx, "game_session_totals", sb.String(), args...)
	if err != nil {
		return nil, model.Persistence("game session totals", err)
	}
	defer rows.Close()

	var totals []store.GameSessionTotal
	for rows.Next() {
		var t store.GameSessionTotal
		if err := rows.Scan(&t.GameName, &t.SessionCount, &t.ClosedMinutes, &t.UniquePlayers); err != nil {
			return nil, model.Persistence("scan game session total", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("game session totals", err)
	}
	return totals, nil
}

// SessionSummary aggregates every session of the event in one query.
func (d *DB) SessionSummary(ctx context.Context, eventID int64) (store.SessionSummary, error) {
	var s store.SessionSummary
	err := d.queryRow(ctx, "session_summary", `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN end_time IS NOT NULL THEN duration_minutes ELSE 0 END), 0),
			COUNT(DISTINCT game_name)
		FROM sessions
		WHERE event_id = ?
	`, eventID).Scan(&s.TotalSessions, &s.ClosedMinutes, &s.DistinctGames)
	if err != nil {
		return store.SessionSummary{}, model.Persistence("session summary", err)
	}
	return s, nil
}
