package sqlbase

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// dbTime scans a timestamp stored either natively (postgres) or as
// fixed-width TEXT (sqlite).
type dbTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (t *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = x.UTC(), true
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(store.TimeFormat, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const eventColumns = `id, name, start_time, end_time, timezone, description, is_active, is_hidden, guild_scope_id, created_at, updated_at`

func scanEvent(sc scanner) (model.Event, error) {
	var e model.Event
	var start, end, created, updated dbTime
	var timezone, description sql.NullString
	if err := sc.Scan(
		&e.ID, &e.Name, &start, &end, &timezone, &description,
		&e.IsActive, &e.IsHidden, &e.GuildScopeID, &created, &updated,
	); err != nil {
		return model.Event{}, err
	}
	e.StartTime = start.Time
	e.EndTime = end.Time
	e.Timezone = timezone.String
	e.Description = description.String
	e.CreatedAt = created.Time
	e.UpdatedAt = updated.Time
	return e, nil
}

const sessionColumns = `id, user_id, game_name, start_time, end_time, duration_minutes, event_id`

func scanSession(sc scanner) (model.Session, error) {
	var (
		s          model.Session
		start, end dbTime
		minutes    sql.NullInt64
	)
	if err := sc.Scan(&s.ID, &s.UserID, &s.GameName, &start, &end, &minutes, &s.EventID); err != nil {
		return model.Session{}, err
	}
	s.StartTime = start.Time
	s.EndTime = end.ptr()
	if minutes.Valid {
		m := int(minutes.Int64)
		s.DurationMinutes = &m
	}
	return s, nil
}

func scanMemberSnapshot(sc scanner) (model.MemberSnapshot, error) {
	var (
		m  model.MemberSnapshot
		ts dbTime
	)
	if err := sc.Scan(&m.ID, &ts, &m.TotalMembers, &m.OnlineMembers, &m.EventID); err != nil {
		return model.MemberSnapshot{}, err
	}
	m.Timestamp = ts.Time
	return m, nil
}

func scanGameSnapshot(sc scanner) (model.GameSnapshot, error) {
	var (
		g  model.GameSnapshot
		ts dbTime
	)
	if err := sc.Scan(&g.ID, &ts, &g.GameName, &g.PlayerCount, &g.EventID); err != nil {
		return model.GameSnapshot{}, err
	}
	g.Timestamp = ts.Time
	return g, nil
}

// nullInt converts an optional int to a driver value.
func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
