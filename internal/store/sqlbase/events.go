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

// CreateEvent inserts e and sets its generated ID. A non-zero e.ID is kept.
func (d *DB) CreateEvent(ctx context.Context, e *model.Event) error {
	cols := []string{"name", "start_time", "end_time", "timezone", "description",
		"is_active", "is_hidden", "guild_scope_id", "created_at", "updated_at"}
	err := d.insertRow(ctx, "create_event", "events", cols, &e.ID,
		e.Name,
		d.t(e.StartTime),
		d.t(e.EndTime),
		e.Timezone,
		e.Description,
		e.IsActive,
		e.IsHidden,
		e.GuildScopeID,
		d.t(e.CreatedAt),
		d.t(e.UpdatedAt),
	)
	return model.Persistence("create event", err)
}

// GetEvent returns the event with the given id.
func (d *DB) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	row := d.queryRow(ctx, "get_event", `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, model.NotFoundf("event %d", id)
	}
	if err != nil {
		return model.Event{}, model.Persistence("get event", err)
	}
	return e, nil
}

// ListEvents returns events ordered by start time, newest first.
func (d *DB) ListEvents(ctx context.Context, f store.EventFilter) ([]model.Event, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + eventColumns + ` FROM events WHERE 1=1`)
	if f.Scope != "" {
		sb.WriteString(" AND guild_scope_id = ?")
		args = append(args, f.Scope)
	}
	if !f.IncludeHidden {
		sb.WriteString(" AND is_hidden = ?")
		args = append(args, false)
	}
	sb.WriteString(" ORDER BY start_time DESC, id DESC")

	rows, err := d.query(ctx, "list_events", sb.String(), args...)
	if err != nil {
		return nil, model.Persistence("list events", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, model.Persistence("scan event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("list events", err)
	}
	return events, nil
}

// UpdateEvent writes every mutable field of e. Activation is changed only
// through SetActiveEvent.
func (d *DB) UpdateEvent(ctx context.Context, e model.Event) error {
	const query = `
	UPDATE events
	SET name = ?, start_time = ?, end_time = ?, timezone = ?, description = ?, is_hidden = ?, updated_at = ?
	WHERE id = ?
	`

	res, err := d.exec(ctx, "update_event", query,
		e.Name,
		d.t(e.StartTime),
		d.t(e.EndTime),
		e.Timezone,
		e.Description,
		e.IsHidden,
		d.t(e.UpdatedAt),
		e.ID,
	)
	if err != nil {
		return model.Persistence("update event", err)
	}
	return expectOne(res, "event", e.ID)
}

// DeleteEvent removes the event together with its sessions and snapshots.
func (d *DB) DeleteEvent(ctx context.Context, id int64) error {
	return d.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		txdb := tx.(*DB)
		for _, table := range []string{"sessions", "member_snapshots", "game_snapshots"} {
			if _, err := txdb.exec(ctx, "delete_event_"+table, `DELETE FROM `+table+` WHERE event_id = ?`, id); err != nil {
				return model.Persistence("delete "+table, err)
			}
		}
		res, err := txdb.exec(ctx, "delete_event", `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return model.Persistence("delete event", err)
		}
		return expectOne(res, "event", id)
	})
}

// ActiveEvent returns the active event for scope, or nil when none is active.
func (d *DB) ActiveEvent(ctx context.Context, scope string) (*model.Event, error) {
	row := d.queryRow(ctx, "active_event",
		`SELECT `+eventColumns+` FROM events WHERE guild_scope_id = ? AND is_active = ? ORDER BY updated_at DESC, id DESC LIMIT 1`,
		scope, true)
	return optionalEvent(row, "active event")
}

// SetActiveEvent deactivates every event in scope and activates id. Both
// statements run in one transaction.
func (d *DB) SetActiveEvent(ctx context.Context, scope string, id int64, at time.Time) error {
	return d.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		txdb := tx.(*DB)
		if _, err := txdb.exec(ctx, "deactivate_events",
			`UPDATE events SET is_active = ?, updated_at = ? WHERE guild_scope_id = ? AND is_active = ?`,
			false, txdb.t(at), scope, true); err != nil {
			return model.Persistence("deactivate events", err)
		}
		res, err := txdb.exec(ctx, "activate_event",
			`UPDATE events SET is_active = ?, updated_at = ? WHERE id = ? AND guild_scope_id = ?`,
			true, txdb.t(at), id, scope)
		if err != nil {
			return model.Persistence("activate event", err)
		}
		return expectOne(res, "event", id)
	})
}

// LatestEvent returns the most recently created event in scope, or nil.
func (d *DB) LatestEvent(ctx context.Context, scope string) (*model.Event, error) {
	row := d.queryRow(ctx, "latest_event",
		`SELECT `+eventColumns+` FROM events WHERE guild_scope_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		scope)
	return optionalEvent(row, "latest event")
}

func optionalEvent(row *sql.Row, op string) (*model.Event, error) {
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Persistence(op, err)
	}
	return &e, nil
}

// expectOne maps a zero rows-affected result to ErrNotFound.
func expectOne(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return model.Persistence("rows affected", err)
	}
	if n == 0 {
		return model.NotFoundf("%s %d", kind, id)
	}
	return nil
}
