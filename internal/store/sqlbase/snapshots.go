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

// InsertMemberSnapshot appends a member snapshot and sets its ID.
func (d *DB) InsertMemberSnapshot(ctx context.Context, s *model.MemberSnapshot) error {
	err := d.insertRow(ctx, "insert_member_snapshot", "member_snapshots",
		[]string{"ts", "total_members", "online_members", "event_id"}, &s.ID,
		d.t(s.Timestamp), s.TotalMembers, s.OnlineMembers, s.EventID)
	return model.Persistence("insert member snapshot", err)
}

// InsertGameSnapshot appends a game snapshot and sets its ID.
func (d *DB) InsertGameSnapshot(ctx context.Context, s *model.GameSnapshot) error {
	err := d.insertRow(ctx, "insert_game_snapshot", "game_snapshots",
		[]string{"ts", "game_name", "player_count", "event_id"}, &s.ID,
		d.t(s.Timestamp), s.GameName, s.PlayerCount, s.EventID)
	return model.Persistence("insert game snapshot", err)
}

// LatestMemberSnapshot returns the newest member snapshot, or nil.
func (d *DB) LatestMemberSnapshot(ctx context.Context, eventID int64) (*model.MemberSnapshot, error) {
	row := d.queryRow(ctx, "latest_member_snapshot", `
		SELECT id, ts, total_members, online_members, event_id
		FROM member_snapshots
		WHERE event_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`, eventID)
	m, err := scanMemberSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Persistence("latest member snapshot", err)
	}
	return &m, nil
}

// MemberSnapshots returns member snapshots in rng, oldest first.
func (d *DB) MemberSnapshots(ctx context.Context, eventID int64, rng model.Range) ([]model.MemberSnapshot, error) {
	var sb strings.Builder
	args := []any{eventID}
	sb.WriteString(`SELECT id, ts, total_members, online_members, event_id FROM member_snapshots WHERE event_id = ?`)
	args = d.rangeClause(&sb, args, "ts", rng)
	sb.WriteString(" ORDER BY ts ASC, id ASC")

	rows, err := d.query(ctx, "member_snapshots", sb.String(), args...)
	if err != nil {
		return nil, model.Persistence("member snapshots", err)
	}
	defer rows.Close()

	snapshots := []model.MemberSnapshot{}
	for rows.Next() {
		m, err := scanMemberSnapshot(rows)
		if err != nil {
			return nil, model.Persistence("scan member snapshot", err)
		}
		snapshots = append(snapshots, m)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("member snapshots", err)
	}
	return snapshots, nil
}

// GameSnapshotsSince returns game snapshots taken at or after since, newest first.
func (d *DB) GameSnapshotsSince(ctx context.Context, eventID int64, since time.Time) ([]model.GameSnapshot, error) {
	rows, err := d.query(ctx, "game_snapshots_since", `
		SELECT id, ts, game_name, player_count, event_id
		FROM game_snapshots
		WHERE event_id = ? AND ts >= ?
		ORDER BY ts DESC, id DESC
	`, eventID, d.t(since))
	if err != nil {
		return nil, model.Persistence("game snapshots", err)
	}
	defer rows.Close()

	snapshots := []model.GameSnapshot{}
	for rows.Next() {
		g, err := scanGameSnapshot(rows)
		if err != nil {
			return nil, model.Persistence("scan game snapshot", err)
		}
		snapshots = append(snapshots, g)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("game snapshots", err)
	}
	return snapshots, nil
}

// GameSnapshotTotals groups the game snapshots in rng by game.
func (d *DB) GameSnapshotTotals(ctx context.Context, eventID int64, rng model.Range) ([]store.GameSnapshotTotal, error) {
	var sb strings.Builder
	args := []any{eventID}
	sb.WriteString(`
	SELECT game_name, COUNT(*) AS samples, COALESCE(MAX(player_count), 0) AS max_players
	FROM game_snapshots
	WHERE event_id = ?`)
	args = d.rangeClause(&sb, args, "ts", rng)
	sb.WriteString(" GROUP BY game_name")

	rows, err := d.query(ctx, "game_snapshot_totals", sb.String(), args...)
	if err != nil {
		return nil, model.Persistence("game snapshot totals", err)
	}
	defer rows.Close()

	var totals []store.GameSnapshotTotal
	for rows.Next() {
		var t store.GameSnapshotTotal
		if err := rows.Scan(&t.GameName, &t.Samples, &t.MaxPlayers); err != nil {
			return nil, model.Persistence("scan game snapshot total", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("game snapshot totals", err)
	}
	return totals, nil
}

// MemberSnapshotSummary returns sample count, peak and average online members.
func (d *DB) MemberSnapshotSummary(ctx context.Context, eventID int64) (store.MemberSummary, error) {
	var s store.MemberSummary
	err := d.queryRow(ctx, "member_snapshot_summary", `
		SELECT COUNT(*), COALESCE(MAX(online_members), 0), COALESCE(AVG(online_members), 0)
		FROM member_snapshots
		WHERE event_id = ?
	`, eventID).Scan(&s.Samples, &s.PeakOnline, &s.AvgOnline)
	if err != nil {
		return store.MemberSummary{}, model.Persistence("member snapshot summary", err)
	}
	return s, nil
}
