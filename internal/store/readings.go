package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"sensorsync/internal/telemetry"
)

// Append durably persists one reading with synced=0 and returns the assigned
// id. The insert is a single statement, so it is atomic: a reading is never
// partially written.
func (s *Store) Append(ctx context.Context, r telemetry.Reading) (int64, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return 0, storageErr("encode payload", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (device_id, ts_utc, ts_local, payload) VALUES (?, ?, ?, ?)`,
		r.DeviceID,
		r.TimestampUTC.UTC().Format(time.RFC3339Nano),
		r.TimestampLocal.Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return 0, storageErr("append reading", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("append reading", err)
	}
	return id, nil
}

// UnsyncedBatch returns up to limit unsynced readings ordered by ascending id
// (oldest first), keeping batches temporally contiguous and bounding
// staleness. The store mutex excludes concurrent retention deletions, so a
// returned batch never contains a row mid-deletion.
func (s *Store) UnsyncedBatch(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, ts_utc, ts_local, payload, synced
		 FROM readings WHERE synced = 0 ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("query unsynced", err)
	}
	defer rows.Close()

	var batch []telemetry.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan unsynced", err)
	}
	return batch, nil
}

// MarkSynced flips the given rows to synced=1. Idempotent: already-synced and
// missing ids are no-ops. The transition is monotonic - there is no statement
// anywhere that sets synced back to 0.
func (s *Store) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE readings SET synced = 1 WHERE synced = 0 AND id IN (` + placeholders(len(ids)) + `)`
	if _, err := s.db.ExecContext(ctx, query, idArgs(ids)...); err != nil {
		return storageErr("mark synced", err)
	}
	return nil
}

// DeleteByIDs bulk-deletes rows and returns the number removed. Idempotent:
// missing ids are no-ops.
func (s *Store) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `DELETE FROM readings WHERE id IN (` + placeholders(len(ids)) + `)`
	res, err := s.db.ExecContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return 0, storageErr("delete readings", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete readings", err)
	}
	return n, nil
}

// Count returns the total number of stored readings.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.countWhere(ctx, "")
}

// CountUnsynced returns the number of readings not yet accepted remotely.
func (s *Store) CountUnsynced(ctx context.Context) (int64, error) {
	return s.countWhere(ctx, "WHERE synced = 0")
}

func (s *Store) countWhere(ctx context.Context, where string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings "+where).Scan(&n); err != nil {
		return 0, storageErr("count readings", err)
	}
	return n, nil
}

// TimeRange returns the oldest and newest local timestamps present. ok is
// false when the store is empty.
func (s *Store) TimeRange(ctx context.Context) (oldest, newest time.Time, ok bool, err error) {
	var minTS, maxTS sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(ts_local), MAX(ts_local) FROM readings`).Scan(&minTS, &maxTS); err != nil {
		return time.Time{}, time.Time{}, false, storageErr("query time range", err)
	}
	if !minTS.Valid || !maxTS.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	oldest, err = time.Parse(time.RFC3339Nano, minTS.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, storageErr("parse time range", err)
	}
	newest, err = time.Parse(time.RFC3339Nano, maxTS.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, storageErr("parse time range", err)
	}
	return oldest, newest, true, nil
}

// IDsByTime returns all row ids ordered by ascending local timestamp. With
// syncedOnly set, rows still awaiting sync are excluded - used by the
// retention manager's protect-unsynced mode.
func (s *Store) IDsByTime(ctx context.Context, syncedOnly bool) ([]int64, error) {
	query := `SELECT id FROM readings ORDER BY ts_local ASC, id ASC`
	if syncedOnly {
		query = `SELECT id FROM readings WHERE synced = 1 ORDER BY ts_local ASC, id ASC`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("query ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan ids", err)
	}
	return ids, nil
}

func scanReading(rows *sql.Rows) (telemetry.Reading, error) {
	var (
		r       telemetry.Reading
		tsUTC   string
		tsLocal string
		payload string
		synced  int
	)
	if err := rows.Scan(&r.ID, &r.DeviceID, &tsUTC, &tsLocal, &payload, &synced); err != nil {
		return telemetry.Reading{}, storageErr("scan reading", err)
	}
	var err error
	if r.TimestampUTC, err = time.Parse(time.RFC3339Nano, tsUTC); err != nil {
		return telemetry.Reading{}, storageErr("parse ts_utc", err)
	}
	if r.TimestampLocal, err = time.Parse(time.RFC3339Nano, tsLocal); err != nil {
		return telemetry.Reading{}, storageErr("parse ts_local", err)
	}
	if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
		return telemetry.Reading{}, storageErr("decode payload", err)
	}
	r.Synced = synced == 1
	return r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
