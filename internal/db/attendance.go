package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func scanAttendanceLog(row pgx.Row) (AttendanceLog, error) {
	var l AttendanceLog
	err := row.Scan(
		&l.StudentID,
		&l.MeetingID,
		&l.Status,
		&l.Reason,
		&l.RecordedBy,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	return l, err
}

// ListAttendanceByMeetingIDs fetches all log rows for one chunk of meeting
// ids. Callers batch the id set; this never runs one query per meeting.
func (s *Store) ListAttendanceByMeetingIDs(ctx context.Context, meetingIDs []uuid.UUID) ([]AttendanceLog, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT student_id, meeting_id, status, reason, recorded_by, created_at, updated_at
		FROM attendance_logs
		WHERE meeting_id = ANY($1)
	`, meetingIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AttendanceLog
	for rows.Next() {
		l, err := scanAttendanceLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UpsertAttendanceLogs writes one row per (student, meeting), last write wins.
func (s *Store) UpsertAttendanceLogs(ctx context.Context, logs []AttendanceLog) error {
	if len(logs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(`
			INSERT INTO attendance_logs (student_id, meeting_id, status, reason, recorded_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (student_id, meeting_id)
			DO UPDATE SET status = EXCLUDED.status,
			              reason = EXCLUDED.reason,
			              recorded_by = EXCLUDED.recorded_by,
			              updated_at = EXCLUDED.updated_at
		`, l.StudentID, l.MeetingID, l.Status, l.Reason, l.RecordedBy, now)
	}
	results := s.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for range logs {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteOrphanLogs removes attendance rows whose meeting no longer exists.
// These can appear if a meeting delete was interrupted between steps.
func (s *Store) DeleteOrphanLogs(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		DELETE FROM attendance_logs l
		WHERE NOT EXISTS (SELECT 1 FROM meetings m WHERE m.id = l.meeting_id)
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
