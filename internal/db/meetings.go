package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const meetingColumns = `
	id, title, topic, meeting_type, primary_class_id, class_ids, kelompok_ids,
	teacher_id, meeting_date, student_snapshot, sequence_number, created_at, updated_at
`

func scanMeeting(row pgx.Row) (Meeting, error) {
	var m Meeting
	err := row.Scan(
		&m.ID,
		&m.Title,
		&m.Topic,
		&m.MeetingType,
		&m.PrimaryClassID,
		&m.ClassIDs,
		&m.KelompokIDs,
		&m.TeacherID,
		&m.MeetingDate,
		&m.StudentSnapshot,
		&m.SequenceNumber,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

func (s *Store) CreateMeeting(ctx context.Context, m Meeting) (Meeting, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO meetings (
			id, title, topic, meeting_type, primary_class_id, class_ids, kelompok_ids,
			teacher_id, meeting_date, student_snapshot, sequence_number, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+meetingColumns,
		m.ID, m.Title, m.Topic, m.MeetingType, m.PrimaryClassID, m.ClassIDs, m.KelompokIDs,
		m.TeacherID, m.MeetingDate, m.StudentSnapshot, m.SequenceNumber, m.CreatedAt, m.UpdatedAt,
	)
	return scanMeeting(row)
}

func (s *Store) GetMeeting(ctx context.Context, id uuid.UUID) (Meeting, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE id = $1
	`, id)
	return scanMeeting(row)
}

func (s *Store) UpdateMeeting(ctx context.Context, m Meeting) (Meeting, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE meetings
		SET title = $2,
		    topic = $3,
		    meeting_date = $4,
		    class_ids = $5,
		    kelompok_ids = $6,
		    primary_class_id = $7,
		    student_snapshot = $8,
		    updated_at = $9
		WHERE id = $1
		RETURNING `+meetingColumns,
		m.ID, m.Title, m.Topic, m.MeetingDate, m.ClassIDs, m.KelompokIDs,
		m.PrimaryClassID, m.StudentSnapshot, m.UpdatedAt,
	)
	return scanMeeting(row)
}

// MeetingCursor positions the newest-first list scan. A zero cursor starts
// from the latest meeting. A date-only cursor (no row id) starts strictly
// before that date, matching the public date cursor. A full cursor resumes
// strictly after the identified row, so meetings sharing a date are neither
// skipped nor repeated within one scan.
type MeetingCursor struct {
	Date      time.Time
	CreatedAt time.Time
	ID        uuid.UUID
}

func (c MeetingCursor) IsZero() bool {
	return c.Date.IsZero() && c.ID == uuid.Nil
}

func (c MeetingCursor) DateOnly() bool {
	return !c.Date.IsZero() && c.ID == uuid.Nil
}

// CursorAfter resumes a scan immediately after the given meeting.
func CursorAfter(m Meeting) MeetingCursor {
	return MeetingCursor{Date: m.MeetingDate, CreatedAt: m.CreatedAt, ID: m.ID}
}

// ListMeetingsBefore returns meetings before the cursor, newest first.
func (s *Store) ListMeetingsBefore(ctx context.Context, cursor MeetingCursor, limit int) ([]Meeting, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case cursor.IsZero():
		rows, err = s.Pool.Query(ctx, `
			SELECT `+meetingColumns+`
			FROM meetings
			ORDER BY meeting_date DESC, created_at DESC, id DESC
			LIMIT $1
		`, limit)
	case cursor.DateOnly():
		rows, err = s.Pool.Query(ctx, `
			SELECT `+meetingColumns+`
			FROM meetings
			WHERE meeting_date < $1
			ORDER BY meeting_date DESC, created_at DESC, id DESC
			LIMIT $2
		`, cursor.Date, limit)
	default:
		rows, err = s.Pool.Query(ctx, `
			SELECT `+meetingColumns+`
			FROM meetings
			WHERE (meeting_date, created_at, id) < ($1, $2, $3)
			ORDER BY meeting_date DESC, created_at DESC, id DESC
			LIMIT $4
		`, cursor.Date, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// NextSequenceNumber assigns the per-primary-class ordinal for a new meeting.
func (s *Store) NextSequenceNumber(ctx context.Context, primaryClassID uuid.UUID) (int, error) {
	var next int
	row := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) + 1
		FROM meetings
		WHERE primary_class_id = $1
	`, primaryClassID)
	err := row.Scan(&next)
	return next, err
}

// DeleteMeetingWithLogs removes the attendance rows first, then the meeting,
// in one transaction. An interrupted run therefore never leaves a meeting
// without its logs; the reverse orphan case is handled by the sweep job.
func (s *Store) DeleteMeetingWithLogs(ctx context.Context, meetingID uuid.UUID) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM attendance_logs WHERE meeting_id = $1`, meetingID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, meetingID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}
