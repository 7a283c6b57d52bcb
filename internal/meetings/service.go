// Package meetings implements the meeting visibility and attendance
// aggregation engine: per-viewer meeting listing with statistics, meeting
// lifecycle, and attendance recording.
package meetings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/directory"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/hierarchy"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/scope"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type Service struct {
	store     *db.Store
	directory *directory.Directory
	fetcher   *LogFetcher
}

func NewService(store *db.Store, dir *directory.Directory, fetcher *LogFetcher) *Service {
	return &Service{store: store, directory: dir, fetcher: fetcher}
}

type MeetingWithStats struct {
	db.Meeting
	Stats
	ClassNames []string
}

type ListResult struct {
	Meetings []MeetingWithStats
	HasMore  bool
}

// ListWithStats is the main engine entry point: derive the viewer's scope
// once, page candidate meetings by date cursor, filter them through the
// scope, resolve each relevant roster, and fold one batched log fetch into
// per-meeting statistics.
func (s *Service) ListWithStats(ctx context.Context, profile db.Profile, classFilter []uuid.UUID, limit int, cursor time.Time) (ListResult, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	sc, err := s.deriveScope(ctx, profile, classFilter)
	if err != nil {
		return ListResult{}, err
	}

	visible, visibility, classNames, err := s.collectVisible(ctx, sc, limit+1, cursor)
	if err != nil {
		return ListResult{}, err
	}
	hasMore := len(visible) > limit
	if hasMore {
		visible = visible[:limit]
	}
	if len(visible) == 0 {
		return ListResult{Meetings: []MeetingWithStats{}, HasMore: false}, nil
	}

	studentClasses, err := s.loadStudentClasses(ctx, sc, visible)
	if err != nil {
		return ListResult{}, err
	}

	ids := make([]uuid.UUID, len(visible))
	for i, m := range visible {
		ids[i] = m.ID
	}
	logs, err := s.fetcher.Fetch(ctx, ids)
	if err != nil {
		return ListResult{}, err
	}
	grouped := groupLogsByMeeting(logs)

	result := ListResult{Meetings: make([]MeetingWithStats, 0, len(visible)), HasMore: hasMore}
	for _, m := range visible {
		roster := RelevantRoster(m, sc, visibility[m.ID], studentClasses)
		result.Meetings = append(result.Meetings, MeetingWithStats{
			Meeting:    m,
			Stats:      Aggregate(roster, grouped[m.ID]),
			ClassNames: classNames[m.ID],
		})
	}
	return result, nil
}

// GetWithStats runs the same engine path for a single meeting.
func (s *Service) GetWithStats(ctx context.Context, profile db.Profile, meetingID uuid.UUID) (MeetingWithStats, error) {
	m, ix, sc, vis, err := s.loadAuthorized(ctx, profile, meetingID)
	if err != nil {
		return MeetingWithStats{}, err
	}

	studentClasses, err := s.loadStudentClasses(ctx, sc, []db.Meeting{m})
	if err != nil {
		return MeetingWithStats{}, err
	}
	logs, err := s.fetcher.Fetch(ctx, []uuid.UUID{m.ID})
	if err != nil {
		return MeetingWithStats{}, err
	}

	roster := RelevantRoster(m, sc, vis, studentClasses)
	return MeetingWithStats{
		Meeting:    m,
		Stats:      Aggregate(roster, logs),
		ClassNames: classNames(ix, m.ClassIDs),
	}, nil
}

type CreateParams struct {
	Title       string
	Topic       string
	MeetingType string
	Date        time.Time
	ClassIDs    []uuid.UUID
	KelompokIDs []uuid.UUID
	StudentIDs  []uuid.UUID
}

// Create freezes the meeting roster at creation time: either the explicit
// student selection or the union of current members of the selected classes.
func (s *Service) Create(ctx context.Context, profile db.Profile, params CreateParams) (db.Meeting, error) {
	meetingType, ok := db.ValidMeetingType(params.MeetingType)
	if !ok {
		return db.Meeting{}, fmt.Errorf("meeting type %q: %w", params.MeetingType, ErrInvalidInput)
	}
	if len(params.ClassIDs) == 0 {
		return db.Meeting{}, fmt.Errorf("class_ids required: %w", ErrInvalidInput)
	}
	if params.Title == "" || params.Date.IsZero() {
		return db.Meeting{}, fmt.Errorf("title and date required: %w", ErrInvalidInput)
	}

	ix, err := s.directory.BuildIndex(ctx, unionIDs(params.ClassIDs, profile.TaughtClassIDs))
	if err != nil {
		return db.Meeting{}, err
	}
	sc, err := scope.FromProfile(profile, ix)
	if err != nil {
		return db.Meeting{}, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	for _, classID := range params.ClassIDs {
		if !ix.Contains(classID) {
			return db.Meeting{}, fmt.Errorf("class %s: %w", classID, ErrNotFound)
		}
		if !sc.AllowsClass(classID, ix) {
			return db.Meeting{}, fmt.Errorf("class %s: %w", classID, ErrNotAuthorized)
		}
	}

	kelompokIDs, err := crossKelompokIDs(meetingType, params.ClassIDs, params.KelompokIDs, ix)
	if err != nil {
		return db.Meeting{}, err
	}

	snapshot, err := s.buildSnapshot(ctx, params.ClassIDs, params.StudentIDs)
	if err != nil {
		return db.Meeting{}, err
	}

	primary := params.ClassIDs[0]
	seq, err := s.store.NextSequenceNumber(ctx, primary)
	if err != nil {
		return db.Meeting{}, fmt.Errorf("create meeting: sequence: %w", err)
	}

	now := time.Now().UTC()
	meeting := db.Meeting{
		ID:              uuid.New(),
		Title:           params.Title,
		Topic:           params.Topic,
		MeetingType:     meetingType,
		PrimaryClassID:  primary,
		ClassIDs:        params.ClassIDs,
		KelompokIDs:     kelompokIDs,
		TeacherID:       profile.UserID,
		MeetingDate:     params.Date,
		StudentSnapshot: snapshot,
		SequenceNumber:  seq,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.store.CreateMeeting(ctx, meeting)
	if err != nil {
		return db.Meeting{}, fmt.Errorf("create meeting: %w", err)
	}
	return created, nil
}

type UpdateParams struct {
	Title *string
	Topic *string
	Date  *time.Time
	// StudentIDs, when non-nil, replaces the frozen roster. Nil leaves the
	// snapshot untouched regardless of any live membership drift.
	StudentIDs []uuid.UUID
}

func (s *Service) Update(ctx context.Context, profile db.Profile, meetingID uuid.UUID, params UpdateParams) (db.Meeting, error) {
	m, _, _, vis, err := s.loadAuthorized(ctx, profile, meetingID)
	if err != nil {
		return db.Meeting{}, err
	}
	// The Pengajar exception grants read visibility only.
	if vis.ViaPengajar {
		return db.Meeting{}, fmt.Errorf("meeting %s: %w", meetingID, ErrNotAuthorized)
	}

	if params.Title != nil {
		m.Title = *params.Title
	}
	if params.Topic != nil {
		m.Topic = *params.Topic
	}
	if params.Date != nil {
		m.MeetingDate = *params.Date
	}
	if params.StudentIDs != nil {
		snapshot, err := s.resolveStudents(ctx, params.StudentIDs)
		if err != nil {
			return db.Meeting{}, err
		}
		m.StudentSnapshot = snapshot
	}
	m.UpdatedAt = time.Now().UTC()

	updated, err := s.store.UpdateMeeting(ctx, m)
	if err != nil {
		return db.Meeting{}, fmt.Errorf("update meeting: %w", err)
	}
	return updated, nil
}

type AttendanceEntry struct {
	StudentID uuid.UUID
	Status    string
	Reason    *string
}

// SaveAttendance upserts one row per (student, meeting). Entries outside the
// viewer's relevant roster are rejected, not silently dropped.
func (s *Service) SaveAttendance(ctx context.Context, profile db.Profile, meetingID uuid.UUID, entries []AttendanceEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("no entries: %w", ErrInvalidInput)
	}
	m, _, sc, vis, err := s.loadAuthorized(ctx, profile, meetingID)
	if err != nil {
		return err
	}
	studentClasses, err := s.loadStudentClasses(ctx, sc, []db.Meeting{m})
	if err != nil {
		return err
	}
	roster := RelevantRoster(m, sc, vis, studentClasses)

	logs, err := attendanceLogs(m, profile.UserID, vis, roster, entries)
	if err != nil {
		return err
	}
	if err := s.store.UpsertAttendanceLogs(ctx, logs); err != nil {
		return fmt.Errorf("save attendance: %w", err)
	}
	return nil
}

// attendanceLogs validates a batch of entries against the viewer's relevant
// roster and builds the rows to upsert. Pengajar-granted visibility is
// read-only here, matching Update and Delete.
func attendanceLogs(m db.Meeting, recordedBy uuid.UUID, vis scope.Visibility, roster map[uuid.UUID]struct{}, entries []AttendanceEntry) ([]db.AttendanceLog, error) {
	if vis.ViaPengajar {
		return nil, fmt.Errorf("meeting %s: %w", m.ID, ErrNotAuthorized)
	}
	logs := make([]db.AttendanceLog, 0, len(entries))
	for _, e := range entries {
		status, ok := db.ValidStatus(e.Status)
		if !ok {
			return nil, fmt.Errorf("status %q for student %s: %w", e.Status, e.StudentID, ErrInvalidInput)
		}
		if _, ok := roster[e.StudentID]; !ok {
			return nil, fmt.Errorf("student %s not in relevant roster: %w", e.StudentID, ErrNotAuthorized)
		}
		logs = append(logs, db.AttendanceLog{
			StudentID:  e.StudentID,
			MeetingID:  m.ID,
			Status:     status,
			Reason:     e.Reason,
			RecordedBy: recordedBy,
		})
	}
	return logs, nil
}

// Delete removes dependent attendance rows first, then the meeting, inside
// one transaction so an interrupted run cannot orphan the meeting's logs.
func (s *Service) Delete(ctx context.Context, profile db.Profile, meetingID uuid.UUID) error {
	_, _, _, vis, err := s.loadAuthorized(ctx, profile, meetingID)
	if err != nil {
		return err
	}
	if vis.ViaPengajar {
		return fmt.Errorf("meeting %s: %w", meetingID, ErrNotAuthorized)
	}
	if err := s.store.DeleteMeetingWithLogs(ctx, meetingID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("meeting %s: %w", meetingID, ErrReferentialIntegrity)
		}
		return fmt.Errorf("delete meeting: %w", err)
	}
	return nil
}

type RosterEntry struct {
	Student db.Student
	Log     *db.AttendanceLog
}

// Roster returns the viewer-relevant roster with each student's recorded log,
// if any, in snapshot order. Missing rows stay nil; defaulting them to a
// status is a presentation concern, not the engine's.
func (s *Service) Roster(ctx context.Context, profile db.Profile, meetingID uuid.UUID) (db.Meeting, []RosterEntry, error) {
	m, _, sc, vis, err := s.loadAuthorized(ctx, profile, meetingID)
	if err != nil {
		return db.Meeting{}, nil, err
	}
	studentClasses, err := s.loadStudentClasses(ctx, sc, []db.Meeting{m})
	if err != nil {
		return db.Meeting{}, nil, err
	}
	roster := RelevantRoster(m, sc, vis, studentClasses)

	rosterIDs := make([]uuid.UUID, 0, len(roster))
	for _, id := range m.StudentSnapshot {
		if _, ok := roster[id]; ok {
			rosterIDs = append(rosterIDs, id)
		}
	}
	students, err := s.store.GetStudentsByIDs(ctx, rosterIDs)
	if err != nil {
		return db.Meeting{}, nil, fmt.Errorf("roster students: %w", err)
	}
	byID := make(map[uuid.UUID]db.Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}

	logs, err := s.fetcher.Fetch(ctx, []uuid.UUID{m.ID})
	if err != nil {
		return db.Meeting{}, nil, err
	}
	logByStudent := make(map[uuid.UUID]db.AttendanceLog, len(logs))
	for _, l := range logs {
		logByStudent[l.StudentID] = l
	}

	entries := make([]RosterEntry, 0, len(rosterIDs))
	for _, id := range rosterIDs {
		st, ok := byID[id]
		if !ok {
			// Snapshot can outlive a student record; keep the row out
			// rather than failing the whole roster.
			continue
		}
		entry := RosterEntry{Student: st}
		if l, ok := logByStudent[id]; ok {
			l := l
			entry.Log = &l
		}
		entries = append(entries, entry)
	}
	return m, entries, nil
}

// Internal plumbing

// deriveScope builds the index needed for scope derivation (the viewer's own
// classes plus any explicit filter) and validates the filter as a subset of
// the viewer's allowed classes.
func (s *Service) deriveScope(ctx context.Context, profile db.Profile, classFilter []uuid.UUID) (scope.Scope, error) {
	ix, err := s.directory.BuildIndex(ctx, unionIDs(profile.TaughtClassIDs, classFilter))
	if err != nil {
		return scope.Scope{}, err
	}
	sc, err := scope.FromProfile(profile, ix)
	if err != nil {
		return scope.Scope{}, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	narrowed, err := sc.Narrow(classFilter, ix)
	if err != nil {
		return scope.Scope{}, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	return narrowed, nil
}

// collectVisible pages candidate meetings newest-first and keeps the ones the
// scope admits, until `want` are found or the table is exhausted. Hierarchy
// lookups are batched per page, never per meeting.
func (s *Service) collectVisible(ctx context.Context, sc scope.Scope, want int, cursor time.Time) ([]db.Meeting, map[uuid.UUID]scope.Visibility, map[uuid.UUID][]string, error) {
	batchSize := want * 4
	if batchSize < 40 {
		batchSize = 40
	}

	var visible []db.Meeting
	visibility := make(map[uuid.UUID]scope.Visibility)
	names := make(map[uuid.UUID][]string)
	pageCursor := db.MeetingCursor{Date: cursor}

	for len(visible) < want {
		batch, err := s.store.ListMeetingsBefore(ctx, pageCursor, batchSize)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("list meetings: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		ix, err := s.directory.BuildIndex(ctx, classIDsOf(batch))
		if err != nil {
			return nil, nil, nil, err
		}
		for _, m := range batch {
			vis := sc.AllowsMeeting(m, ix)
			if !vis.Visible {
				continue
			}
			visible = append(visible, m)
			visibility[m.ID] = vis
			names[m.ID] = classNames(ix, m.ClassIDs)
			if len(visible) == want {
				break
			}
		}

		if len(batch) < batchSize {
			break
		}
		// Resume after the exact last row. The public cursor stays a bare
		// date, so meetings sharing a boundary date can still be skipped
		// or repeated across client pages.
		pageCursor = db.CursorAfter(batch[len(batch)-1])
	}
	return visible, visibility, names, nil
}

// loadAuthorized resolves a meeting and checks the viewer may see it.
func (s *Service) loadAuthorized(ctx context.Context, profile db.Profile, meetingID uuid.UUID) (db.Meeting, *hierarchy.Index, scope.Scope, scope.Visibility, error) {
	m, err := s.store.GetMeeting(ctx, meetingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.Meeting{}, nil, scope.Scope{}, scope.Visibility{}, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	if err != nil {
		return db.Meeting{}, nil, scope.Scope{}, scope.Visibility{}, fmt.Errorf("get meeting: %w", err)
	}

	ix, err := s.directory.BuildIndex(ctx, unionIDs(m.ClassIDs, profile.TaughtClassIDs))
	if err != nil {
		return db.Meeting{}, nil, scope.Scope{}, scope.Visibility{}, err
	}
	sc, err := scope.FromProfile(profile, ix)
	if err != nil {
		return db.Meeting{}, nil, scope.Scope{}, scope.Visibility{}, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	vis := sc.AllowsMeeting(m, ix)
	if !vis.Visible {
		return db.Meeting{}, nil, scope.Scope{}, scope.Visibility{}, fmt.Errorf("meeting %s: %w", meetingID, ErrNotAuthorized)
	}
	return m, ix, sc, vis, nil
}

// loadStudentClasses resolves snapshot students' class membership when the
// viewer is a teacher; other viewers never filter rosters.
func (s *Service) loadStudentClasses(ctx context.Context, sc scope.Scope, ms []db.Meeting) (map[uuid.UUID][]uuid.UUID, error) {
	if sc.Base != scope.ClassScoped {
		return nil, nil
	}
	students, err := s.store.GetStudentsByIDs(ctx, unionSnapshots(ms))
	if err != nil {
		return nil, fmt.Errorf("snapshot students: %w", err)
	}
	return snapshotStudentClasses(students), nil
}

func (s *Service) buildSnapshot(ctx context.Context, classIDs, studentIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(studentIDs) > 0 {
		return s.resolveStudents(ctx, studentIDs)
	}
	members, err := s.store.ListStudentsByClassIDs(ctx, classIDs)
	if err != nil {
		return nil, fmt.Errorf("class members: %w", err)
	}
	snapshot := make([]uuid.UUID, 0, len(members))
	for _, st := range members {
		snapshot = append(snapshot, st.ID)
	}
	return snapshot, nil
}

// resolveStudents dedupes an explicit selection, preserving order, and
// verifies every id exists.
func (s *Service) resolveStudents(ctx context.Context, studentIDs []uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(studentIDs))
	unique := make([]uuid.UUID, 0, len(studentIDs))
	for _, id := range studentIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	students, err := s.store.GetStudentsByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("resolve students: %w", err)
	}
	found := make(map[uuid.UUID]struct{}, len(students))
	for _, st := range students {
		found[st.ID] = struct{}{}
	}
	for _, id := range unique {
		if _, ok := found[id]; !ok {
			return nil, fmt.Errorf("student %s: %w", id, ErrNotFound)
		}
	}
	return unique, nil
}

// crossKelompokIDs keeps the kelompok selection only for SAMBUNG_DESA
// meetings, which require every selected class to be sambung-eligible.
// Other meeting types drop the field.
func crossKelompokIDs(meetingType db.MeetingType, classIDs, kelompokIDs []uuid.UUID, ix *hierarchy.Index) ([]uuid.UUID, error) {
	if meetingType != db.MeetingTypeSambungDesa {
		return nil, nil
	}
	for _, classID := range classIDs {
		if !ix.CategoryOf(classID).IsSambungEligible {
			return nil, fmt.Errorf("class %s not eligible for cross-kelompok meetings: %w", classID, ErrInvalidInput)
		}
	}
	return kelompokIDs, nil
}

func classIDsOf(ms []db.Meeting) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, m := range ms {
		for _, id := range m.ClassIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func classNames(ix *hierarchy.Index, classIDs []uuid.UUID) []string {
	out := make([]string, 0, len(classIDs))
	for _, id := range classIDs {
		if name := ix.NameOf(id); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func unionIDs(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(a)+len(b))
	out := make([]uuid.UUID, 0, len(a)+len(b))
	for _, set := range [][]uuid.UUID{a, b} {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
