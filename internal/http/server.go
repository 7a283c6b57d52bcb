package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/auth"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/config"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/export"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/identity"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/meetings"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/scope"
)

var (
	meetingsListed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetings_listed_total",
		Help: "Meetings returned by list-with-stats calls.",
	})
	attendanceSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_rows_saved_total",
		Help: "Attendance rows upserted.",
	})
	recapsExported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_recaps_exported_total",
		Help: "Recap workbooks exported.",
	})
)

type Server struct {
	cfg      config.Config
	profiles *identity.Profiles
	service  *meetings.Service
}

func NewServer(cfg config.Config, profiles *identity.Profiles, service *meetings.Service) *Server {
	return &Server{cfg: cfg, profiles: profiles, service: service}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.authMiddleware).Post("/meetings", s.handleCreateMeeting)
	r.With(s.authMiddleware).Get("/meetings", s.handleListMeetings)
	r.With(s.authMiddleware).Get("/meetings/{meetingId}", s.handleGetMeeting)
	r.With(s.authMiddleware).Patch("/meetings/{meetingId}", s.handlePatchMeeting)
	r.With(s.authMiddleware).Delete("/meetings/{meetingId}", s.handleDeleteMeeting)
	r.With(s.authMiddleware).Post("/meetings/{meetingId}/attendance", s.handleSaveAttendance)
	r.With(s.authMiddleware).Get("/meetings/{meetingId}/attendance", s.handleGetAttendance)
	r.With(s.authMiddleware).Get("/meetings/{meetingId}/export", s.handleExportRecap)

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// viewerProfile resolves the authenticated viewer's profile for the request.
func (s *Server) viewerProfile(w http.ResponseWriter, r *http.Request) (db.Profile, bool) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return db.Profile{}, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return db.Profile{}, false
	}
	profile, err := s.profiles.GetViewerProfile(r.Context(), userID)
	if errors.Is(err, identity.ErrProfileNotFound) {
		writeError(w, http.StatusUnauthorized, "profile_not_found")
		return db.Profile{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return db.Profile{}, false
	}
	return profile, true
}

// Models

type meetingResponse struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Topic           string   `json:"topic,omitempty"`
	MeetingType     string   `json:"meetingType"`
	PrimaryClassID  string   `json:"primaryClassId"`
	ClassIDs        []string `json:"classIds"`
	KelompokIDs     []string `json:"kelompokIds,omitempty"`
	TeacherID       string   `json:"teacherId"`
	Date            string   `json:"date"`
	SequenceNumber  int      `json:"sequenceNumber"`
	StudentSnapshot []string `json:"studentSnapshot"`
}

type meetingWithStatsResponse struct {
	meetingResponse
	meetings.Stats
	ClassNames []string `json:"classNames"`
}

type listMeetingsResponse struct {
	Meetings []meetingWithStatsResponse `json:"meetings"`
	HasMore  bool                       `json:"hasMore"`
}

type createMeetingRequest struct {
	Title       string   `json:"title"`
	Topic       string   `json:"topic"`
	MeetingType string   `json:"meetingType"`
	Date        string   `json:"date"`
	ClassIDs    []string `json:"classIds"`
	KelompokIDs []string `json:"kelompokIds"`
	StudentIDs  []string `json:"studentIds"`
}

type patchMeetingRequest struct {
	Title      *string   `json:"title"`
	Topic      *string   `json:"topic"`
	Date       *string   `json:"date"`
	StudentIDs *[]string `json:"studentIds"`
}

type attendanceEntryRequest struct {
	StudentID string  `json:"studentId"`
	Status    string  `json:"status"`
	Reason    *string `json:"reason"`
}

type saveAttendanceRequest struct {
	Entries []attendanceEntryRequest `json:"entries"`
}

type rosterEntryResponse struct {
	StudentID string  `json:"studentId"`
	Name      string  `json:"name"`
	Gender    string  `json:"gender"`
	Status    *string `json:"status"`
	Reason    *string `json:"reason,omitempty"`
}

// Handlers

func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.viewerProfile(w, r)
	if !ok {
		return
	}
	var req createMeetingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	classIDs, err := parseUUIDs(req.ClassIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_class_id")
		return
	}
	kelompokIDs, err := parseUUIDs(req.KelompokIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_kelompok_id")
		return
	}
	studentIDs, err := parseUUIDs(req.StudentIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}

	meeting, err := s.service.Create(r.Context(), profile, meetings.CreateParams{
		Title:       req.Title,
		Topic:       req.Topic,
		MeetingType: req.MeetingType,
		Date:        date,
		ClassIDs:    classIDs,
		KelompokIDs: kelompokIDs,
		StudentIDs:  studentIDs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapMeeting(meeting))
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.viewerProfile(w, r)
	if !ok {
		return
	}

	var classFilter []uuid.UUID
	for _, raw := range r.URL.Query()["classId"] {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_class_id")
			return
		}
		classFilter = append(classFilter, id)
	}
	limit := parseLimit(r, 20)
	var cursor time.Time
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cursor")
			return
		}
		cursor = parsed
	}

	result, err := s.service.ListWithStats(r.Context(), profile, classFilter, limit, cursor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	meetingsListed.Add(float64(len(result.Meetings)))

	resp := listMeetingsResponse{
		Meetings: make([]meetingWithStatsResponse, 0, len(result.Meetings)),
		HasMore:  result.HasMore,
	}
	for _, m := range result.Meetings {
		resp.Meetings = append(resp.Meetings, mapMeetingWithStats(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.viewerProfile(w, r)
	if !ok {
		return
	}
	meetingID, err := uuid.Parse(chi.URLParam(r, "meetingId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_meeting_id")
		return
	}
	m, err := s.service.GetWithStats(r.Context(), profile, meetingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapMeetingWithStats(m))
}

func (s *Server) handlePatchMeeting(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.viewerProfile(w, r)
	if !ok {
		return
	}
	meetingID, err := uuid.Parse(chi.URLParam(r, "meetingId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_meeting_id")
		return
	}
	var req patchMeetingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	params := meetings.UpdateParams{Title: req.Title, Topic: req.Topic}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		params.Date = &date
	}
	if req.StudentIDs != nil {
		studentIDs, err := parseUUIDs(*req.StudentIDs)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_student_id")
			return
		}
		if studentIDs == nil {
			studentIDs = []uuid.UUID{}
		}
		params.StudentIDs = studentIDs
	}

	updated, err := s.service.Update(r.Context(), profile, meetingID, params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapMeeting(updated))
}

func (s *Server) handleDeleteMeeting(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.viewerProfile(w, r)
	if !ok {
		return
	}
	meetingID, err := uuid.Parse(chi.URLParam(r, "meetingId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_meeting_id")
		return
	}
	if err := s.service.Delete(r.Context(), profile, meetingID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveAttendance(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.viewerProfile(w, r)
	if !ok {
		return
	}
	meetingID, err := uuid.Parse(chi.URLParam(r, "meetingId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_meeting_id")
		return
	}
	var req saveAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	entries := make([]meetings.AttendanceEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		studentID, err := uuid.Parse(e.StudentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_student_id")
			return
		}
		entries = append(entries, meetings.AttendanceEntry{
			StudentID: studentID,
			Status:    e.Status,
			Reason:    e.Reason,
		})
	}
	if err := s.service.SaveAttendance(r.Context(), profile, meetingID, entries); err != nil {
		writeServiceError(w, err)
		return
	}
	attendanceSaved.Add(float64(len(entries)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.viewerProfile(w, r)
	if !ok {
		return
	}
	meetingID, err := uuid.Parse(chi.URLParam(r, "meetingId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_meeting_id")
		return
	}
	_, entries, err := s.service.Roster(r.Context(), profile, meetingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]rosterEntryResponse, 0, len(entries))
	for _, entry := range entries {
		row := rosterEntryResponse{
			StudentID: entry.Student.ID.String(),
			Name:      entry.Student.Name,
			Gender:    entry.Student.Gender,
		}
		if entry.Log != nil {
			status := string(entry.Log.Status)
			row.Status = &status
			row.Reason = entry.Log.Reason
		}
		resp = append(resp, row)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportRecap(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.viewerProfile(w, r)
	if !ok {
		return
	}
	meetingID, err := uuid.Parse(chi.URLParam(r, "meetingId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_meeting_id")
		return
	}
	withStats, err := s.service.GetWithStats(r.Context(), profile, meetingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	meeting, entries, err := s.service.Roster(r.Context(), profile, meetingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	buffer, err := export.Recap(meeting, withStats.ClassNames, entries, withStats.Stats)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}
	recapsExported.Inc()

	filename := fmt.Sprintf("presensi-%s.xlsx", meeting.MeetingDate.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buffer.Bytes())
}

// Mapping helpers

func mapMeeting(m db.Meeting) meetingResponse {
	return meetingResponse{
		ID:              m.ID.String(),
		Title:           m.Title,
		Topic:           m.Topic,
		MeetingType:     string(m.MeetingType),
		PrimaryClassID:  m.PrimaryClassID.String(),
		ClassIDs:        uuidStrings(m.ClassIDs),
		KelompokIDs:     uuidStrings(m.KelompokIDs),
		TeacherID:       m.TeacherID.String(),
		Date:            m.MeetingDate.Format("2006-01-02"),
		SequenceNumber:  m.SequenceNumber,
		StudentSnapshot: uuidStrings(m.StudentSnapshot),
	}
}

func mapMeetingWithStats(m meetings.MeetingWithStats) meetingWithStatsResponse {
	return meetingWithStatsResponse{
		meetingResponse: mapMeeting(m.Meeting),
		Stats:           m.Stats,
		ClassNames:      m.ClassNames,
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, meetings.ErrNotAuthorized), errors.Is(err, scope.ErrNotAllowed):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, meetings.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, meetings.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, meetings.ErrReferentialIntegrity):
		writeError(w, http.StatusConflict, "delete_dependents_first")
	case errors.Is(err, meetings.ErrPartialBatch):
		writeError(w, http.StatusInternalServerError, "attendance_fetch_failed")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

// Utilities

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(values))
	for _, raw := range values {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
