package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/auth"
)

type meetingResponse struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	MeetingType     string   `json:"meetingType"`
	PrimaryClassID  string   `json:"primaryClassId"`
	SequenceNumber  int      `json:"sequenceNumber"`
	StudentSnapshot []string `json:"studentSnapshot"`
}

type meetingWithStatsResponse struct {
	meetingResponse
	TotalStudents        int `json:"totalStudents"`
	PresentCount         int `json:"presentCount"`
	AttendancePercentage int `json:"attendancePercentage"`
}

type listMeetingsResponse struct {
	Meetings []meetingWithStatsResponse `json:"meetings"`
	HasMore  bool                       `json:"hasMore"`
}

type rosterEntryResponse struct {
	StudentID string  `json:"studentId"`
	Name      string  `json:"name"`
	Status    *string `json:"status"`
}

// Demo fixtures seeded by the dev database. The teacher profile teaches
// the Caberawit A class in kelompok 1, the outsider teaches a class in a
// different desa entirely.
const (
	demoClassID        = "11111111-1111-1111-1111-111111111111"
	demoTeacherUserID  = "22222222-2222-2222-2222-222222222221"
	demoOutsiderUserID = "22222222-2222-2222-2222-222222222229"
	demoAdminUserID    = "22222222-2222-2222-2222-222222222230"
	demoStudent1ID     = "33333333-3333-3333-3333-333333333331"
	demoStudent2ID     = "33333333-3333-3333-3333-333333333332"
	demoMissingClassID = "99999999-9999-9999-9999-999999999999"
)

func TestMeetingLifecycle(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("ATTENDANCE_HTTP_ADDR", "http://127.0.0.1:8080")
	teacherToken := mintToken(t, demoTeacherUserID, "teacher")
	outsiderToken := mintToken(t, demoOutsiderUserID, "teacher")

	// Teacher creates a meeting for their own class.
	created := createMeeting(t, baseURL, teacherToken, map[string]interface{}{
		"title":       "Pembinaan Pekan 1",
		"topic":       "Hafalan surat pendek",
		"meetingType": "PEMBINAAN",
		"date":        "2026-01-25",
		"classIds":    []string{demoClassID},
	})
	if created.SequenceNumber < 1 {
		t.Fatalf("expected sequence number >= 1, got %d", created.SequenceNumber)
	}
	if len(created.StudentSnapshot) == 0 {
		t.Fatalf("expected snapshot to be populated from class roster")
	}

	// An unrelated teacher cannot create for that class.
	resp, body := doRequest(t, http.MethodPost, baseURL+"/meetings", outsiderToken, map[string]interface{}{
		"title":       "Intrusion",
		"meetingType": "PEMBINAAN",
		"date":        "2026-01-25",
		"classIds":    []string{demoClassID},
	})
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 403 or 404, got %d: %s", resp.StatusCode, body)
	}

	// Unknown class ids read as not found.
	resp, _ = doRequest(t, http.MethodPost, baseURL+"/meetings", teacherToken, map[string]interface{}{
		"title":       "Ghost class",
		"meetingType": "PEMBINAAN",
		"date":        "2026-01-25",
		"classIds":    []string{demoMissingClassID},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown class, got %d", resp.StatusCode)
	}

	// Save attendance for two students, then overwrite one row.
	saveAttendance(t, baseURL, teacherToken, created.ID, []map[string]interface{}{
		{"studentId": demoStudent1ID, "status": "H"},
		{"studentId": demoStudent2ID, "status": "S", "reason": "demam"},
	})
	saveAttendance(t, baseURL, teacherToken, created.ID, []map[string]interface{}{
		{"studentId": demoStudent2ID, "status": "H"},
	})

	roster := getRoster(t, baseURL, teacherToken, created.ID)
	statuses := map[string]string{}
	for _, entry := range roster {
		if entry.Status != nil {
			statuses[entry.StudentID] = *entry.Status
		}
	}
	if statuses[demoStudent1ID] != "H" || statuses[demoStudent2ID] != "H" {
		t.Fatalf("expected both students H after overwrite, got %v", statuses)
	}

	// The meeting shows up in the teacher's list with aggregated stats.
	resp, body = doRequest(t, http.MethodGet, baseURL+"/meetings?limit=50", teacherToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list listMeetingsResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	var found *meetingWithStatsResponse
	for i := range list.Meetings {
		if list.Meetings[i].ID == created.ID {
			found = &list.Meetings[i]
		}
	}
	if found == nil {
		t.Fatalf("created meeting missing from list")
	}
	if found.PresentCount != 2 {
		t.Fatalf("expected 2 present, got %d", found.PresentCount)
	}
	if found.TotalStudents != len(created.StudentSnapshot) {
		t.Fatalf("expected stats over frozen snapshot of %d, got %d", len(created.StudentSnapshot), found.TotalStudents)
	}

	// The unrelated teacher sees neither the list entry nor the detail.
	resp, body = doRequest(t, http.MethodGet, baseURL+"/meetings?limit=50", outsiderToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var outsiderList listMeetingsResponse
	if err := json.Unmarshal(body, &outsiderList); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	for _, m := range outsiderList.Meetings {
		if m.ID == created.ID {
			t.Fatalf("meeting leaked to unrelated teacher")
		}
	}
	resp, _ = doRequest(t, http.MethodGet, baseURL+"/meetings/"+created.ID, outsiderToken, nil)
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 404 or 403, got %d", resp.StatusCode)
	}

	// Patch title, then delete with its logs. A patch that does not send
	// studentIds leaves the frozen snapshot untouched.
	resp, body = doRequest(t, http.MethodPatch, baseURL+"/meetings/"+created.ID, teacherToken, map[string]interface{}{
		"title": "Pembinaan Pekan 1 (revisi)",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on patch, got %d", resp.StatusCode)
	}
	var patched meetingResponse
	if err := json.Unmarshal(body, &patched); err != nil {
		t.Fatalf("decode patched meeting: %v", err)
	}
	if len(patched.StudentSnapshot) != len(created.StudentSnapshot) {
		t.Fatalf("expected snapshot preserved, got %d of %d", len(patched.StudentSnapshot), len(created.StudentSnapshot))
	}
	resp, _ = doRequest(t, http.MethodDelete, baseURL+"/meetings/"+created.ID, teacherToken, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, http.MethodGet, baseURL+"/meetings/"+created.ID, teacherToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestAdminReadOnlyVisibility(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("ATTENDANCE_HTTP_ADDR", "http://127.0.0.1:8080")
	teacherToken := mintToken(t, demoTeacherUserID, "teacher")
	adminToken := mintToken(t, demoAdminUserID, "admin")

	created := createMeeting(t, baseURL, teacherToken, map[string]interface{}{
		"title":       "Pembinaan Pekan 2",
		"meetingType": "PEMBINAAN",
		"date":        "2026-02-01",
		"classIds":    []string{demoClassID},
	})
	defer doRequest(t, http.MethodDelete, baseURL+"/meetings/"+created.ID, teacherToken, nil)

	// The kelompok admin sees the meeting and its full roster.
	resp, body := doRequest(t, http.MethodGet, baseURL+"/meetings/"+created.ID, adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", resp.StatusCode, body)
	}
	roster := getRoster(t, baseURL, adminToken, created.ID)
	if len(roster) != len(created.StudentSnapshot) {
		t.Fatalf("expected admin roster of %d, got %d", len(created.StudentSnapshot), len(roster))
	}

	// Export produces a spreadsheet.
	resp, body = doRequest(t, http.MethodGet, baseURL+"/meetings/"+created.ID+"/export", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on export, got %d", resp.StatusCode)
	}
	if len(body) == 0 {
		t.Fatalf("expected non-empty export body")
	}
}

func mintToken(t *testing.T, userID, role string) string {
	t.Helper()
	secret := getenv("JWT_SECRET", "dev-secret")
	issuer := getenv("JWT_ISSUER", "generus-mandiri")
	token, err := auth.NewAccessToken(secret, issuer, time.Hour, auth.Claims{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func createMeeting(t *testing.T, baseURL, token string, payload map[string]interface{}) meetingResponse {
	t.Helper()
	resp, body := doRequest(t, http.MethodPost, baseURL+"/meetings", token, payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var meeting meetingResponse
	if err := json.Unmarshal(body, &meeting); err != nil {
		t.Fatalf("decode meeting: %v", err)
	}
	if meeting.ID == "" {
		t.Fatalf("missing meeting id")
	}
	return meeting
}

func saveAttendance(t *testing.T, baseURL, token, meetingID string, entries []map[string]interface{}) {
	t.Helper()
	resp, body := doRequest(t, http.MethodPost, baseURL+"/meetings/"+meetingID+"/attendance", token, map[string]interface{}{
		"entries": entries,
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on save attendance, got %d: %s", resp.StatusCode, body)
	}
}

func getRoster(t *testing.T, baseURL, token, meetingID string) []rosterEntryResponse {
	t.Helper()
	resp, body := doRequest(t, http.MethodGet, baseURL+"/meetings/"+meetingID+"/attendance", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on roster, got %d: %s", resp.StatusCode, body)
	}
	var roster []rosterEntryResponse
	if err := json.Unmarshal(body, &roster); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	return roster
}

func doRequest(t *testing.T, method, url, token string, payload map[string]interface{}) (*http.Response, []byte) {
	t.Helper()
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, body
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
