package meetings

import (
	"math"

	"github.com/google/uuid"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
)

type Stats struct {
	TotalStudents        int `json:"totalStudents"`
	PresentCount         int `json:"presentCount"`
	AbsentCount          int `json:"absentCount"`
	SickCount            int `json:"sickCount"`
	ExcusedCount         int `json:"excusedCount"`
	AttendancePercentage int `json:"attendancePercentage"`
}

// Aggregate folds attendance rows into per-status counts against the relevant
// roster. Rows for students outside the roster are dropped first: a viewer
// with a partially relevant roster must not count attendance they cannot see.
// Students with no row count toward the denominator only; they are not
// defaulted into any status bucket here.
func Aggregate(roster map[uuid.UUID]struct{}, logs []db.AttendanceLog) Stats {
	stats := Stats{TotalStudents: len(roster)}
	for _, l := range logs {
		if _, ok := roster[l.StudentID]; !ok {
			continue
		}
		switch l.Status {
		case db.StatusHadir:
			stats.PresentCount++
		case db.StatusAlpa:
			stats.AbsentCount++
		case db.StatusSakit:
			stats.SickCount++
		case db.StatusIzin:
			stats.ExcusedCount++
		}
	}
	if stats.TotalStudents > 0 {
		stats.AttendancePercentage = int(math.Round(float64(stats.PresentCount) / float64(stats.TotalStudents) * 100))
	}
	return stats
}

// groupLogsByMeeting partitions one batched fetch result per meeting.
func groupLogsByMeeting(logs []db.AttendanceLog) map[uuid.UUID][]db.AttendanceLog {
	grouped := make(map[uuid.UUID][]db.AttendanceLog)
	for _, l := range logs {
		grouped[l.MeetingID] = append(grouped[l.MeetingID], l)
	}
	return grouped
}
