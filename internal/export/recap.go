// Package export renders an attendance recap workbook for a single meeting.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/meetings"
)

var statusLabels = map[db.AttendanceStatus]string{
	db.StatusHadir: "Hadir",
	db.StatusIzin:  "Izin",
	db.StatusSakit: "Sakit",
	db.StatusAlpa:  "Alpa",
}

// Recap writes one row per relevant roster student plus a summary row.
// Students with no recorded log get an empty status cell, mirroring the
// aggregation engine's "not yet recorded" semantics.
func Recap(meeting db.Meeting, classNames []string, entries []meetings.RosterEntry, stats meetings.Stats) (*bytes.Buffer, error) {
	file := excelize.NewFile()
	sheet := file.GetSheetName(file.GetActiveSheetIndex())

	_ = file.SetCellValue(sheet, "A1", meeting.Title)
	_ = file.SetCellValue(sheet, "A2", fmt.Sprintf("Tanggal: %s", meeting.MeetingDate.Format("2006-01-02")))
	if len(classNames) > 0 {
		_ = file.SetCellValue(sheet, "A3", fmt.Sprintf("Kelas: %s", strings.Join(classNames, ", ")))
	}

	headers := []string{"No", "Nama", "Status", "Keterangan"}
	headerRow := 5
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		_ = file.SetCellValue(sheet, cell, header)
	}

	for index, entry := range entries {
		row := headerRow + 1 + index
		_ = file.SetCellValue(sheet, fmt.Sprintf("A%d", row), index+1)
		_ = file.SetCellValue(sheet, fmt.Sprintf("B%d", row), entry.Student.Name)
		if entry.Log != nil {
			_ = file.SetCellValue(sheet, fmt.Sprintf("C%d", row), statusLabels[entry.Log.Status])
			if entry.Log.Reason != nil {
				_ = file.SetCellValue(sheet, fmt.Sprintf("D%d", row), *entry.Log.Reason)
			}
		}
	}

	summaryRow := headerRow + len(entries) + 2
	summary := fmt.Sprintf("Hadir %d / %d (%d%%), Izin %d, Sakit %d, Alpa %d",
		stats.PresentCount, stats.TotalStudents, stats.AttendancePercentage,
		stats.ExcusedCount, stats.SickCount, stats.AbsentCount)
	_ = file.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), summary)

	return file.WriteToBuffer()
}
