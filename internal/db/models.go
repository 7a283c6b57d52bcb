package db

import (
	"time"

	"github.com/google/uuid"
)

type MeetingType string

const (
	MeetingTypePembinaan       MeetingType = "PEMBINAAN"
	MeetingTypeSambungKelompok MeetingType = "SAMBUNG_KELOMPOK"
	MeetingTypeSambungDesa     MeetingType = "SAMBUNG_DESA"
	MeetingTypeSambungDaerah   MeetingType = "SAMBUNG_DAERAH"
	MeetingTypeSambungPusat    MeetingType = "SAMBUNG_PUSAT"
)

type AttendanceStatus string

const (
	StatusHadir AttendanceStatus = "H"
	StatusIzin  AttendanceStatus = "I"
	StatusSakit AttendanceStatus = "S"
	StatusAlpa  AttendanceStatus = "A"
)

type OrgLevel string

const (
	LevelDaerah   OrgLevel = "daerah"
	LevelDesa     OrgLevel = "desa"
	LevelKelompok OrgLevel = "kelompok"
)

type Role string

const (
	RoleTeacher    Role = "teacher"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

type Class struct {
	ID                uuid.UUID
	Name              string
	KelompokID        uuid.UUID
	IsTeacherClass    bool
	IsCaberawit       bool
	IsSambungEligible bool
	MasterClassIDs    []uuid.UUID
}

type KelompokNode struct {
	ID     uuid.UUID
	DesaID uuid.UUID
}

type DesaNode struct {
	ID       uuid.UUID
	DaerahID uuid.UUID
}

type Student struct {
	ID       uuid.UUID
	Name     string
	Gender   string
	ClassIDs []uuid.UUID
}

type Profile struct {
	UserID         uuid.UUID
	Role           Role
	DaerahID       uuid.UUID
	DesaID         uuid.UUID
	KelompokID     uuid.UUID
	TaughtClassIDs []uuid.UUID
}

type Meeting struct {
	ID             uuid.UUID
	Title          string
	Topic          string
	MeetingType    MeetingType
	PrimaryClassID uuid.UUID
	ClassIDs       []uuid.UUID
	KelompokIDs    []uuid.UUID
	TeacherID      uuid.UUID
	MeetingDate    time.Time
	// StudentSnapshot is the roster frozen at create/edit time. Statistics
	// denominators come from here, never from live class membership.
	StudentSnapshot []uuid.UUID
	SequenceNumber  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type AttendanceLog struct {
	StudentID  uuid.UUID
	MeetingID  uuid.UUID
	Status     AttendanceStatus
	Reason     *string
	RecordedBy uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func ValidStatus(value string) (AttendanceStatus, bool) {
	switch AttendanceStatus(value) {
	case StatusHadir, StatusIzin, StatusSakit, StatusAlpa:
		return AttendanceStatus(value), true
	default:
		return "", false
	}
}

func ValidMeetingType(value string) (MeetingType, bool) {
	switch MeetingType(value) {
	case MeetingTypePembinaan, MeetingTypeSambungKelompok, MeetingTypeSambungDesa,
		MeetingTypeSambungDaerah, MeetingTypeSambungPusat:
		return MeetingType(value), true
	default:
		return "", false
	}
}
