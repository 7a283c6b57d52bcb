package scope

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/hierarchy"
)

// fixture is one daerah with two desa. Desa 1 holds kelompok 1 (a caberawit
// class and a pengajar class) and kelompok 2 (a caberawit class); desa 2
// holds kelompok 3 with its own caberawit class.
type fixture struct {
	daerahID  uuid.UUID
	desa1     uuid.UUID
	desa2     uuid.UUID
	kelompok1 uuid.UUID
	kelompok2 uuid.UUID
	kelompok3 uuid.UUID

	caberawit1 uuid.UUID
	pengajar1  uuid.UUID
	caberawit2 uuid.UUID
	caberawit3 uuid.UUID

	ix *hierarchy.Index
}

func newFixture() fixture {
	f := fixture{
		daerahID:   uuid.New(),
		desa1:      uuid.New(),
		desa2:      uuid.New(),
		kelompok1:  uuid.New(),
		kelompok2:  uuid.New(),
		kelompok3:  uuid.New(),
		caberawit1: uuid.New(),
		pengajar1:  uuid.New(),
		caberawit2: uuid.New(),
		caberawit3: uuid.New(),
	}
	f.ix = hierarchy.Build(
		[]db.Class{
			{ID: f.caberawit1, Name: "Caberawit 1", KelompokID: f.kelompok1, IsCaberawit: true},
			{ID: f.pengajar1, Name: "Pengajar 1", KelompokID: f.kelompok1, IsTeacherClass: true},
			{ID: f.caberawit2, Name: "Caberawit 2", KelompokID: f.kelompok2, IsCaberawit: true},
			{ID: f.caberawit3, Name: "Caberawit 3", KelompokID: f.kelompok3, IsCaberawit: true},
		},
		[]db.KelompokNode{
			{ID: f.kelompok1, DesaID: f.desa1},
			{ID: f.kelompok2, DesaID: f.desa1},
			{ID: f.kelompok3, DesaID: f.desa2},
		},
		[]db.DesaNode{
			{ID: f.desa1, DaerahID: f.daerahID},
			{ID: f.desa2, DaerahID: f.daerahID},
		},
	)
	return f
}

func meetingFor(classIDs ...uuid.UUID) db.Meeting {
	return db.Meeting{
		ID:             uuid.New(),
		MeetingType:    db.MeetingTypePembinaan,
		PrimaryClassID: classIDs[0],
		ClassIDs:       classIDs,
	}
}

func teacherScope(t *testing.T, f fixture, taught ...uuid.UUID) Scope {
	t.Helper()
	sc, err := FromProfile(db.Profile{
		UserID:         uuid.New(),
		Role:           db.RoleTeacher,
		TaughtClassIDs: taught,
	}, f.ix)
	if err != nil {
		t.Fatalf("derive teacher scope: %v", err)
	}
	return sc
}

func TestTeacherSeesOwnClassOnly(t *testing.T) {
	f := newFixture()
	sc := teacherScope(t, f, f.caberawit1)

	if vis := sc.AllowsMeeting(meetingFor(f.caberawit1), f.ix); !vis.Visible || vis.ViaPengajar {
		t.Fatalf("expected direct visibility, got %+v", vis)
	}
	if vis := sc.AllowsMeeting(meetingFor(f.caberawit2), f.ix); vis.Visible {
		t.Fatalf("expected other kelompok's class to be hidden")
	}
	if vis := sc.AllowsMeeting(meetingFor(f.caberawit3), f.ix); vis.Visible {
		t.Fatalf("expected other desa's class to be hidden")
	}
}

func TestCaberawitTeacherSeesPengajarInOwnKelompok(t *testing.T) {
	f := newFixture()

	sc := teacherScope(t, f, f.caberawit1)
	vis := sc.AllowsMeeting(meetingFor(f.pengajar1), f.ix)
	if !vis.Visible || !vis.ViaPengajar {
		t.Fatalf("expected pengajar visibility via exception, got %+v", vis)
	}

	// The same pengajar meeting stays hidden from a caberawit teacher in a
	// different kelompok.
	other := teacherScope(t, f, f.caberawit2)
	if vis := other.AllowsMeeting(meetingFor(f.pengajar1), f.ix); vis.Visible {
		t.Fatalf("expected pengajar meeting hidden across kelompok")
	}
}

func TestNonCaberawitTeacherHasNoPengajarGrant(t *testing.T) {
	f := newFixture()
	// A teacher of the pengajar class itself sees it directly, not via the
	// exception.
	sc := teacherScope(t, f, f.pengajar1)
	vis := sc.AllowsMeeting(meetingFor(f.pengajar1), f.ix)
	if !vis.Visible || vis.ViaPengajar {
		t.Fatalf("expected direct visibility, got %+v", vis)
	}
	if vis := sc.AllowsMeeting(meetingFor(f.caberawit1), f.ix); vis.Visible {
		t.Fatalf("expected caberawit class hidden from pengajar-only teacher")
	}
}

func TestAdminHierarchyVisibility(t *testing.T) {
	f := newFixture()
	sc, err := FromProfile(db.Profile{
		UserID: uuid.New(),
		Role:   db.RoleAdmin,
		DesaID: f.desa1,
	}, f.ix)
	if err != nil {
		t.Fatalf("derive admin scope: %v", err)
	}
	if sc.Kind != HierarchyScoped || sc.Level != db.LevelDesa {
		t.Fatalf("expected desa-scoped admin, got %+v", sc)
	}

	if vis := sc.AllowsMeeting(meetingFor(f.caberawit2), f.ix); !vis.Visible {
		t.Fatalf("expected meeting inside desa to be visible")
	}
	if vis := sc.AllowsMeeting(meetingFor(f.caberawit3), f.ix); vis.Visible {
		t.Fatalf("expected meeting in other desa to be hidden")
	}
	// A multi-class meeting is visible when any class is inside the node.
	if vis := sc.AllowsMeeting(meetingFor(f.caberawit3, f.caberawit1), f.ix); !vis.Visible {
		t.Fatalf("expected partial overlap to be visible")
	}
}

func TestSuperadminUnrestricted(t *testing.T) {
	f := newFixture()
	sc, err := FromProfile(db.Profile{UserID: uuid.New(), Role: db.RoleSuperadmin}, f.ix)
	if err != nil {
		t.Fatalf("derive superadmin scope: %v", err)
	}
	if sc.Kind != Unrestricted {
		t.Fatalf("expected unrestricted, got %v", sc.Kind)
	}
	if vis := sc.AllowsMeeting(meetingFor(f.caberawit3), f.ix); !vis.Visible {
		t.Fatalf("expected everything visible")
	}
}

func TestAdminWithoutNodeIsUnrestricted(t *testing.T) {
	f := newFixture()
	sc, err := FromProfile(db.Profile{UserID: uuid.New(), Role: db.RoleAdmin}, f.ix)
	if err != nil {
		t.Fatalf("derive nodeless admin scope: %v", err)
	}
	if sc.Kind != Unrestricted {
		t.Fatalf("expected unrestricted fallback, got %v", sc.Kind)
	}
}

func TestTeacherWithoutClassesIsInvalid(t *testing.T) {
	f := newFixture()
	_, err := FromProfile(db.Profile{UserID: uuid.New(), Role: db.RoleTeacher}, f.ix)
	if !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
}

func TestNarrowRejectsOutsideClasses(t *testing.T) {
	f := newFixture()

	sc := teacherScope(t, f, f.caberawit1)
	if _, err := sc.Narrow([]uuid.UUID{f.caberawit2}, f.ix); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed for teacher, got %v", err)
	}

	admin, err := FromProfile(db.Profile{UserID: uuid.New(), Role: db.RoleAdmin, DesaID: f.desa1}, f.ix)
	if err != nil {
		t.Fatalf("derive admin scope: %v", err)
	}
	if _, err := admin.Narrow([]uuid.UUID{f.caberawit3}, f.ix); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed for admin, got %v", err)
	}
	narrowed, err := admin.Narrow([]uuid.UUID{f.caberawit1}, f.ix)
	if err != nil {
		t.Fatalf("expected in-desa filter to narrow: %v", err)
	}
	if narrowed.Kind != ClassScoped || narrowed.Base != HierarchyScoped {
		t.Fatalf("expected class-scoped narrowing with preserved base, got %+v", narrowed)
	}
}

func TestNarrowPreservesCaberawitGrant(t *testing.T) {
	f := newFixture()
	sc := teacherScope(t, f, f.caberawit1)

	narrowed, err := sc.Narrow([]uuid.UUID{f.caberawit1}, f.ix)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}
	vis := narrowed.AllowsMeeting(meetingFor(f.pengajar1), f.ix)
	if !vis.Visible || !vis.ViaPengajar {
		t.Fatalf("expected pengajar grant to survive narrowing, got %+v", vis)
	}
}

func TestNarrowEmptyFilterIsIdentity(t *testing.T) {
	f := newFixture()
	sc := teacherScope(t, f, f.caberawit1)
	same, err := sc.Narrow(nil, f.ix)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}
	if same.Kind != ClassScoped || !same.ContainsAnyClass([]uuid.UUID{f.caberawit1}) {
		t.Fatalf("expected unchanged scope, got %+v", same)
	}
}

func TestAllowsClass(t *testing.T) {
	f := newFixture()

	sc := teacherScope(t, f, f.caberawit1)
	if !sc.AllowsClass(f.caberawit1, f.ix) {
		t.Fatalf("expected taught class allowed")
	}
	if sc.AllowsClass(f.pengajar1, f.ix) {
		t.Fatalf("pengajar exception must not grant write access")
	}

	admin, err := FromProfile(db.Profile{UserID: uuid.New(), Role: db.RoleAdmin, KelompokID: f.kelompok1}, f.ix)
	if err != nil {
		t.Fatalf("derive admin scope: %v", err)
	}
	if !admin.AllowsClass(f.pengajar1, f.ix) {
		t.Fatalf("expected class inside kelompok allowed")
	}
	if admin.AllowsClass(f.caberawit2, f.ix) {
		t.Fatalf("expected class outside kelompok rejected")
	}
}
