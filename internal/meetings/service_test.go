package meetings

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/hierarchy"
)

func TestUnionIDs(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()

	out := unionIDs([]uuid.UUID{a, b}, []uuid.UUID{b, c})
	if len(out) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(out))
	}
	if out[0] != a || out[1] != b || out[2] != c {
		t.Fatalf("expected order preserved, got %v", out)
	}

	if out := unionIDs(nil, nil); len(out) != 0 {
		t.Fatalf("expected empty union, got %v", out)
	}
}

func TestClassIDsOfDeduplicatesAcrossMeetings(t *testing.T) {
	shared := uuid.New()
	only := uuid.New()
	ms := []db.Meeting{
		{ClassIDs: []uuid.UUID{shared}},
		{ClassIDs: []uuid.UUID{shared, only}},
	}

	ids := classIDsOf(ms)
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct classes, got %d", len(ids))
	}
}

func TestCrossKelompokIDsDroppedForOtherTypes(t *testing.T) {
	classID := uuid.New()
	ix := hierarchy.Build([]db.Class{{ID: classID, KelompokID: uuid.New(), IsSambungEligible: true}}, nil, nil)
	kelompokIDs := []uuid.UUID{uuid.New(), uuid.New()}

	for _, meetingType := range []db.MeetingType{
		db.MeetingTypePembinaan,
		db.MeetingTypeSambungKelompok,
		db.MeetingTypeSambungDaerah,
		db.MeetingTypeSambungPusat,
	} {
		kept, err := crossKelompokIDs(meetingType, []uuid.UUID{classID}, kelompokIDs, ix)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", meetingType, err)
		}
		if kept != nil {
			t.Fatalf("%s: expected kelompok ids dropped, got %v", meetingType, kept)
		}
	}
}

func TestCrossKelompokIDsRequireEligibleClasses(t *testing.T) {
	eligible := uuid.New()
	caberawit := uuid.New()
	ix := hierarchy.Build([]db.Class{
		{ID: eligible, KelompokID: uuid.New(), IsSambungEligible: true},
		{ID: caberawit, KelompokID: uuid.New(), IsCaberawit: true},
	}, nil, nil)
	kelompokIDs := []uuid.UUID{uuid.New()}

	kept, err := crossKelompokIDs(db.MeetingTypeSambungDesa, []uuid.UUID{eligible}, kelompokIDs, ix)
	if err != nil {
		t.Fatalf("eligible class: %v", err)
	}
	if len(kept) != 1 || kept[0] != kelompokIDs[0] {
		t.Fatalf("expected kelompok ids kept, got %v", kept)
	}

	_, err = crossKelompokIDs(db.MeetingTypeSambungDesa, []uuid.UUID{eligible, caberawit}, kelompokIDs, ix)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for caberawit class, got %v", err)
	}
}

func TestClassNamesSkipsUnknown(t *testing.T) {
	known := uuid.New()
	ix := hierarchy.Build([]db.Class{{ID: known, Name: "Caberawit A", KelompokID: uuid.New()}}, nil, nil)

	names := classNames(ix, []uuid.UUID{known, uuid.New()})
	if len(names) != 1 || names[0] != "Caberawit A" {
		t.Fatalf("unexpected names %v", names)
	}
}
