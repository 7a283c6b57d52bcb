package meetings

import (
	"github.com/google/uuid"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/scope"
)

// RelevantRoster computes the student-id set a viewer's statistics run
// against. The frozen snapshot is the universe; it is narrowed only for
// teacher viewers and never for meetings granted through the Pengajar
// exception, which teachers see with the full roster.
//
// studentClasses maps student id to current class membership and is only
// consulted for teacher viewers; pass nil for other viewers.
func RelevantRoster(m db.Meeting, sc scope.Scope, vis scope.Visibility, studentClasses map[uuid.UUID][]uuid.UUID) map[uuid.UUID]struct{} {
	roster := make(map[uuid.UUID]struct{}, len(m.StudentSnapshot))
	if sc.Base != scope.ClassScoped || vis.ViaPengajar {
		for _, id := range m.StudentSnapshot {
			roster[id] = struct{}{}
		}
		return roster
	}
	for _, id := range m.StudentSnapshot {
		if sc.ContainsAnyClass(studentClasses[id]) {
			roster[id] = struct{}{}
		}
	}
	return roster
}

// snapshotStudentClasses batch-resolves class membership for every student
// appearing in any of the given snapshots. One query for the whole page.
func snapshotStudentClasses(students []db.Student) map[uuid.UUID][]uuid.UUID {
	out := make(map[uuid.UUID][]uuid.UUID, len(students))
	for _, st := range students {
		out[st.ID] = st.ClassIDs
	}
	return out
}

func unionSnapshots(ms []db.Meeting) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, m := range ms {
		for _, id := range m.StudentSnapshot {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
