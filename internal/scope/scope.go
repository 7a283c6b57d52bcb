// Package scope derives a viewer's visibility predicate from their profile
// and applies it to candidate meetings. The scope is an explicit value
// threaded through every engine call; nothing reads an ambient session.
package scope

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/hierarchy"
)

var (
	// ErrNotAllowed marks a request for classes outside the viewer's scope.
	ErrNotAllowed = errors.New("class filter outside viewer scope")
	// ErrInvalidProfile marks a profile that cannot yield a scope, such as
	// a scoped admin with no hierarchy node set.
	ErrInvalidProfile = errors.New("profile has no usable scope")
)

type Kind int

const (
	// Unrestricted sees every meeting (superadmin).
	Unrestricted Kind = iota
	// HierarchyScoped sees meetings touching one org node (scoped admin).
	HierarchyScoped
	// ClassScoped sees meetings touching a taught-class set (teacher).
	ClassScoped
)

// Scope is a closed sum over the three viewer kinds. Only the fields of the
// active variant are populated.
type Scope struct {
	Kind Kind

	// Base is the viewer's original kind, preserved across Narrow. Roster
	// filtering keys off the viewer, not off any class filter they applied.
	Base Kind

	// HierarchyScoped
	Level  db.OrgLevel
	NodeID uuid.UUID

	// ClassScoped
	classSet    map[uuid.UUID]struct{}
	kelompokSet map[uuid.UUID]struct{}
	// teachesCaberawit unlocks Pengajar meetings in the teacher's kelompok.
	teachesCaberawit bool
}

// Visibility reports whether a meeting is visible and, for teachers, whether
// it matched through the Pengajar cross-category exception rather than a
// taught class. The distinction drives roster resolution.
type Visibility struct {
	Visible     bool
	ViaPengajar bool
}

// FromProfile derives the scope once per request.
func FromProfile(p db.Profile, ix *hierarchy.Index) (Scope, error) {
	switch p.Role {
	case db.RoleSuperadmin:
		return Scope{Kind: Unrestricted, Base: Unrestricted}, nil
	case db.RoleAdmin:
		// Exactly one hierarchy level is set for a scoped admin.
		switch {
		case p.KelompokID != uuid.Nil:
			return Scope{Kind: HierarchyScoped, Base: HierarchyScoped, Level: db.LevelKelompok, NodeID: p.KelompokID}, nil
		case p.DesaID != uuid.Nil:
			return Scope{Kind: HierarchyScoped, Base: HierarchyScoped, Level: db.LevelDesa, NodeID: p.DesaID}, nil
		case p.DaerahID != uuid.Nil:
			return Scope{Kind: HierarchyScoped, Base: HierarchyScoped, Level: db.LevelDaerah, NodeID: p.DaerahID}, nil
		default:
			// Admin without a node behaves as unrestricted.
			return Scope{Kind: Unrestricted, Base: Unrestricted}, nil
		}
	case db.RoleTeacher:
		if len(p.TaughtClassIDs) == 0 {
			return Scope{}, fmt.Errorf("teacher %s: %w", p.UserID, ErrInvalidProfile)
		}
		sc := classScope(p.TaughtClassIDs, ix)
		sc.Base = ClassScoped
		return sc, nil
	default:
		return Scope{}, fmt.Errorf("role %q: %w", p.Role, ErrInvalidProfile)
	}
}

func classScope(classIDs []uuid.UUID, ix *hierarchy.Index) Scope {
	sc := Scope{
		Kind:        ClassScoped,
		classSet:    make(map[uuid.UUID]struct{}, len(classIDs)),
		kelompokSet: ix.KelompokOf(classIDs),
	}
	for _, id := range classIDs {
		sc.classSet[id] = struct{}{}
		if ix.CategoryOf(id).IsCaberawit {
			sc.teachesCaberawit = true
		}
	}
	return sc
}

// Narrow restricts a scope to an explicit class filter. The filter must be a
// subset of the viewer's allowed classes; anything else is a permission
// error, never a silent narrowing.
func (s Scope) Narrow(classIDs []uuid.UUID, ix *hierarchy.Index) (Scope, error) {
	if len(classIDs) == 0 {
		return s, nil
	}
	switch s.Kind {
	case Unrestricted:
		narrowed := classScope(classIDs, ix)
		narrowed.Base = s.Base
		return narrowed, nil
	case HierarchyScoped:
		for _, id := range classIDs {
			if !s.containsAncestors(ix.AncestorsOf(id)) {
				return Scope{}, fmt.Errorf("class %s: %w", id, ErrNotAllowed)
			}
		}
		narrowed := classScope(classIDs, ix)
		narrowed.Base = s.Base
		return narrowed, nil
	case ClassScoped:
		for _, id := range classIDs {
			if _, ok := s.classSet[id]; !ok {
				return Scope{}, fmt.Errorf("class %s: %w", id, ErrNotAllowed)
			}
		}
		// The narrowed scope keeps the caberawit grant but recomputes the
		// kelompok set from the filter's classes only.
		narrowed := classScope(classIDs, ix)
		narrowed.Base = s.Base
		narrowed.teachesCaberawit = s.teachesCaberawit
		return narrowed, nil
	}
	return Scope{}, fmt.Errorf("scope kind %d: %w", s.Kind, ErrInvalidProfile)
}

// AllowsMeeting applies the per-variant visibility rule from one place so
// call sites never re-branch on role.
func (s Scope) AllowsMeeting(m db.Meeting, ix *hierarchy.Index) Visibility {
	switch s.Kind {
	case Unrestricted:
		return Visibility{Visible: true}
	case HierarchyScoped:
		for _, classID := range m.ClassIDs {
			if s.containsAncestors(ix.AncestorsOf(classID)) {
				return Visibility{Visible: true}
			}
		}
		return Visibility{}
	case ClassScoped:
		for _, classID := range m.ClassIDs {
			if _, ok := s.classSet[classID]; ok {
				return Visibility{Visible: true}
			}
		}
		if s.teachesCaberawit {
			// Pengajar meetings are organized per kelompok; caberawit
			// teachers in that kelompok see them without teaching the
			// Pengajar class itself.
			for _, classID := range m.ClassIDs {
				if !ix.CategoryOf(classID).IsTeacherClass {
					continue
				}
				if _, ok := s.kelompokSet[ix.AncestorsOf(classID).KelompokID]; ok {
					return Visibility{Visible: true, ViaPengajar: true}
				}
			}
		}
		return Visibility{}
	}
	return Visibility{}
}

// AllowsClass reports whether a single class is inside the scope. Used by
// write paths (create, save attendance, delete) before touching a meeting.
func (s Scope) AllowsClass(classID uuid.UUID, ix *hierarchy.Index) bool {
	switch s.Kind {
	case Unrestricted:
		return true
	case HierarchyScoped:
		return s.containsAncestors(ix.AncestorsOf(classID))
	case ClassScoped:
		_, ok := s.classSet[classID]
		return ok
	}
	return false
}

// ClassIDs returns the class set of a ClassScoped viewer, nil otherwise.
func (s Scope) ClassIDs() []uuid.UUID {
	if s.Kind != ClassScoped {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(s.classSet))
	for id := range s.classSet {
		ids = append(ids, id)
	}
	return ids
}

// ContainsAnyClass reports intersection with a class-id set.
func (s Scope) ContainsAnyClass(classIDs []uuid.UUID) bool {
	if s.Kind != ClassScoped {
		return false
	}
	for _, id := range classIDs {
		if _, ok := s.classSet[id]; ok {
			return true
		}
	}
	return false
}

func (s Scope) containsAncestors(anc hierarchy.Ancestors) bool {
	switch s.Level {
	case db.LevelKelompok:
		return anc.KelompokID == s.NodeID
	case db.LevelDesa:
		return anc.DesaID == s.NodeID
	case db.LevelDaerah:
		return anc.DaerahID == s.NodeID
	}
	return false
}
