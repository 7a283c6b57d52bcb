// Package hierarchy resolves classes to their Kelompok/Desa/Daerah ancestors
// and category flags. An Index is built once per request from batched lookups
// so downstream filtering never touches the database per meeting.
package hierarchy

import (
	"github.com/google/uuid"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
)

type Ancestors struct {
	KelompokID uuid.UUID
	DesaID     uuid.UUID
	DaerahID   uuid.UUID
}

type Category struct {
	IsTeacherClass    bool
	IsCaberawit       bool
	IsSambungEligible bool
}

type Index struct {
	ancestors  map[uuid.UUID]Ancestors
	categories map[uuid.UUID]Category
	names      map[uuid.UUID]string
}

// Build folds the batched class rows and the org tree into lookup maps.
// Classes whose kelompok is unknown keep zero-valued ancestors; they stay
// out of location-based grouping but remain visible when directly matched.
func Build(classes []db.Class, kelompok []db.KelompokNode, desa []db.DesaNode) *Index {
	desaByID := make(map[uuid.UUID]db.DesaNode, len(desa))
	for _, d := range desa {
		desaByID[d.ID] = d
	}
	kelompokByID := make(map[uuid.UUID]db.KelompokNode, len(kelompok))
	for _, k := range kelompok {
		kelompokByID[k.ID] = k
	}

	ix := &Index{
		ancestors:  make(map[uuid.UUID]Ancestors, len(classes)),
		categories: make(map[uuid.UUID]Category, len(classes)),
		names:      make(map[uuid.UUID]string, len(classes)),
	}
	for _, c := range classes {
		anc := Ancestors{KelompokID: c.KelompokID}
		if k, ok := kelompokByID[c.KelompokID]; ok {
			anc.DesaID = k.DesaID
			if d, ok := desaByID[k.DesaID]; ok {
				anc.DaerahID = d.DaerahID
			}
		}
		ix.ancestors[c.ID] = anc
		ix.categories[c.ID] = Category{
			IsTeacherClass:    c.IsTeacherClass,
			IsCaberawit:       c.IsCaberawit,
			IsSambungEligible: c.IsSambungEligible,
		}
		ix.names[c.ID] = c.Name
	}
	return ix
}

// AncestorsOf never fails; an unknown class resolves to zero-valued ids.
func (ix *Index) AncestorsOf(classID uuid.UUID) Ancestors {
	return ix.ancestors[classID]
}

// CategoryOf returns default (non-matching) flags for unknown classes.
func (ix *Index) CategoryOf(classID uuid.UUID) Category {
	return ix.categories[classID]
}

func (ix *Index) NameOf(classID uuid.UUID) string {
	return ix.names[classID]
}

// Contains reports whether the class resolved during the batch lookup.
func (ix *Index) Contains(classID uuid.UUID) bool {
	_, ok := ix.names[classID]
	return ok
}

// KelompokOf collects the distinct kelompok ids the given classes resolve to.
func (ix *Index) KelompokOf(classIDs []uuid.UUID) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(classIDs))
	for _, id := range classIDs {
		anc := ix.ancestors[id]
		if anc.KelompokID != uuid.Nil {
			out[anc.KelompokID] = struct{}{}
		}
	}
	return out
}
