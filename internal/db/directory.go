package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) GetClassesByIDs(ctx context.Context, ids []uuid.UUID) ([]Class, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, kelompok_id, is_teacher_class, is_caberawit, is_sambung_eligible, master_class_ids
		FROM classes
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.Name, &c.KelompokID, &c.IsTeacherClass, &c.IsCaberawit, &c.IsSambungEligible, &c.MasterClassIDs); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func (s *Store) ListKelompok(ctx context.Context) ([]KelompokNode, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, parent_id
		FROM org_nodes
		WHERE level = 'kelompok'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []KelompokNode
	for rows.Next() {
		var (
			n      KelompokNode
			parent *uuid.UUID
		)
		if err := rows.Scan(&n.ID, &parent); err != nil {
			return nil, err
		}
		n.DesaID = derefUUID(parent)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *Store) ListDesa(ctx context.Context) ([]DesaNode, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, parent_id
		FROM org_nodes
		WHERE level = 'desa'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []DesaNode
	for rows.Next() {
		var (
			n      DesaNode
			parent *uuid.UUID
		)
		if err := rows.Scan(&n.ID, &parent); err != nil {
			return nil, err
		}
		n.DaerahID = derefUUID(parent)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *Store) GetStudentsByIDs(ctx context.Context, ids []uuid.UUID) ([]Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, gender, class_ids
		FROM students
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStudents(rows)
}

// ListStudentsByClassIDs returns current members of any of the given classes.
// Used only to seed a new meeting snapshot; reads after creation go through
// the frozen snapshot instead.
func (s *Store) ListStudentsByClassIDs(ctx context.Context, classIDs []uuid.UUID) ([]Student, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, gender, class_ids
		FROM students
		WHERE class_ids && $1
		ORDER BY name
	`, classIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStudents(rows)
}

func collectStudents(rows pgx.Rows) ([]Student, error) {
	var students []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Gender, &st.ClassIDs); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	var (
		p                      Profile
		daerah, desa, kelompok *uuid.UUID
	)
	row := s.Pool.QueryRow(ctx, `
		SELECT user_id, role, daerah_id, desa_id, kelompok_id, taught_class_ids
		FROM profiles
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&p.UserID, &p.Role, &daerah, &desa, &kelompok, &p.TaughtClassIDs); err != nil {
		return Profile{}, err
	}
	p.DaerahID = derefUUID(daerah)
	p.DesaID = derefUUID(desa)
	p.KelompokID = derefUUID(kelompok)
	return p, nil
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
