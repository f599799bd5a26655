package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-committee-api/internal/models"
)

// ReferenceRepository reads the catalogs used while drafting a proposal.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs the repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// ListTeachers returns teachers with a non-empty name ordered alphabetically.
func (r *ReferenceRepository) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	const query = `SELECT id, name, designation, department, university FROM teachers
	WHERE name IS NOT NULL AND TRIM(name) <> '' ORDER BY name ASC`
	teachers := []models.Teacher{}
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// ListCourses returns catalog entries offered at the given level and semester.
func (r *ReferenceRepository) ListCourses(ctx context.Context, level, semester string) ([]models.Course, error) {
	const query = `SELECT id, course_code, course_title, exam_type, credit, level, semester FROM courses
	WHERE level = $1 AND semester = $2 ORDER BY course_code ASC`
	courses := []models.Course{}
	if err := r.db.SelectContext(ctx, &courses, query, level, semester); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListExternals returns the external examiner directory.
func (r *ReferenceRepository) ListExternals(ctx context.Context) ([]models.ExternalExaminer, error) {
	const query = `SELECT id, name, designation, dept, uni FROM external_examiners ORDER BY name ASC`
	externals := []models.ExternalExaminer{}
	if err := r.db.SelectContext(ctx, &externals, query); err != nil {
		return nil, fmt.Errorf("list external examiners: %w", err)
	}
	return externals, nil
}
