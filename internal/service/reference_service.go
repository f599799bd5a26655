package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-committee-api/internal/dto"
	"github.com/noah-isme/exam-committee-api/internal/models"
	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
)

type referenceStore interface {
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	ListCourses(ctx context.Context, level, semester string) ([]models.Course, error)
	ListExternals(ctx context.Context) ([]models.ExternalExaminer, error)
}

// ReferenceService serves the read-only catalogs used while drafting, backed by the cache.
type ReferenceService struct {
	repo   referenceStore
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewReferenceService constructs the service. A nil cache disables caching.
func NewReferenceService(repo referenceStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *ReferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Teachers lists the teacher directory. The bool reports a cache hit.
func (s *ReferenceService) Teachers(ctx context.Context) ([]models.Teacher, bool, error) {
	const key = "reference:teachers"
	var teachers []models.Teacher
	if s.cache.Get(ctx, key, &teachers) {
		return teachers, true, nil
	}
	teachers, err := s.repo.ListTeachers(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	s.cache.Set(ctx, key, teachers, s.ttl)
	return teachers, false, nil
}

// Courses lists catalog entries for a level and semester with their picker label.
func (s *ReferenceService) Courses(ctx context.Context, query dto.CourseQuery) ([]dto.CourseOption, bool, error) {
	level := strings.TrimSpace(query.Level)
	semester := strings.TrimSpace(query.Semester)
	if level == "" || semester == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "level and semester are required")
	}

	key := fmt.Sprintf("reference:courses:%s:%s", level, semester)
	var options []dto.CourseOption
	if s.cache.Get(ctx, key, &options) {
		return options, true, nil
	}
	courses, err := s.repo.ListCourses(ctx, level, semester)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	options = make([]dto.CourseOption, len(courses))
	for i, course := range courses {
		options[i] = dto.CourseOption{Course: course, Display: CourseDisplay(course)}
	}
	s.cache.Set(ctx, key, options, s.ttl)
	return options, false, nil
}

// Externals lists the external examiner directory.
func (s *ReferenceService) Externals(ctx context.Context) ([]models.ExternalExaminer, bool, error) {
	const key = "reference:externals"
	var externals []models.ExternalExaminer
	if s.cache.Get(ctx, key, &externals) {
		return externals, true, nil
	}
	externals, err := s.repo.ListExternals(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list external examiners")
	}
	s.cache.Set(ctx, key, externals, s.ttl)
	return externals, false, nil
}

// CourseDisplay renders "<title> <examType> <credit> (Credit)".
func CourseDisplay(course models.Course) string {
	return fmt.Sprintf("%s %s %s (Credit)", course.CourseTitle, course.ExamType, course.Credit)
}
