package dto

import "github.com/noah-isme/exam-committee-api/internal/models"

// CourseOption is a catalog entry with the label shown in course pickers.
type CourseOption struct {
	models.Course
	Display string `json:"display"`
}

// CourseQuery selects a catalog slice.
type CourseQuery struct {
	Level    string `form:"level" validate:"required"`
	Semester string `form:"semester" validate:"required"`
}
