package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-committee-api/internal/dto"
	"github.com/noah-isme/exam-committee-api/internal/middleware"
	"github.com/noah-isme/exam-committee-api/internal/models"
	"github.com/noah-isme/exam-committee-api/pkg/response"
)

type referenceCatalog interface {
	Teachers(ctx context.Context) ([]models.Teacher, bool, error)
	Courses(ctx context.Context, query dto.CourseQuery) ([]dto.CourseOption, bool, error)
	Externals(ctx context.Context) ([]models.ExternalExaminer, bool, error)
}

// ReferenceHandler serves the catalogs used while drafting a proposal.
type ReferenceHandler struct {
	catalog referenceCatalog
}

// NewReferenceHandler constructs the handler.
func NewReferenceHandler(catalog referenceCatalog) *ReferenceHandler {
	return &ReferenceHandler{catalog: catalog}
}

// Teachers godoc
// @Summary Teacher directory
// @Tags Reference
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reference/teachers [get]
func (h *ReferenceHandler) Teachers(c *gin.Context) {
	teachers, hit, err := h.catalog.Teachers(c.Request.Context())
	respondCatalog(c, teachers, hit, err)
}

// Courses godoc
// @Summary Course catalog for a level and semester
// @Tags Reference
// @Produce json
// @Security BearerAuth
// @Param level query string true "Level"
// @Param semester query string true "Semester"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reference/courses [get]
func (h *ReferenceHandler) Courses(c *gin.Context) {
	query := dto.CourseQuery{Level: c.Query("level"), Semester: c.Query("semester")}
	courses, hit, err := h.catalog.Courses(c.Request.Context(), query)
	respondCatalog(c, courses, hit, err)
}

// Externals godoc
// @Summary External examiner directory
// @Tags Reference
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reference/externals [get]
func (h *ReferenceHandler) Externals(c *gin.Context) {
	externals, hit, err := h.catalog.Externals(c.Request.Context())
	respondCatalog(c, externals, hit, err)
}

func respondCatalog(c *gin.Context, data interface{}, hit bool, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, data, nil, middleware.ExtractMeta(c))
}
