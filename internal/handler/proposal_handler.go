package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-committee-api/internal/dto"
	"github.com/noah-isme/exam-committee-api/internal/models"
	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
	"github.com/noah-isme/exam-committee-api/pkg/response"
)

type proposalService interface {
	Create(ctx context.Context, actor *models.JWTClaims) (*models.Proposal, error)
	UpdateContent(ctx context.Context, id string, req dto.UpdateProposalContentRequest, actor *models.JWTClaims) (*models.Proposal, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	List(ctx context.Context, query dto.ProposalQuery, actor *models.JWTClaims) ([]models.Proposal, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Proposal, error)
	Sign(ctx context.Context, id string, signature *string, actor *models.JWTClaims) (*models.Proposal, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.Proposal, error)
	ExportCSV(ctx context.Context, query dto.ProposalQuery, actor *models.JWTClaims) ([]byte, error)
	Defaults(ctx context.Context, actor *models.JWTClaims) (*dto.ProposalDefaults, error)
}

type summaryLinker interface {
	CreateLink(ctx context.Context, proposalID string, actor *models.JWTClaims) (*dto.SummaryLinkResponse, error)
}

// ProposalHandler exposes the proposal approval workflow.
type ProposalHandler struct {
	proposals proposalService
	summaries summaryLinker
	now       func() time.Time
}

// NewProposalHandler constructs the handler. A nil summaries disables summary links.
func NewProposalHandler(proposals proposalService, summaries summaryLinker) *ProposalHandler {
	return &ProposalHandler{proposals: proposals, summaries: summaries, now: time.Now}
}

// Create godoc
// @Summary Create a draft proposal
// @Tags Proposals
// @Produce json
// @Security BearerAuth
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /proposals [post]
func (h *ProposalHandler) Create(c *gin.Context) {
	proposal, err := h.proposals.Create(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// List godoc
// @Summary List proposals in the caller's queue
// @Tags Proposals
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /proposals [get]
func (h *ProposalHandler) List(c *gin.Context) {
	proposals, pagination, err := h.proposals.List(c.Request.Context(), proposalQuery(c), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposals, pagination)
}

// Export godoc
// @Summary Export the caller's queue as CSV
// @Tags Proposals
// @Produce text/csv
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Success 200 {file} file
// @Router /proposals/export [get]
func (h *ProposalHandler) Export(c *gin.Context) {
	data, err := h.proposals.ExportCSV(c.Request.Context(), proposalQuery(c), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("proposals-%s.csv", h.now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// Defaults godoc
// @Summary Drafting defaults from the caller's latest proposal
// @Tags Reference
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reference/defaults [get]
func (h *ProposalHandler) Defaults(c *gin.Context) {
	defaults, err := h.proposals.Defaults(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defaults, nil)
}

// Get godoc
// @Summary Get a proposal
// @Tags Proposals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id} [get]
func (h *ProposalHandler) Get(c *gin.Context) {
	proposal, err := h.proposals.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// Update godoc
// @Summary Update draft content
// @Tags Proposals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Param payload body dto.UpdateProposalContentRequest true "Content sections"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /proposals/{id} [put]
func (h *ProposalHandler) Update(c *gin.Context) {
	var req dto.UpdateProposalContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid proposal payload"))
		return
	}
	proposal, err := h.proposals.UpdateContent(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// Delete godoc
// @Summary Delete a draft
// @Tags Proposals
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id} [delete]
func (h *ProposalHandler) Delete(c *gin.Context) {
	if err := h.proposals.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Sign godoc
// @Summary Sign and advance a proposal
// @Tags Proposals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Param payload body dto.SignProposalRequest false "Optional signature image"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /proposals/{id}/sign [post]
func (h *ProposalHandler) Sign(c *gin.Context) {
	var req dto.SignProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid signature payload"))
		return
	}
	proposal, err := h.proposals.Sign(c.Request.Context(), c.Param("id"), req.Signature, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SignProposalResponse{ID: proposal.ID, Status: proposal.Status}, nil)
}

// Cancel godoc
// @Summary Cancel a proposal pending the caller
// @Tags Proposals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /proposals/{id}/cancel [post]
func (h *ProposalHandler) Cancel(c *gin.Context) {
	proposal, err := h.proposals.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// SummaryLink godoc
// @Summary Signed download link for an approved proposal summary
// @Tags Proposals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id}/summary-link [post]
func (h *ProposalHandler) SummaryLink(c *gin.Context) {
	if h.summaries == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "summaries are disabled"))
		return
	}
	link, err := h.summaries.CreateLink(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

func proposalQuery(c *gin.Context) dto.ProposalQuery {
	return dto.ProposalQuery{
		Status: c.Query("status"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	}
}
