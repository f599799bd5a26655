package dto

import (
	"time"

	"github.com/noah-isme/exam-committee-api/internal/models"
)

// UpdateProposalContentRequest carries any subset of the editable content sections.
// Nil sections are left untouched.
type UpdateProposalContentRequest struct {
	Exam        *models.ExamInfo      `json:"exam"`
	Course      *models.CourseInfo    `json:"course"`
	Committee   *models.CommitteeInfo `json:"committee"`
	ExamRelated *[]string             `json:"examRelated" validate:"omitempty,dive,max=200"`
	External    *models.ExternalInfo  `json:"external"`
}

// SignProposalRequest optionally carries a signature image for the caller's slot.
type SignProposalRequest struct {
	Signature *string `json:"signature"`
}

// SignProposalResponse reports the status reached after signing.
type SignProposalResponse struct {
	ID     string                `json:"id"`
	Status models.ProposalStatus `json:"status"`
}

// ProposalQuery mirrors supported listing filters.
type ProposalQuery struct {
	Status string
	Page   int
	Limit  int
}

// ProposalDefaults pre-fills a new draft from the caller's most recently edited proposal.
type ProposalDefaults struct {
	Exam        models.ExamInfo      `json:"exam"`
	Course      models.CourseInfo    `json:"course"`
	Committee   models.CommitteeInfo `json:"committee"`
	ExamRelated []string             `json:"examRelated"`
	External    models.ExternalInfo  `json:"external"`
}

// SummaryLinkResponse is a signed download link for an approval summary.
type SummaryLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
