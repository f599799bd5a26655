package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-committee-api/internal/dto"
	"github.com/noah-isme/exam-committee-api/internal/models"
	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
	"github.com/noah-isme/exam-committee-api/pkg/export"
	"github.com/noah-isme/exam-committee-api/pkg/jobs"
)

// SummaryJobType tags queue jobs that render approval summaries.
const SummaryJobType = "proposal_summary"

type summaryProposalStore interface {
	GetByID(ctx context.Context, id string) (*models.Proposal, error)
	SetSummaryFile(ctx context.Context, id, path string) error
}

type documentStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (io.ReadSeekCloser, error)
}

type linkSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string) (resourceID, relPath string, expiresAt time.Time, err error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SummaryService renders approved proposals into PDF summaries and hands out signed download links.
type SummaryService struct {
	proposals    summaryProposalStore
	storage      documentStorage
	signer       linkSigner
	pdf          *export.PDFExporter
	queue        jobEnqueuer
	metrics      *MetricsService
	logger       *zap.Logger
	downloadBase string
}

// NewSummaryService constructs the service. downloadBase is the URL path downloads are served under.
func NewSummaryService(proposals summaryProposalStore, storage documentStorage, signer linkSigner, metrics *MetricsService, logger *zap.Logger, downloadBase string) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{
		proposals:    proposals,
		storage:      storage,
		signer:       signer,
		pdf:          export.NewPDFExporter(),
		metrics:      metrics,
		logger:       logger,
		downloadBase: strings.TrimRight(downloadBase, "/"),
	}
}

// SetQueue attaches the background queue. Without one, approvals render lazily on first link request.
func (s *SummaryService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// ProposalApproved schedules rendering of the approval summary.
func (s *SummaryService) ProposalApproved(ctx context.Context, proposalID string) {
	if s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Job{ID: proposalID, Type: SummaryJobType})
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrDuplicate):
		s.logger.Debug("summary job already pending", zap.String("proposal_id", proposalID))
	default:
		s.logger.Warn("failed to enqueue summary job", zap.String("proposal_id", proposalID), zap.Error(err))
	}
}

// Handle processes a queued summary job.
func (s *SummaryService) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != SummaryJobType {
		return jobs.Permanent(fmt.Errorf("unsupported job type %q", job.Type))
	}
	_, err := s.Render(ctx, job.ID)
	if errors.Is(err, appErrors.ErrNotFound) || errors.Is(err, appErrors.ErrWrongStatus) {
		return jobs.Permanent(err)
	}
	return err
}

// Abandoned records a summary job the queue gave up on. A later link request
// still renders the summary on demand.
func (s *SummaryService) Abandoned(job jobs.Job, err error) {
	s.metrics.RecordSummaryJob("abandoned")
	s.logger.Error("summary job abandoned",
		zap.String("proposal_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err))
}

// Render builds and stores the summary PDF of an approved proposal, returning the stored path.
func (s *SummaryService) Render(ctx context.Context, proposalID string) (string, error) {
	proposal, err := s.load(ctx, proposalID)
	if err != nil {
		return "", err
	}
	if proposal.Status != models.ProposalStatusApproved {
		return "", appErrors.Clone(appErrors.ErrWrongStatus, "summary is only available for approved proposals")
	}

	data, err := s.pdf.Render(summaryDocument(proposal))
	if err != nil {
		s.metrics.RecordSummaryJob("failed")
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render summary")
	}
	relPath, err := s.storage.Save(path.Join("proposals", proposal.ID+".pdf"), data)
	if err != nil {
		s.metrics.RecordSummaryJob("failed")
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store summary")
	}
	if err := s.proposals.SetSummaryFile(ctx, proposal.ID, relPath); err != nil {
		s.metrics.RecordSummaryJob("failed")
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record summary")
	}
	s.metrics.RecordSummaryJob("rendered")
	s.logger.Info("proposal summary rendered", zap.String("proposal_id", proposal.ID), zap.Int("bytes", len(data)))
	return relPath, nil
}

// CreateLink returns a signed download link for an approved proposal's summary,
// rendering it first when the background job has not run yet.
func (s *SummaryService) CreateLink(ctx context.Context, proposalID string, actor *models.JWTClaims) (*dto.SummaryLinkResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	proposal, err := s.load(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !canView(actor.Role, actor.UserID, proposal) {
		return nil, errProposalForbidden
	}
	if proposal.Status != models.ProposalStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrWrongStatus, "summary is only available for approved proposals")
	}

	relPath := ""
	if proposal.SummaryReady() {
		relPath = *proposal.SummaryFile
	} else if relPath, err = s.Render(ctx, proposal.ID); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(proposal.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.SummaryLinkResponse{URL: s.downloadBase + "/" + token, ExpiresAt: expiresAt}, nil
}

// OpenDownload resolves a signed token to the stored document and a download filename.
func (s *SummaryService) OpenDownload(ctx context.Context, token string) (io.ReadSeekCloser, string, error) {
	proposalID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "document not found")
	}
	return file, fmt.Sprintf("proposal-%s.pdf", proposalID), nil
}

func (s *SummaryService) load(ctx context.Context, id string) (*models.Proposal, error) {
	proposal, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errProposalNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	return proposal, nil
}

func summaryDocument(p *models.Proposal) export.Document {
	examRelated := strings.Join(p.ExamRelated, ", ")
	if examRelated == "" {
		examRelated = "-"
	}
	return export.Document{
		Title:    "Exam Committee Proposal",
		Subtitle: strings.TrimSpace(fmt.Sprintf("%s Level %s Semester %s, %s", p.Exam.Degree, p.Exam.Level, p.Exam.Semester, p.Exam.Year)),
		Sections: []export.Section{
			{Heading: "Examination", Fields: []export.Field{
				{Label: "Degree", Value: p.Exam.Degree},
				{Label: "Level", Value: p.Exam.Level},
				{Label: "Semester", Value: p.Exam.Semester},
				{Label: "Year", Value: p.Exam.Year},
			}},
			{Heading: "Course", Fields: []export.Field{
				{Label: "Course", Value: p.Course.Name},
				{Label: "Course Code", Value: p.Course.CourseCode},
				{Label: "Course Title", Value: p.Course.CourseTitle},
				{Label: "Exam Type", Value: p.Course.ExamType},
				{Label: "Credit", Value: p.Course.Credit},
			}},
			{Heading: "Examination Committee", Fields: []export.Field{
				{Label: "Chairman", Value: joinNonEmpty(p.Committee.Chairman, p.Committee.ChairmanDesignation)},
				{Label: "Member", Value: joinNonEmpty(p.Committee.Member1, p.Committee.Member1Designation)},
				{Label: "Member", Value: joinNonEmpty(p.Committee.Member2, p.Committee.Member2Designation)},
				{Label: "Exam Related Duties", Value: examRelated},
			}},
			{Heading: "External Examiner", Fields: []export.Field{
				{Label: "Name", Value: joinNonEmpty(p.External.Name, p.External.Designation)},
				{Label: "Department", Value: p.External.Dept},
				{Label: "University", Value: p.External.Uni},
			}},
			{Heading: "Signatures", Fields: []export.Field{
				signatureField("Chairman", p.Signatures.Chairman),
				signatureField("Dean", p.Signatures.Dean),
				signatureField("Vice-Chancellor", p.Signatures.VC),
				signatureField("Controller of Examinations", p.Signatures.Controller),
			}},
		},
		Footer: fmt.Sprintf("Proposal %s approved %s", p.ID, p.UpdatedAt.UTC().Format("2006-01-02")),
	}
}

func signatureField(label, signature string) export.Field {
	if strings.TrimSpace(signature) == "" {
		return export.Field{Label: label, Value: "approved without signature image"}
	}
	field := export.Field{Label: label, Value: "signed"}
	if img := decodeDataURL(signature); img != nil {
		field.Image = img
	}
	return field
}

// decodeDataURL extracts PNG or JPEG bytes from a base64 data URL.
func decodeDataURL(raw string) *export.Image {
	const marker = ";base64,"
	if !strings.HasPrefix(raw, "data:image/") {
		return nil
	}
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return nil
	}
	mime := strings.TrimPrefix(raw[:idx], "data:image/")
	var imageType string
	switch mime {
	case "png":
		imageType = "PNG"
	case "jpeg", "jpg":
		imageType = "JPG"
	default:
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(raw[idx+len(marker):])
	if err != nil || len(data) == 0 {
		return nil
	}
	return &export.Image{Data: data, Type: imageType}
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, ", ")
}
