package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-committee-api/internal/dto"
	"github.com/noah-isme/exam-committee-api/internal/models"
	"github.com/noah-isme/exam-committee-api/internal/repository"
	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
	"github.com/noah-isme/exam-committee-api/pkg/export"
)

const (
	defaultProposalPage  = 1
	defaultProposalLimit = 20
	maxProposalLimit     = 100
)

type proposalStore interface {
	Create(ctx context.Context, proposal *models.Proposal) error
	GetByID(ctx context.Context, id string) (*models.Proposal, error)
	List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, int, error)
	UpdateContent(ctx context.Context, proposal *models.Proposal) error
	Transition(ctx context.Context, params repository.TransitionParams) error
	Delete(ctx context.Context, id, ownerID string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ApprovalNotifier is told when a proposal reaches approved.
type ApprovalNotifier interface {
	ProposalApproved(ctx context.Context, proposalID string)
}

// ProposalService is the only writer of proposal status and signatures.
type ProposalService struct {
	repo      proposalStore
	audit     auditLogger
	notifier  ApprovalNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// ProposalServiceOption configures the service.
type ProposalServiceOption func(*ProposalService)

// WithApprovalNotifier registers the hook fired on approval.
func WithApprovalNotifier(notifier ApprovalNotifier) ProposalServiceOption {
	return func(s *ProposalService) {
		s.notifier = notifier
	}
}

// WithProposalMetrics records transitions and conflicts.
func WithProposalMetrics(metrics *MetricsService) ProposalServiceOption {
	return func(s *ProposalService) {
		s.metrics = metrics
	}
}

// WithProposalClock overrides the time source.
func WithProposalClock(now func() time.Time) ProposalServiceOption {
	return func(s *ProposalService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewProposalService constructs the lifecycle engine.
func NewProposalService(repo proposalStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger, opts ...ProposalServiceOption) *ProposalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &ProposalService{
		repo:      repo,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create starts an empty draft owned by the calling chairman.
func (s *ProposalService) Create(ctx context.Context, actor *models.JWTClaims) (*models.Proposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleChairman {
		return nil, errChairmanOnly
	}
	now := s.now()
	proposal := &models.Proposal{
		OwnerID:     actor.UserID,
		Status:      models.ProposalStatusDraft,
		ExamRelated: models.StringList{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, proposal); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create proposal")
	}
	s.emitAudit(ctx, actor, models.AuditActionProposalCreate, proposal.ID, nil, proposal)
	return proposal, nil
}

// UpdateContent merges the supplied sections into a draft owned by the caller.
func (s *ProposalService) UpdateContent(ctx context.Context, id string, req dto.UpdateProposalContentRequest, actor *models.JWTClaims) (*models.Proposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleChairman {
		return nil, errChairmanOnly
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	proposal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if proposal.OwnerID != actor.UserID || proposal.Status != models.ProposalStatusDraft {
		return nil, errProposalNotFound
	}
	before := *proposal

	if req.Exam != nil {
		proposal.Exam = *req.Exam
	}
	if req.Course != nil {
		proposal.Course = *req.Course
	}
	if req.Committee != nil {
		proposal.Committee = *req.Committee
	}
	if req.ExamRelated != nil {
		proposal.ExamRelated = append(models.StringList{}, (*req.ExamRelated)...)
	}
	if req.External != nil {
		proposal.External = *req.External
	}
	proposal.UpdatedAt = s.now()

	if err := s.repo.UpdateContent(ctx, proposal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordConflict("update_content")
			return nil, errProposalConflict
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update proposal")
	}
	s.emitAudit(ctx, actor, models.AuditActionProposalUpdate, proposal.ID, &before, proposal)
	return proposal, nil
}

// Delete removes a draft owned by the caller.
func (s *ProposalService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleChairman {
		return errChairmanOnly
	}
	if err := s.repo.Delete(ctx, id, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errDraftNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete proposal")
	}
	s.emitAudit(ctx, actor, models.AuditActionProposalDelete, id, nil, nil)
	return nil
}

// List returns the caller's work queue, most recently updated first.
func (s *ProposalService) List(ctx context.Context, query dto.ProposalQuery, actor *models.JWTClaims) ([]models.Proposal, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter, err := s.listFilter(query, actor)
	if err != nil {
		return nil, nil, err
	}
	page, limit := normalisePage(query.Page, query.Limit)
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	proposals, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list proposals")
	}
	if proposals == nil {
		proposals = []models.Proposal{}
	}
	return proposals, &models.Pagination{Page: page, Limit: limit, TotalCount: total}, nil
}

// Defaults returns the content sections of the chairman's most recently edited proposal,
// or empty sections when there is none.
func (s *ProposalService) Defaults(ctx context.Context, actor *models.JWTClaims) (*dto.ProposalDefaults, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleChairman {
		return nil, errChairmanOnly
	}
	latest, _, err := s.repo.List(ctx, models.ProposalFilter{
		OwnerID:  actor.UserID,
		Statuses: []models.ProposalStatus{
			models.ProposalStatusDraft, models.ProposalStatusPendingDean, models.ProposalStatusPendingVC,
			models.ProposalStatusPendingController, models.ProposalStatusApproved, models.ProposalStatusCancelled,
		},
		Limit: 1,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load drafting defaults")
	}
	defaults := &dto.ProposalDefaults{ExamRelated: []string{}}
	if len(latest) == 0 {
		return defaults, nil
	}
	p := latest[0]
	defaults.Exam, defaults.Course, defaults.Committee, defaults.External = p.Exam, p.Course, p.Committee, p.External
	defaults.ExamRelated = append(defaults.ExamRelated, p.ExamRelated...)
	return defaults, nil
}

// Get returns a proposal the caller may view.
func (s *ProposalService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Proposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	proposal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor.Role, actor.UserID, proposal) {
		return nil, errProposalForbidden
	}
	return proposal, nil
}

// Sign records the caller's signature, when given, and advances the proposal one stage.
func (s *ProposalService) Sign(ctx context.Context, id string, signature *string, actor *models.JWTClaims) (*models.Proposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	proposal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	rule, err := authorizeSign(actor.Role, actor.UserID, proposal)
	if err != nil {
		return nil, err
	}

	signatures := proposal.Signatures
	if signature != nil && strings.TrimSpace(*signature) != "" {
		signatures = signatures.WithSlot(actor.Role, *signature)
	}
	params := repository.TransitionParams{
		ID:         proposal.ID,
		From:       rule.from,
		To:         rule.to,
		Version:    proposal.Version,
		Signatures: signatures,
		UpdatedAt:  s.now(),
	}
	if rule.ownerOnly {
		params.OwnerID = actor.UserID
	}
	if err := s.transition(ctx, proposal, params, actor, "sign"); err != nil {
		return nil, err
	}
	proposal.Signatures = signatures
	s.emitAudit(ctx, actor, models.AuditActionProposalSign, proposal.ID,
		map[string]models.ProposalStatus{"status": rule.from},
		map[string]models.ProposalStatus{"status": rule.to})

	if rule.to == models.ProposalStatusApproved && s.notifier != nil {
		s.notifier.ProposalApproved(ctx, proposal.ID)
	}
	return proposal, nil
}

// Cancel rejects a proposal sitting in the caller's pending stage.
func (s *ProposalService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.Proposal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, ok := pendingStage(actor.Role); !ok {
		return nil, errProposalForbidden
	}
	proposal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeCancel(actor.Role, proposal); err != nil {
		return nil, err
	}

	now := s.now()
	role := actor.Role
	from := proposal.Status
	params := repository.TransitionParams{
		ID:          proposal.ID,
		From:        from,
		To:          models.ProposalStatusCancelled,
		Version:     proposal.Version,
		Signatures:  proposal.Signatures,
		CancelledAt: &now,
		CancelledBy: &role,
		UpdatedAt:   now,
	}
	if err := s.transition(ctx, proposal, params, actor, "cancel"); err != nil {
		return nil, err
	}
	proposal.CancelledAt = &now
	proposal.CancelledBy = &role
	s.emitAudit(ctx, actor, models.AuditActionProposalCancel, proposal.ID,
		map[string]models.ProposalStatus{"status": from},
		map[string]models.ProposalStatus{"status": models.ProposalStatusCancelled})
	return proposal, nil
}

// ExportCSV renders every proposal in the caller's list view as CSV.
func (s *ProposalService) ExportCSV(ctx context.Context, query dto.ProposalQuery, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter, err := s.listFilter(query, actor)
	if err != nil {
		return nil, err
	}
	filter.Limit = maxProposalLimit

	doc, err := export.NewProposalCSV()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	for {
		batch, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list proposals")
		}
		for _, p := range batch {
			if err := doc.Append(p); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
			}
		}
		filter.Offset += len(batch)
		if len(batch) == 0 || filter.Offset >= total {
			break
		}
	}

	data, err := doc.Bytes()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return data, nil
}

func (s *ProposalService) listFilter(query dto.ProposalQuery, actor *models.JWTClaims) (models.ProposalFilter, error) {
	statuses, ownerScoped, err := listStatuses(actor.Role, strings.TrimSpace(query.Status))
	if err != nil {
		return models.ProposalFilter{}, err
	}
	filter := models.ProposalFilter{Statuses: statuses}
	if ownerScoped {
		filter.OwnerID = actor.UserID
	}
	return filter, nil
}

func (s *ProposalService) load(ctx context.Context, id string) (*models.Proposal, error) {
	proposal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errProposalNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	return proposal, nil
}

// transition commits params and mirrors the new state onto proposal.
func (s *ProposalService) transition(ctx context.Context, proposal *models.Proposal, params repository.TransitionParams, actor *models.JWTClaims, operation string) error {
	if err := s.repo.Transition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordConflict(operation)
			return errProposalConflict
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update proposal status")
	}
	proposal.Status = params.To
	proposal.Version = params.Version + 1
	proposal.UpdatedAt = params.UpdatedAt
	s.metrics.RecordTransition(params.From, params.To, actor.Role)
	s.logger.Info("proposal transitioned",
		zap.String("proposal_id", proposal.ID),
		zap.String("from", string(params.From)),
		zap.String("to", string(params.To)),
		zap.String("role", string(actor.Role)),
	)
	return nil
}

func (s *ProposalService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, proposalID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "proposal",
		ResourceID: &proposalID,
		IPAddress:  "system",
		UserAgent:  "proposal-service",
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func normalisePage(page, limit int) (int, int) {
	if page < 1 {
		page = defaultProposalPage
	}
	if limit <= 0 {
		limit = defaultProposalLimit
	}
	if limit > maxProposalLimit {
		limit = maxProposalLimit
	}
	return page, limit
}
