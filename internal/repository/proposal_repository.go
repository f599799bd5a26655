package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-committee-api/internal/models"
)

const proposalColumns = `id, owner_id, status, exam, course, committee, exam_related, external, signatures,
       cancelled_at, cancelled_by, summary_file, version, created_at, updated_at`

// ProposalRepository persists exam committee proposals.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository constructs the repository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts a new proposal row in draft.
func (r *ProposalRepository) Create(ctx context.Context, proposal *models.Proposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.Status == "" {
		proposal.Status = models.ProposalStatusDraft
	}
	if proposal.ExamRelated == nil {
		proposal.ExamRelated = models.StringList{}
	}
	if proposal.Version == 0 {
		proposal.Version = 1
	}
	now := time.Now().UTC()
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now
	}
	proposal.UpdatedAt = proposal.CreatedAt

	const query = `INSERT INTO proposals
	(id, owner_id, status, exam, course, committee, exam_related, external, signatures, version, created_at, updated_at)
	VALUES (:id, :owner_id, :status, :exam, :course, :committee, :exam_related, :external, :signatures, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, proposal); err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

// GetByID fetches a proposal by identifier. Missing rows surface as sql.ErrNoRows.
func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`
	var proposal models.Proposal
	if err := r.db.GetContext(ctx, &proposal, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return &proposal, nil
}

// List returns proposals matching the filter, most recently updated first, with the total count.
func (r *ProposalRepository) List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("SELECT %s FROM proposals%s ORDER BY updated_at DESC, id DESC LIMIT %d OFFSET %d",
		proposalColumns, where, limit, offset)
	var proposals []models.Proposal
	if err := r.db.SelectContext(ctx, &proposals, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list proposals: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM proposals"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count proposals: %w", err)
	}
	return proposals, total, nil
}

// UpdateContent writes the content sections of a draft owned by proposal.OwnerID and stamps
// proposal.UpdatedAt. The write only lands when the stored version still equals proposal.Version;
// on success the struct carries the bumped version. A lost race or precondition miss returns sql.ErrNoRows.
func (r *ProposalRepository) UpdateContent(ctx context.Context, proposal *models.Proposal) error {
	const query = `UPDATE proposals SET
		exam = :exam, course = :course, committee = :committee, exam_related = :exam_related, external = :external,
		version = version + 1, updated_at = :updated_at
	WHERE id = :id AND owner_id = :owner_id AND status = :status AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":           proposal.ID,
		"owner_id":     proposal.OwnerID,
		"status":       models.ProposalStatusDraft,
		"version":      proposal.Version,
		"exam":         proposal.Exam,
		"course":       proposal.Course,
		"committee":    proposal.Committee,
		"exam_related": proposal.ExamRelated,
		"external":     proposal.External,
		"updated_at":   proposal.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("update proposal content: %w", err)
	}
	if err := ensureAffected(result, "proposal content"); err != nil {
		return err
	}
	proposal.Version++
	return nil
}

// TransitionParams describes a guarded status change.
type TransitionParams struct {
	ID          string
	From        models.ProposalStatus
	To          models.ProposalStatus
	Version     int
	OwnerID     string
	Signatures  models.Signatures
	CancelledAt *time.Time
	CancelledBy *models.UserRole
	UpdatedAt   time.Time
}

// Transition moves a proposal from one status to another when both status and version still match.
// When OwnerID is set it is enforced too. A precondition miss returns sql.ErrNoRows.
func (r *ProposalRepository) Transition(ctx context.Context, params TransitionParams) error {
	setParts := []string{
		"status = :to",
		"signatures = :signatures",
		"version = version + 1",
		"updated_at = :updated_at",
	}
	if params.CancelledAt != nil {
		setParts = append(setParts, "cancelled_at = :cancelled_at", "cancelled_by = :cancelled_by")
	}
	conditions := []string{"id = :id", "status = :from", "version = :version"}
	if params.OwnerID != "" {
		conditions = append(conditions, "owner_id = :owner_id")
	}
	query := fmt.Sprintf("UPDATE proposals SET %s WHERE %s",
		strings.Join(setParts, ", "),
		strings.Join(conditions, " AND "),
	)
	updatedAt := params.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":           params.ID,
		"from":         params.From,
		"to":           params.To,
		"version":      params.Version,
		"owner_id":     params.OwnerID,
		"signatures":   params.Signatures,
		"cancelled_at": params.CancelledAt,
		"cancelled_by": params.CancelledBy,
		"updated_at":   updatedAt,
	})
	if err != nil {
		return fmt.Errorf("transition proposal: %w", err)
	}
	return ensureAffected(result, "proposal transition")
}

// Delete hard-deletes a draft owned by ownerID. Anything else returns sql.ErrNoRows.
func (r *ProposalRepository) Delete(ctx context.Context, id, ownerID string) error {
	const query = `DELETE FROM proposals WHERE id = $1 AND owner_id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, id, ownerID, models.ProposalStatusDraft)
	if err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}
	return ensureAffected(result, "proposal delete")
}

// SetSummaryFile records the stored summary path of an approved proposal.
func (r *ProposalRepository) SetSummaryFile(ctx context.Context, id, path string) error {
	const query = `UPDATE proposals SET summary_file = $2 WHERE id = $1 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, id, path, models.ProposalStatusApproved)
	if err != nil {
		return fmt.Errorf("set proposal summary file: %w", err)
	}
	return ensureAffected(result, "proposal summary file")
}

func ensureAffected(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", what, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
