package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-committee-api/internal/dto"
	"github.com/noah-isme/exam-committee-api/internal/models"
	"github.com/noah-isme/exam-committee-api/internal/repository"
	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
)

type proposalRepoStub struct {
	mu        sync.Mutex
	proposals map[string]*models.Proposal
	seq       int
	gets      int
	filters   []models.ProposalFilter
	// beforeWrite runs inside every conditional write, simulating a concurrent writer.
	beforeWrite func(p *models.Proposal)
}

func newProposalRepoStub() *proposalRepoStub {
	return &proposalRepoStub{proposals: make(map[string]*models.Proposal)}
}

func (r *proposalRepoStub) Create(ctx context.Context, proposal *models.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	proposal.ID = fmt.Sprintf("proposal-%d", r.seq)
	stored := *proposal
	r.proposals[proposal.ID] = &stored
	return nil
}

func (r *proposalRepoStub) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	p, ok := r.proposals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *p
	return &copy, nil
}

func (r *proposalRepoStub) List(ctx context.Context, filter models.ProposalFilter) ([]models.Proposal, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = append(r.filters, filter)
	result := make([]models.Proposal, 0)
	for _, p := range r.proposals {
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		matched := false
		for _, status := range filter.Statuses {
			if p.Status == status {
				matched = true
			}
		}
		if matched {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	total := len(result)
	if filter.Offset >= len(result) {
		return []models.Proposal{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > len(result) {
		end = len(result)
	}
	return result[filter.Offset:end], total, nil
}

func (r *proposalRepoStub) UpdateContent(ctx context.Context, proposal *models.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.proposals[proposal.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if r.beforeWrite != nil {
		r.beforeWrite(stored)
	}
	if stored.OwnerID != proposal.OwnerID || stored.Status != models.ProposalStatusDraft || stored.Version != proposal.Version {
		return sql.ErrNoRows
	}
	stored.Exam, stored.Course, stored.Committee = proposal.Exam, proposal.Course, proposal.Committee
	stored.ExamRelated, stored.External = proposal.ExamRelated, proposal.External
	stored.UpdatedAt = proposal.UpdatedAt
	stored.Version++
	proposal.Version = stored.Version
	return nil
}

func (r *proposalRepoStub) Transition(ctx context.Context, params repository.TransitionParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.proposals[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if r.beforeWrite != nil {
		r.beforeWrite(stored)
	}
	if stored.Status != params.From || stored.Version != params.Version {
		return sql.ErrNoRows
	}
	if params.OwnerID != "" && stored.OwnerID != params.OwnerID {
		return sql.ErrNoRows
	}
	stored.Status = params.To
	stored.Signatures = params.Signatures
	if params.CancelledAt != nil {
		stored.CancelledAt = params.CancelledAt
		stored.CancelledBy = params.CancelledBy
	}
	stored.Version++
	stored.UpdatedAt = params.UpdatedAt
	return nil
}

func (r *proposalRepoStub) Delete(ctx context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.proposals[id]
	if !ok || stored.OwnerID != ownerID || stored.Status != models.ProposalStatusDraft {
		return sql.ErrNoRows
	}
	delete(r.proposals, id)
	return nil
}

func (r *proposalRepoStub) stored(id string) models.Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.proposals[id]
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return a.err
}

type notifierStub struct {
	approved []string
}

func (n *notifierStub) ProposalApproved(ctx context.Context, proposalID string) {
	n.approved = append(n.approved, proposalID)
}

var (
	chairX     = &models.JWTClaims{UserID: "chair-x", Role: models.RoleChairman}
	chairOther = &models.JWTClaims{UserID: "chair-o", Role: models.RoleChairman}
	deanY      = &models.JWTClaims{UserID: "dean-y", Role: models.RoleDean}
	vcZ        = &models.JWTClaims{UserID: "vc-z", Role: models.RoleVC}
	ctrlQ      = &models.JWTClaims{UserID: "ctrl-q", Role: models.RoleController}
	strangerR  = &models.JWTClaims{UserID: "stranger", Role: models.UserRole("registrar")}
)

func newProposalServiceFixture() (*ProposalService, *proposalRepoStub, *auditStub, *notifierStub) {
	repo := newProposalRepoStub()
	audit := &auditStub{}
	notifier := &notifierStub{}
	var clockMu sync.Mutex
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewProposalService(repo, audit, nil, nil,
		WithApprovalNotifier(notifier),
		WithProposalMetrics(NewMetricsService()),
		WithProposalClock(func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	return svc, repo, audit, notifier
}

func strPtr(s string) *string { return &s }

func requireErrorCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, want.Code, appErr.Code, appErr.Message)
	require.Equal(t, want.Status, appErr.Status)
}

func advanceTo(t *testing.T, svc *ProposalService, id string, actors ...*models.JWTClaims) {
	t.Helper()
	for _, actor := range actors {
		_, err := svc.Sign(context.Background(), id, nil, actor)
		require.NoError(t, err)
	}
}

func TestProposalCreateRequiresChairman(t *testing.T) {
	svc, _, audit, _ := newProposalServiceFixture()

	p, err := svc.Create(context.Background(), chairX)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusDraft, p.Status)
	assert.Equal(t, "chair-x", p.OwnerID)
	assert.Equal(t, models.Signatures{}, p.Signatures)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionProposalCreate, audit.logs[0].Action)

	for _, actor := range []*models.JWTClaims{deanY, vcZ, ctrlQ, strangerR} {
		_, err := svc.Create(context.Background(), actor)
		requireErrorCode(t, err, appErrors.ErrForbidden)
	}
	_, err = svc.Create(context.Background(), nil)
	requireErrorCode(t, err, appErrors.ErrUnauthorized)
}

func TestUpdateContentMergesSections(t *testing.T) {
	svc, _, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)

	_, err = svc.UpdateContent(ctx, p.ID, dto.UpdateProposalContentRequest{
		Course: &models.CourseInfo{CourseCode: "CSE-101", Credit: "3"},
	}, chairX)
	require.NoError(t, err)

	updated, err := svc.UpdateContent(ctx, p.ID, dto.UpdateProposalContentRequest{
		Exam: &models.ExamInfo{Degree: "CSE", Level: "1", Semester: "2", Year: "2024"},
	}, chairX)
	require.NoError(t, err)

	got, err := svc.Get(ctx, p.ID, chairX)
	require.NoError(t, err)
	assert.Equal(t, "CSE", got.Exam.Degree)
	assert.Equal(t, "CSE-101", got.Course.CourseCode, "omitted sections stay untouched")
	assert.Equal(t, models.ProposalStatusDraft, got.Status)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC), got.UpdatedAt, "stamped from the service clock")
	assert.Equal(t, got.UpdatedAt, updated.UpdatedAt)
	assert.True(t, got.UpdatedAt.After(p.CreatedAt))
}

func TestUpdateContentReplacesExamRelatedList(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)

	list := []string{"question setter", "script examiner"}
	_, err = svc.UpdateContent(ctx, p.ID, dto.UpdateProposalContentRequest{ExamRelated: &list}, chairX)
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"question setter", "script examiner"}, repo.stored(p.ID).ExamRelated)

	empty := []string{}
	_, err = svc.UpdateContent(ctx, p.ID, dto.UpdateProposalContentRequest{ExamRelated: &empty}, chairX)
	require.NoError(t, err)
	assert.Empty(t, repo.stored(p.ID).ExamRelated)

	tooLong := []string{strings.Repeat("x", 201)}
	_, err = svc.UpdateContent(ctx, p.ID, dto.UpdateProposalContentRequest{ExamRelated: &tooLong}, chairX)
	requireErrorCode(t, err, appErrors.ErrValidation)
}

func TestOwnershipExclusivity(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)
	req := dto.UpdateProposalContentRequest{Exam: &models.ExamInfo{Degree: "EEE"}}

	_, err = svc.UpdateContent(ctx, p.ID, req, chairOther)
	requireErrorCode(t, err, appErrors.ErrNotFound)
	requireErrorCode(t, svc.Delete(ctx, p.ID, chairOther), appErrors.ErrNotFound)

	_, err = svc.UpdateContent(ctx, p.ID, req, deanY)
	requireErrorCode(t, err, appErrors.ErrForbidden)
	requireErrorCode(t, svc.Delete(ctx, p.ID, deanY), appErrors.ErrForbidden)

	_, err = svc.UpdateContent(ctx, "missing", req, chairX)
	requireErrorCode(t, err, appErrors.ErrNotFound)

	assert.Equal(t, "", repo.stored(p.ID).Exam.Degree)
	require.NoError(t, svc.Delete(ctx, p.ID, chairX))
	_, err = svc.Get(ctx, p.ID, chairX)
	requireErrorCode(t, err, appErrors.ErrNotFound)
}

func TestSignWithAndWithoutImage(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)

	signed, err := svc.Sign(ctx, p.ID, strPtr("imgA"), chairX)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusPendingDean, signed.Status)
	assert.Equal(t, "imgA", repo.stored(p.ID).Signatures.Chairman)

	signed, err = svc.Sign(ctx, p.ID, nil, deanY)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusPendingVC, signed.Status)
	stored := repo.stored(p.ID)
	assert.Equal(t, "", stored.Signatures.Dean)
	assert.Equal(t, "imgA", stored.Signatures.Chairman)
}

func TestSignBlankSignatureKeepsPriorSlot(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)

	repo.mu.Lock()
	repo.proposals[p.ID].Signatures.Chairman = "earlier"
	repo.mu.Unlock()

	_, err = svc.Sign(ctx, p.ID, strPtr("   "), chairX)
	require.NoError(t, err)
	assert.Equal(t, "earlier", repo.stored(p.ID).Signatures.Chairman)
}

func TestSignRoleTable(t *testing.T) {
	cases := []struct {
		name    string
		prepare []*models.JWTClaims
		actor   *models.JWTClaims
		wantErr *appErrors.Error
		next    models.ProposalStatus
	}{
		{name: "owner signs draft", actor: chairX, next: models.ProposalStatusPendingDean},
		{name: "other chairman on draft", actor: chairOther, wantErr: appErrors.ErrForbidden},
		{name: "owner on pending dean", prepare: []*models.JWTClaims{chairX}, actor: chairX, wantErr: appErrors.ErrForbidden},
		{name: "dean on draft", actor: deanY, wantErr: appErrors.ErrWrongStatus},
		{name: "dean on pending dean", prepare: []*models.JWTClaims{chairX}, actor: deanY, next: models.ProposalStatusPendingVC},
		{name: "dean on pending vc", prepare: []*models.JWTClaims{chairX, deanY}, actor: deanY, wantErr: appErrors.ErrWrongStatus},
		{name: "vc on pending dean", prepare: []*models.JWTClaims{chairX}, actor: vcZ, wantErr: appErrors.ErrWrongStatus},
		{name: "vc on pending vc", prepare: []*models.JWTClaims{chairX, deanY}, actor: vcZ, next: models.ProposalStatusPendingController},
		{name: "controller on pending vc", prepare: []*models.JWTClaims{chairX, deanY}, actor: ctrlQ, wantErr: appErrors.ErrWrongStatus},
		{name: "controller approves", prepare: []*models.JWTClaims{chairX, deanY, vcZ}, actor: ctrlQ, next: models.ProposalStatusApproved},
		{name: "unknown role", actor: strangerR, wantErr: appErrors.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _, _ := newProposalServiceFixture()
			p, err := svc.Create(context.Background(), chairX)
			require.NoError(t, err)
			advanceTo(t, svc, p.ID, tc.prepare...)
			before := repo.stored(p.ID)

			got, err := svc.Sign(context.Background(), p.ID, strPtr("sig"), tc.actor)
			if tc.wantErr != nil {
				requireErrorCode(t, err, tc.wantErr)
				assert.Equal(t, before, repo.stored(p.ID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.next, got.Status)
			assert.Equal(t, "sig", repo.stored(p.ID).Signatures.Slot(tc.actor.Role))
		})
	}
}

func TestSignMissingProposal(t *testing.T) {
	svc, _, _, _ := newProposalServiceFixture()
	_, err := svc.Sign(context.Background(), "missing", nil, deanY)
	requireErrorCode(t, err, appErrors.ErrNotFound)
}

func TestApprovalNotifiesOnce(t *testing.T) {
	svc, _, audit, notifier := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)

	advanceTo(t, svc, p.ID, chairX, deanY, vcZ)
	assert.Empty(t, notifier.approved)
	advanceTo(t, svc, p.ID, ctrlQ)
	assert.Equal(t, []string{p.ID}, notifier.approved)

	signs := 0
	for _, log := range audit.logs {
		if log.Action == models.AuditActionProposalSign {
			signs++
		}
	}
	assert.Equal(t, 4, signs)
}

func TestCancelledProposalRejectsFurtherActions(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)
	advanceTo(t, svc, p.ID, chairX, deanY)

	cancelled, err := svc.Cancel(ctx, p.ID, vcZ)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, models.RoleVC, *cancelled.CancelledBy)
	require.NotNil(t, repo.stored(p.ID).CancelledAt)

	frozen := repo.stored(p.ID)
	for _, actor := range []*models.JWTClaims{chairX, deanY, vcZ, ctrlQ} {
		_, err := svc.Sign(ctx, p.ID, strPtr("late"), actor)
		require.Error(t, err)
		code := appErrors.FromError(err).Code
		assert.Contains(t, []string{appErrors.ErrForbidden.Code, appErrors.ErrWrongStatus.Code}, code)
	}
	_, err = svc.Cancel(ctx, p.ID, vcZ)
	requireErrorCode(t, err, appErrors.ErrForbidden)
	_, err = svc.UpdateContent(ctx, p.ID, dto.UpdateProposalContentRequest{Exam: &models.ExamInfo{Degree: "x"}}, chairX)
	requireErrorCode(t, err, appErrors.ErrNotFound)
	assert.Equal(t, frozen, repo.stored(p.ID))
}

func TestApprovedIsTerminal(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)
	advanceTo(t, svc, p.ID, chairX, deanY, vcZ, ctrlQ)
	frozen := repo.stored(p.ID)

	for _, actor := range []*models.JWTClaims{chairX, deanY, vcZ, ctrlQ} {
		_, err := svc.Sign(ctx, p.ID, strPtr("late"), actor)
		require.Error(t, err)
	}
	for _, actor := range []*models.JWTClaims{deanY, vcZ, ctrlQ} {
		_, err := svc.Cancel(ctx, p.ID, actor)
		requireErrorCode(t, err, appErrors.ErrForbidden)
	}
	assert.Equal(t, frozen, repo.stored(p.ID))

	got, err := svc.Get(ctx, p.ID, chairOther)
	require.NoError(t, err, "approved proposals are visible to everyone")
	assert.Equal(t, models.ProposalStatusApproved, got.Status)
}

func TestCancelRoleGateSkipsStore(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()

	_, err := svc.Cancel(ctx, "missing", chairX)
	requireErrorCode(t, err, appErrors.ErrForbidden)
	_, err = svc.Cancel(ctx, "missing", strangerR)
	requireErrorCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, 0, repo.gets)

	_, err = svc.Cancel(ctx, "missing", deanY)
	requireErrorCode(t, err, appErrors.ErrNotFound)
}

func TestCancelWrongStageIsForbidden(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, p.ID, deanY)
	requireErrorCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, "cannot cancel this proposal", appErrors.FromError(err).Message)

	advanceTo(t, svc, p.ID, chairX)
	_, err = svc.Cancel(ctx, p.ID, ctrlQ)
	requireErrorCode(t, err, appErrors.ErrForbidden)
	assert.Equal(t, models.ProposalStatusPendingDean, repo.stored(p.ID).Status)
}

func TestViewRulesByRoleAndStage(t *testing.T) {
	svc, _, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)

	_, err = svc.Get(ctx, p.ID, deanY)
	requireErrorCode(t, err, appErrors.ErrForbidden)
	_, err = svc.Get(ctx, p.ID, chairOther)
	requireErrorCode(t, err, appErrors.ErrForbidden)

	advanceTo(t, svc, p.ID, chairX)
	_, err = svc.Get(ctx, p.ID, deanY)
	require.NoError(t, err)
	_, err = svc.Get(ctx, p.ID, vcZ)
	requireErrorCode(t, err, appErrors.ErrForbidden)
	_, err = svc.Get(ctx, p.ID, chairX)
	require.NoError(t, err)

	_, err = svc.Get(ctx, "missing", chairX)
	requireErrorCode(t, err, appErrors.ErrNotFound)
}

func TestDeleteAfterSubmitIsNotFound(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)
	advanceTo(t, svc, p.ID, chairX)

	requireErrorCode(t, svc.Delete(ctx, p.ID, chairX), appErrors.ErrNotFound)
	assert.Equal(t, models.ProposalStatusPendingDean, repo.stored(p.ID).Status)
}

func TestStatusSequenceFollowsTotalOrder(t *testing.T) {
	order := map[models.ProposalStatus]int{
		models.ProposalStatusDraft:             0,
		models.ProposalStatusPendingDean:       1,
		models.ProposalStatusPendingVC:         2,
		models.ProposalStatusPendingController: 3,
		models.ProposalStatusApproved:          4,
	}
	actors := []*models.JWTClaims{chairX, chairOther, deanY, vcZ, ctrlQ, strangerR}
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)

	prev := models.ProposalStatusDraft
	for round := 0; round < 4; round++ {
		for _, actor := range actors {
			_, _ = svc.Sign(ctx, p.ID, nil, actor)
			current := repo.stored(p.ID).Status
			require.GreaterOrEqual(t, order[current], order[prev])
			require.LessOrEqual(t, order[current]-order[prev], 1)
			prev = current
		}
	}
	assert.Equal(t, models.ProposalStatusApproved, prev)
}

func TestStaleVersionReturnsConflict(t *testing.T) {
	svc, repo, _, notifier := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)

	repo.beforeWrite = func(stored *models.Proposal) { stored.Version++ }
	_, err = svc.UpdateContent(ctx, p.ID, dto.UpdateProposalContentRequest{Exam: &models.ExamInfo{Degree: "MSc"}}, chairX)
	requireErrorCode(t, err, appErrors.ErrConflict)
	assert.Equal(t, "", repo.stored(p.ID).Exam.Degree)

	_, err = svc.Sign(ctx, p.ID, strPtr("imgA"), chairX)
	requireErrorCode(t, err, appErrors.ErrConflict)
	stored := repo.stored(p.ID)
	assert.Equal(t, models.ProposalStatusDraft, stored.Status)
	assert.Equal(t, "", stored.Signatures.Chairman)
	assert.Empty(t, notifier.approved)
}

func TestConcurrentReviewersOnlyOneWins(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)
	advanceTo(t, svc, p.ID, chairX)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Sign(ctx, p.ID, strPtr("dean"), deanY)
			results <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Cancel(ctx, p.ID, deanY)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		code := appErrors.FromError(err).Code
		assert.Contains(t, []string{appErrors.ErrConflict.Code, appErrors.ErrWrongStatus.Code, appErrors.ErrForbidden.Code}, code)
	}
	assert.Equal(t, 1, successes)
	assert.Contains(t, []models.ProposalStatus{models.ProposalStatusPendingVC, models.ProposalStatusCancelled}, repo.stored(p.ID).Status)
}

func TestListScopesByRole(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()

	draft, err := svc.Create(ctx, chairX)
	require.NoError(t, err)
	submitted, err := svc.Create(ctx, chairX)
	require.NoError(t, err)
	advanceTo(t, svc, submitted.ID, chairX)
	cancelled, err := svc.Create(ctx, chairX)
	require.NoError(t, err)
	advanceTo(t, svc, cancelled.ID, chairX)
	_, err = svc.Cancel(ctx, cancelled.ID, deanY)
	require.NoError(t, err)
	_, err = svc.Create(ctx, chairOther)
	require.NoError(t, err)

	list, page, err := svc.List(ctx, dto.ProposalQuery{}, chairX)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)

	list, _, err = svc.List(ctx, dto.ProposalQuery{Status: "draft"}, chairX)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, draft.ID, list[0].ID)

	list, _, err = svc.List(ctx, dto.ProposalQuery{Status: "cancelled"}, chairX)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cancelled.ID, list[0].ID)

	_, _, err = svc.List(ctx, dto.ProposalQuery{Status: "approved"}, chairX)
	requireErrorCode(t, err, appErrors.ErrValidation)

	list, _, err = svc.List(ctx, dto.ProposalQuery{}, deanY)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, submitted.ID, list[0].ID)

	list, _, err = svc.List(ctx, dto.ProposalQuery{}, vcZ)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, _, err = svc.List(ctx, dto.ProposalQuery{}, strangerR)
	requireErrorCode(t, err, appErrors.ErrForbidden)

	_, page, err = svc.List(ctx, dto.ProposalQuery{Page: 3, Limit: 500}, deanY)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	last := repo.filters[len(repo.filters)-1]
	assert.Equal(t, 200, last.Offset)
	assert.Empty(t, last.OwnerID)
}

func TestExportCSVPagesThroughQueue(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()
	for i := 0; i < 105; i++ {
		_, err := svc.Create(ctx, chairX)
		require.NoError(t, err)
	}

	data, err := svc.ExportCSV(ctx, dto.ProposalQuery{}, chairX)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 106)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Status,Degree"))
	assert.Len(t, repo.filters, 2)

	_, err = svc.ExportCSV(ctx, dto.ProposalQuery{}, strangerR)
	requireErrorCode(t, err, appErrors.ErrForbidden)
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	repo := newProposalRepoStub()
	audit := &auditStub{err: errors.New("audit down")}
	svc := NewProposalService(repo, audit, nil, nil)

	p, err := svc.Create(context.Background(), chairX)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Len(t, audit.logs, 1)
}

func TestDefaultsFromLatestProposal(t *testing.T) {
	svc, repo, _, _ := newProposalServiceFixture()
	ctx := context.Background()

	empty, err := svc.Defaults(ctx, chairX)
	require.NoError(t, err)
	assert.Equal(t, models.ExamInfo{}, empty.Exam)
	assert.NotNil(t, empty.ExamRelated)
	assert.Empty(t, empty.ExamRelated)

	p, err := svc.Create(ctx, chairX)
	require.NoError(t, err)
	_, err = svc.UpdateContent(ctx, p.ID, dto.UpdateProposalContentRequest{
		Exam:        &models.ExamInfo{Degree: "BSc", Level: "2", Semester: "1", Year: "2026"},
		Course:      &models.CourseInfo{CourseCode: "CSE-201"},
		ExamRelated: &[]string{"Question setter"},
	}, chairX)
	require.NoError(t, err)
	advanceTo(t, svc, p.ID, chairX)

	got, err := svc.Defaults(ctx, chairX)
	require.NoError(t, err)
	assert.Equal(t, "BSc", got.Exam.Degree)
	assert.Equal(t, "CSE-201", got.Course.CourseCode)
	assert.Equal(t, []string{"Question setter"}, got.ExamRelated)

	last := repo.filters[len(repo.filters)-1]
	assert.Equal(t, "chair-x", last.OwnerID)
	assert.Equal(t, 1, last.Limit)
	assert.Len(t, last.Statuses, 6)

	other, err := svc.Defaults(ctx, &models.JWTClaims{UserID: "chair-other", Role: models.RoleChairman})
	require.NoError(t, err)
	assert.Empty(t, other.Course.CourseCode, "defaults are scoped to the caller")

	_, err = svc.Defaults(ctx, deanY)
	requireErrorCode(t, err, appErrors.ErrForbidden)
	_, err = svc.Defaults(ctx, nil)
	requireErrorCode(t, err, appErrors.ErrUnauthorized)
}
