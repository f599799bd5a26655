package service

import (
	"fmt"

	"github.com/noah-isme/exam-committee-api/internal/models"
	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
)

var (
	errProposalNotFound  = appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
	errDraftNotFound     = appErrors.Clone(appErrors.ErrNotFound, "draft proposal not found")
	errProposalForbidden = appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	errWrongStatus       = appErrors.Clone(appErrors.ErrWrongStatus, "wrong status")
	errCannotCancel      = appErrors.Clone(appErrors.ErrForbidden, "cannot cancel this proposal")
	errChairmanOnly      = appErrors.Clone(appErrors.ErrForbidden, "only a chairman can do this")
	errProposalConflict  = appErrors.Clone(appErrors.ErrConflict, "proposal was modified concurrently, reload and retry")
)

// pendingStage returns the status a reviewing role acts on.
func pendingStage(role models.UserRole) (models.ProposalStatus, bool) {
	switch role {
	case models.RoleDean:
		return models.ProposalStatusPendingDean, true
	case models.RoleVC:
		return models.ProposalStatusPendingVC, true
	case models.RoleController:
		return models.ProposalStatusPendingController, true
	default:
		return "", false
	}
}

// canView grants read access to the owner, to the role whose stage the proposal sits in,
// and to everyone once approved.
func canView(role models.UserRole, userID string, proposal *models.Proposal) bool {
	if proposal.OwnerID == userID {
		return true
	}
	if proposal.Status == models.ProposalStatusApproved {
		return true
	}
	stage, ok := pendingStage(role)
	return ok && stage == proposal.Status
}

// signRule is one row of the signing table.
type signRule struct {
	from      models.ProposalStatus
	to        models.ProposalStatus
	ownerOnly bool
}

func signRuleFor(role models.UserRole) (signRule, bool) {
	switch role {
	case models.RoleChairman:
		return signRule{from: models.ProposalStatusDraft, to: models.ProposalStatusPendingDean, ownerOnly: true}, true
	case models.RoleDean:
		return signRule{from: models.ProposalStatusPendingDean, to: models.ProposalStatusPendingVC}, true
	case models.RoleVC:
		return signRule{from: models.ProposalStatusPendingVC, to: models.ProposalStatusPendingController}, true
	case models.RoleController:
		return signRule{from: models.ProposalStatusPendingController, to: models.ProposalStatusApproved}, true
	default:
		return signRule{}, false
	}
}

// authorizeSign returns the rule that applies when role signs proposal.
// The chairman gets Forbidden on any mismatch; reviewers get WrongStatus.
func authorizeSign(role models.UserRole, userID string, proposal *models.Proposal) (signRule, error) {
	rule, ok := signRuleFor(role)
	if !ok {
		return signRule{}, errProposalForbidden
	}
	if proposal.Status.Terminal() {
		if rule.ownerOnly {
			return signRule{}, errProposalForbidden
		}
		return signRule{}, appErrors.Clone(appErrors.ErrWrongStatus, fmt.Sprintf("proposal is already %s", proposal.Status))
	}
	if rule.ownerOnly {
		if proposal.OwnerID != userID || proposal.Status != rule.from {
			return signRule{}, errProposalForbidden
		}
		return rule, nil
	}
	if proposal.Status != rule.from {
		return signRule{}, errWrongStatus
	}
	return rule, nil
}

// authorizeCancel checks that the role owns the proposal's current pending stage.
func authorizeCancel(role models.UserRole, proposal *models.Proposal) error {
	stage, ok := pendingStage(role)
	if !ok {
		return errProposalForbidden
	}
	if proposal.Status.Terminal() || proposal.Status != stage {
		return errCannotCancel
	}
	return nil
}

// listStatuses resolves the statuses a role's list view covers. A chairman may narrow
// to draft or cancelled; reviewers see their own pending stage.
func listStatuses(role models.UserRole, requested string) (statuses []models.ProposalStatus, ownerScoped bool, err error) {
	if _, known := signRuleFor(role); !known {
		return nil, false, errProposalForbidden
	}
	if requested != "" && !models.ProposalStatus(requested).Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", requested))
	}
	switch role {
	case models.RoleChairman:
		switch models.ProposalStatus(requested) {
		case "":
			return []models.ProposalStatus{models.ProposalStatusDraft, models.ProposalStatusCancelled}, true, nil
		case models.ProposalStatusDraft, models.ProposalStatusCancelled:
			return []models.ProposalStatus{models.ProposalStatus(requested)}, true, nil
		default:
			return nil, false, appErrors.Clone(appErrors.ErrValidation, "status must be draft or cancelled")
		}
	case models.RoleDean, models.RoleVC, models.RoleController:
		stage, _ := pendingStage(role)
		if requested != "" && models.ProposalStatus(requested) != stage {
			return nil, false, appErrors.Clone(appErrors.ErrValidation, "status filter is only available to chairmen")
		}
		return []models.ProposalStatus{stage}, false, nil
	default:
		return nil, false, errProposalForbidden
	}
}
