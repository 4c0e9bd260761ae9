// Package workflow holds the distribution state machine.
//
// Every legal status change is an entry in the transition table; anything not in the table is
// rejected with an error naming the current status. Approval ordering and the capability
// predicates shown to callers are derived from the same canonical state.
package workflow

import (
	"fmt"
	"strings"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
)

// Event is something that happens to a distribution.
type Event string

const (
	EventCalculate           Event = "calculate"
	EventApproveAssetManager Event = "approve_asset_manager"
	EventApproveCompliance   Event = "approve_compliance"
	EventApproveAdmin        Event = "approve_admin"
	EventStartPayment        Event = "start_payment"
	EventSettle              Event = "settle"
	EventCancel              Event = "cancel"
)

type transitionKey struct {
	from  model.Status
	event Event
}

var transitions = map[transitionKey]model.Status{
	{model.StatusDraft, EventCalculate}:      model.StatusCalculated,
	{model.StatusCalculated, EventCalculate}: model.StatusCalculated,

	{model.StatusDraft, EventApproveAssetManager}:       model.StatusUnderReview,
	{model.StatusCalculated, EventApproveAssetManager}:  model.StatusUnderReview,
	{model.StatusUnderReview, EventApproveCompliance}:   model.StatusUnderReview,
	{model.StatusUnderReview, EventApproveAdmin}:        model.StatusApproved,
	{model.StatusApproved, EventStartPayment}:           model.StatusProcessing,
	{model.StatusProcessing, EventStartPayment}:         model.StatusProcessing,
	{model.StatusProcessing, EventSettle}:               model.StatusCompleted,
	{model.StatusDraft, EventCancel}:                    model.StatusCancelled,
	{model.StatusCalculated, EventCancel}:               model.StatusCancelled,
}

var eventOps = map[Event]string{
	EventCalculate:           "calculate",
	EventApproveAssetManager: "approve as asset manager",
	EventApproveCompliance:   "approve as compliance",
	EventApproveAdmin:        "approve as admin",
	EventStartPayment:        "start payments",
	EventSettle:              "complete",
	EventCancel:              "cancel",
}

// Apply returns the status reached by applying ev in status from.
func Apply(from model.Status, ev Event) (model.Status, error) {
	to, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return from, apperrors.NewTransitionError(eventOps[ev], string(from), "")
	}
	return to, nil
}

// Allowed reports whether ev is legal in status from.
func Allowed(from model.Status, ev Event) bool {
	_, ok := transitions[transitionKey{from, ev}]
	return ok
}

func approvalEvent(role model.ApprovalRole) Event {
	switch role {
	case model.RoleAssetManager:
		return EventApproveAssetManager
	case model.RoleCompliance:
		return EventApproveCompliance
	case model.RoleAdmin:
		return EventApproveAdmin
	default:
		return ""
	}
}

// CheckApproval validates that role may approve d now, without changing anything.
// It returns the status the distribution moves to once the approval is recorded.
func CheckApproval(d *model.Distribution, role model.ApprovalRole) (model.Status, error) {
	ev := approvalEvent(role)
	if ev == "" {
		return d.Status, fmt.Errorf("%w: unknown approval role %q", apperrors.ErrValidation, role)
	}
	op := eventOps[ev]
	current := string(d.Status)

	if existing := d.Approvals.Get(role); existing.Approved {
		reason := "already approved"
		if existing.ApprovedBy != "" {
			reason += " by " + existing.ApprovedBy
		}
		if existing.ApprovedAt != nil {
			reason += " at " + existing.ApprovedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		return d.Status, apperrors.NewApprovalOrderError(op, current, reason)
	}

	if d.Status.IsTerminal() {
		return d.Status, apperrors.NewTransitionError(op, current, "")
	}

	switch role {
	case model.RoleCompliance:
		if !d.Approvals.AssetManager.Approved {
			return d.Status, apperrors.NewApprovalOrderError(op, current, "asset manager approval required first")
		}
	case model.RoleAdmin:
		var missing []string
		if !d.Approvals.AssetManager.Approved {
			missing = append(missing, "asset manager")
		}
		if !d.Approvals.Compliance.Approved {
			missing = append(missing, "compliance")
		}
		if len(missing) > 0 {
			return d.Status, apperrors.NewApprovalOrderError(op, current, strings.Join(missing, " and ")+" approval required first")
		}
	}

	// a draft carries no allocations until it is calculated
	if len(d.InvestorDistributions) == 0 {
		return d.Status, apperrors.NewTransitionError(op, current, "distribution has no allocations; calculate it first")
	}

	to, err := Apply(d.Status, ev)
	if err != nil {
		if role != model.RoleAssetManager {
			return d.Status, apperrors.NewApprovalOrderError(op, current, "distribution must be under_review")
		}
		return d.Status, err
	}
	return to, nil
}

// CheckCancel validates that d can be cancelled with reason.
func CheckCancel(d *model.Distribution, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: cancellation reason is required", apperrors.ErrValidation)
	}
	if d.Approvals.Any() {
		return apperrors.NewTransitionError(eventOps[EventCancel], string(d.Status), "an approval has already been recorded")
	}
	_, err := Apply(d.Status, EventCancel)
	return err
}

// CheckEdit validates that d's financial inputs may still be changed.
func CheckEdit(d *model.Distribution) error {
	if d.Approvals.Any() {
		return apperrors.NewTransitionError("edit", string(d.Status), "an approval has already been recorded")
	}
	if _, err := Apply(d.Status, EventCalculate); err != nil {
		return apperrors.NewTransitionError("edit", string(d.Status), "")
	}
	return nil
}

// CheckPayment validates that payments may be recorded against d. A completed
// distribution is accepted so repeated confirmations report per row instead of failing.
func CheckPayment(d *model.Distribution) error {
	switch d.Status {
	case model.StatusApproved, model.StatusProcessing, model.StatusCompleted:
		return nil
	default:
		return apperrors.NewTransitionError("record payments", string(d.Status), "distribution is not approved")
	}
}

// SettlementOutcome is the result of evaluating the completion rule.
type SettlementOutcome int

const (
	// SettlementPending means at least one allocation has no final payment outcome yet.
	SettlementPending SettlementOutcome = iota
	// SettlementReady means every allocation was paid.
	SettlementReady
	// SettlementFailedRows means every allocation is final, some were paid and the failed
	// ones still wait for a retry or a manual confirmation.
	SettlementFailedRows
	// SettlementNoSuccess means every allocation is final but none succeeded.
	SettlementNoSuccess
)

// NeedsAttention reports whether only an operator can move the distribution forward.
func (o SettlementOutcome) NeedsAttention() bool {
	return o == SettlementFailedRows || o == SettlementNoSuccess
}

// EvaluateSettlement applies the completion rule to allocations. Failed payments keep
// their failure for retry, so a distribution completes only once every allocation is paid.
func EvaluateSettlement(allocations []model.InvestorAllocation) SettlementOutcome {
	if len(allocations) == 0 {
		return SettlementPending
	}
	succeeded := 0
	for _, a := range allocations {
		if !a.PaymentStatus.IsTerminal() {
			return SettlementPending
		}
		if a.PaymentStatus == model.PaymentCompleted {
			succeeded++
		}
	}
	switch succeeded {
	case 0:
		return SettlementNoSuccess
	case len(allocations):
		return SettlementReady
	default:
		return SettlementFailedRows
	}
}

// Capabilities are the actions currently legal on a distribution.
type Capabilities struct {
	CanEdit      bool               `json:"canEdit"`
	CanCancel    bool               `json:"canCancel"`
	CanApprove   bool               `json:"canApprove"`
	NextApproval model.ApprovalRole `json:"nextApproval,omitempty"`
	CanPay       bool               `json:"canPay"`
}

// CapabilitiesOf derives the capability predicates from d's canonical state.
func CapabilitiesOf(d *model.Distribution) Capabilities {
	var c Capabilities
	c.CanEdit = CheckEdit(d) == nil
	c.CanCancel = !d.Approvals.Any() && Allowed(d.Status, EventCancel)
	for _, role := range []model.ApprovalRole{model.RoleAssetManager, model.RoleCompliance, model.RoleAdmin} {
		if _, err := CheckApproval(d, role); err == nil {
			c.CanApprove = true
			c.NextApproval = role
			break
		}
	}
	c.CanPay = d.Status == model.StatusApproved || d.Status == model.StatusProcessing
	return c
}
