package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Domain entity errors represent missing or invalid entities in the system.
// These errors indicate that a requested resource does not exist.
var (
	// ErrDistributionNotFound indicates that a distribution with the given ID does not exist.
	ErrDistributionNotFound = errors.New("distribution not found")

	// ErrSPVNotFound indicates that the SPV is unknown to the shareholder registry.
	ErrSPVNotFound = errors.New("spv not found")

	// ErrInvestorNotFound indicates that an investor profile could not be resolved.
	ErrInvestorNotFound = errors.New("investor not found")

	// ErrAllocationNotFound indicates that the investor holds no allocation in the distribution.
	ErrAllocationNotFound = errors.New("investor allocation not found")
)

// Business rule errors. Each one is rejected before any state change.
var (
	// ErrValidation indicates bad input: non-positive amounts, missing required fields.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCalculation indicates the inputs cannot produce a distribution
	// (negative net distributable amount, zero total shares, unusable registry).
	ErrInvalidCalculation = errors.New("invalid calculation")

	// ErrInvalidStateTransition indicates the operation is not legal in the distribution's current status.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInvalidApprovalOrder indicates an out-of-order or duplicate approval.
	ErrInvalidApprovalOrder = errors.New("invalid approval order")

	// ErrActiveDistributionExists indicates the SPV already has a non-terminal distribution.
	ErrActiveDistributionExists = fmt.Errorf("%w: spv already has an active distribution", ErrInvalidStateTransition)

	// ErrConcurrentModification indicates the distribution changed between read and write.
	ErrConcurrentModification = fmt.Errorf("%w: distribution was modified concurrently", ErrInvalidStateTransition)

	// ErrMissingBankDetails indicates a payment batch is not fully payable.
	ErrMissingBankDetails = errors.New("missing bank details")

	// ErrPaymentAlreadyRecorded indicates an attempt to overwrite a settled payment with a different reference.
	ErrPaymentAlreadyRecorded = errors.New("payment already recorded")

	// ErrBankGateway indicates the bank gateway call failed or timed out as a whole.
	ErrBankGateway = errors.New("bank gateway unavailable")
)

// Operation failure errors, used as user-facing messages by the HTTP layer.
var (
	ErrFailedToRetrieveDistributions = errors.New("failed to retrieve distributions")
	ErrFailedToRetrieveDistribution  = errors.New("failed to retrieve distribution")
	ErrFailedToCalculateDistribution = errors.New("failed to calculate distribution")
	ErrFailedToUpdateDistribution    = errors.New("failed to update distribution")
	ErrFailedToExportBankBatch       = errors.New("failed to export bank batch")
	ErrFailedToSubmitBatch           = errors.New("failed to submit payment batch")
	ErrFailedToImportConfirmations   = errors.New("failed to import payment confirmations")
	ErrFailedToRecordPayment         = errors.New("failed to record payment")
	ErrFailedToRetrieveBatches       = errors.New("failed to retrieve payment batches")
	ErrFailedToRetrieveHistory       = errors.New("failed to retrieve transaction history")
	ErrInvalidCSVHeaders             = errors.New("invalid CSV headers")
)

// Data integrity errors represent inconsistencies or corruption in the data.
var (
	// ErrDataInconsistency indicates that stored data violates an engine invariant.
	ErrDataInconsistency = errors.New("data inconsistency detected")
)

// StateError reports an operation rejected by the distribution state machine.
// It always names the status the distribution was in.
type StateError struct {
	Op      string
	Current string
	Reason  string
	Kind    error // ErrInvalidStateTransition or ErrInvalidApprovalOrder
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("%s: cannot %s while distribution is %s", e.Kind, e.Op, e.Current)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StateError) Unwrap() error {
	return e.Kind
}

// NewTransitionError builds a StateError of kind ErrInvalidStateTransition.
func NewTransitionError(op, current, reason string) *StateError {
	return &StateError{Op: op, Current: current, Reason: reason, Kind: ErrInvalidStateTransition}
}

// NewApprovalOrderError builds a StateError of kind ErrInvalidApprovalOrder.
func NewApprovalOrderError(op, current, reason string) *StateError {
	return &StateError{Op: op, Current: current, Reason: reason, Kind: ErrInvalidApprovalOrder}
}

// MissingBankDetailsError lists the investors whose allocations cannot be paid.
type MissingBankDetailsError struct {
	Investors []string
}

func (e *MissingBankDetailsError) Error() string {
	return fmt.Sprintf("%s for investors: %s", ErrMissingBankDetails, strings.Join(e.Investors, ", "))
}

func (e *MissingBankDetailsError) Unwrap() error {
	return ErrMissingBankDetails
}
