package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/bank"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/bankfile"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/metrics"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/repository"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/workflow"
)

// Payment sources, used as the metrics label.
const (
	sourceBank   = "bank"
	sourceCSV    = "csv"
	sourceManual = "manual"
)

// unsettled are the payment states a confirmation may move to completed.
var unsettled = []model.PaymentStatus{
	model.PaymentPending,
	model.PaymentInitiated,
	model.PaymentProcessing,
	model.PaymentFailed,
}

// PaymentService reconciles allocation payments from the bank gateway and from manual
// confirmations, and settles distributions once every payment is final.
//
// Each allocation update is conditional on the state it was read in, so a settled payment
// is never overwritten and one row's failure never blocks the others.
type PaymentService struct {
	db        *sql.DB
	distRepo  *repository.DistributionRepository
	batchRepo *repository.BatchRepository
	gateway   bank.Gateway
	clock     clockwork.Clock
	currency  string
	log       *slog.Logger
}

// NewPaymentService creates a new PaymentService with the provided dependencies.
func NewPaymentService(
	db *sql.DB,
	distRepo *repository.DistributionRepository,
	batchRepo *repository.BatchRepository,
	gateway bank.Gateway,
	clock clockwork.Clock,
	currency string,
	log *slog.Logger,
) *PaymentService {
	return &PaymentService{
		db:        db,
		distRepo:  distRepo,
		batchRepo: batchRepo,
		gateway:   gateway,
		clock:     clock,
		currency:  currency,
		log:       log,
	}
}

// paymentReference ties a bank row back to its distribution and allocation.
func paymentReference(d *model.Distribution, a *model.InvestorAllocation) string {
	return d.DistributionNumber + "/" + a.ID
}

func paymentRemark(d *model.Distribution) string {
	return d.Type.Label() + " " + d.DistributionNumber
}

// ExportBankBatch returns one bank-submission row per allocation still awaiting payment.
// Allocations without bank details are exported with empty account fields. Nothing is written.
func (s *PaymentService) ExportBankBatch(ctx context.Context, id string) (*model.Distribution, []model.BankBatchRow, error) {
	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rows := []model.BankBatchRow{}
	for i := range d.InvestorDistributions {
		a := &d.InvestorDistributions[i]
		if !a.PaymentStatus.IsPayable() {
			continue
		}
		row := model.BankBatchRow{
			BeneficiaryName: a.InvestorName,
			Amount:          a.NetAmount,
			Reference:       paymentReference(d, a),
			Remark:          paymentRemark(d),
		}
		if a.BankDetails != nil {
			row.BeneficiaryName = a.BankDetails.AccountHolderName
			row.AccountNumber = a.BankDetails.AccountNumber
			row.IFSC = a.BankDetails.IFSC
			row.BankName = a.BankDetails.BankName
			row.Branch = a.BankDetails.BranchName
		}
		rows = append(rows, row)
	}
	return d, rows, nil
}

// SubmitBatch sends every pending or processing allocation to the bank in one batch.
//
// The batch is only sent when every eligible allocation has bank details. Submitted
// allocations move to processing before the call; each row's result is then applied on its
// own. A gateway failure marks the batch failed and leaves the allocations processing.
// Submission is refused while an earlier batch of the distribution is still with the bank.
func (s *PaymentService) SubmitBatch(ctx context.Context, id string) (*model.BatchResult, error) {
	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	to, err := workflow.Apply(d.Status, workflow.EventStartPayment)
	if err != nil {
		return nil, err
	}

	var eligible []*model.InvestorAllocation
	var missing []string
	for i := range d.InvestorDistributions {
		a := &d.InvestorDistributions[i]
		if !a.PaymentStatus.IsPayable() {
			continue
		}
		eligible = append(eligible, a)
		if !a.BankDetails.IsComplete() {
			missing = append(missing, fmt.Sprintf("%s (%s)", a.InvestorName, a.InvestorID))
		}
	}
	if len(eligible) == 0 {
		return nil, apperrors.NewTransitionError("submit payments", string(d.Status), "no allocations are awaiting payment")
	}
	if len(missing) > 0 {
		return nil, &apperrors.MissingBankDetailsError{Investors: missing}
	}

	now := s.clock.Now().UTC()
	batch := &model.PaymentBatch{
		ID:             uuid.New().String(),
		DistributionID: d.ID,
		Status:         model.BatchSubmitted,
		SubmittedAt:    now,
	}

	var submitted []*model.InvestorAllocation
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		distRepo := s.distRepo.WithTx(tx)
		batchRepo := s.batchRepo.WithTx(tx)

		inFlight, err := batchRepo.HasInFlightBatch(ctx, d.ID)
		if err != nil {
			return err
		}
		if inFlight {
			return apperrors.NewTransitionError("submit payments", string(d.Status), "a payment batch is still awaiting the bank")
		}

		if err := distRepo.UpdateStatus(ctx, d.ID, d.Version, to, now); err != nil {
			return err
		}

		batch.Total = len(eligible)
		for _, a := range eligible {
			batch.Amount += a.NetAmount
		}
		if err := batchRepo.InsertBatch(ctx, batch); err != nil {
			return err
		}

		batch.Total, batch.Amount = 0, 0
		for _, a := range eligible {
			ok, err := distRepo.UpdateAllocationPayment(ctx, a.ID,
				[]model.PaymentStatus{model.PaymentPending, model.PaymentProcessing},
				repository.PaymentUpdate{
					Status:    model.PaymentProcessing,
					BatchID:   batch.ID,
					UpdatedAt: now,
				})
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			a.PaymentStatus = model.PaymentProcessing
			a.BatchID = batch.ID
			submitted = append(submitted, a)
			batch.Total++
			batch.Amount += a.NetAmount
		}
		if len(submitted) == 0 {
			return apperrors.ErrConcurrentModification
		}
		return batchRepo.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return nil, err
	}
	if to != d.Status {
		metrics.DistributionTransitionsTotal.WithLabelValues(string(to)).Inc()
	}

	req := bank.BatchRequest{Reference: batch.ID}
	for _, a := range submitted {
		req.Payments = append(req.Payments, bank.PaymentRow{
			Reference:       paymentReference(d, a),
			BeneficiaryName: a.BankDetails.AccountHolderName,
			AccountNumber:   a.BankDetails.AccountNumber,
			IFSC:            a.BankDetails.IFSC,
			BankName:        a.BankDetails.BankName,
			Branch:          a.BankDetails.BranchName,
			Amount:          a.NetAmount,
			Currency:        s.currency,
			Remark:          paymentRemark(d),
		})
	}

	s.log.InfoContext(ctx, "submitting payment batch",
		"distribution_id", d.ID,
		"batch_id", batch.ID,
		"payments", len(req.Payments),
		"amount", batch.Amount.String(),
	)

	start := time.Now()
	resp, gwErr := s.gateway.SubmitBatch(ctx, req)
	metrics.RecordGatewayCall(time.Since(start))

	if gwErr != nil {
		completed := s.clock.Now().UTC()
		batch.Status = model.BatchFailed
		batch.Error = gwErr.Error()
		batch.CompletedAt = &completed
		// recorded even if the caller has gone
		if err := s.batchRepo.UpdateBatch(context.WithoutCancel(ctx), batch); err != nil {
			s.log.ErrorContext(ctx, "failed to record failed batch", "batch_id", batch.ID, "error", err)
		}
		metrics.BatchesTotal.WithLabelValues(string(model.BatchFailed)).Inc()
		s.log.ErrorContext(ctx, "payment batch failed",
			"distribution_id", d.ID,
			"batch_id", batch.ID,
			"error", gwErr,
		)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBankGateway, gwErr)
	}

	results := make(map[string]bank.RowResult, len(resp.Results))
	for _, r := range resp.Results {
		results[r.Reference] = r
	}

	// the bank has acted, so row outcomes are applied even if the caller has gone
	applyCtx := context.WithoutCancel(ctx)
	out := &model.BatchResult{Rows: make([]model.BatchRowResult, 0, len(submitted))}
	for _, a := range submitted {
		ref := paymentReference(d, a)
		row := s.applyBankResult(applyCtx, a, ref, results, batch.ID)
		switch row.PaymentStatus {
		case model.PaymentCompleted:
			batch.Successful++
		case model.PaymentFailed:
			batch.Failed++
		}
		out.Rows = append(out.Rows, row)
	}

	completed := s.clock.Now().UTC()
	batch.BankBatchID = resp.BatchID
	batch.CompletedAt = &completed
	switch {
	case batch.Successful == batch.Total:
		batch.Status = model.BatchCompleted
	case batch.Successful == 0:
		batch.Status = model.BatchFailed
	default:
		batch.Status = model.BatchPartial
	}
	if err := s.batchRepo.UpdateBatch(applyCtx, batch); err != nil {
		return nil, err
	}
	metrics.BatchesTotal.WithLabelValues(string(batch.Status)).Inc()

	status, attention, err := s.refreshCompletion(applyCtx, d.ID)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "payment batch applied",
		"distribution_id", d.ID,
		"batch_id", batch.ID,
		"bank_batch_id", batch.BankBatchID,
		"successful", batch.Successful,
		"failed", batch.Failed,
		"status", batch.Status,
	)

	out.Batch = *batch
	out.TotalTransactions = batch.Total
	out.SuccessfulTransactions = batch.Successful
	out.FailedTransactions = batch.Failed
	out.DistributionStatus = status
	out.NeedsAttention = attention
	return out, nil
}

func (s *PaymentService) applyBankResult(ctx context.Context, a *model.InvestorAllocation, ref string, results map[string]bank.RowResult, batchID string) model.BatchRowResult {
	row := model.BatchRowResult{
		AllocationID:  a.ID,
		InvestorID:    a.InvestorID,
		Reference:     ref,
		PaymentStatus: model.PaymentProcessing,
	}

	r, ok := results[ref]
	if !ok {
		row.Error = "no result returned by bank"
		return row
	}

	now := s.clock.Now().UTC()
	update := repository.PaymentUpdate{BatchID: batchID, UpdatedAt: now}
	if r.Succeeded() {
		paidAt, ok := r.PaidAt()
		if !ok {
			paidAt = now
		}
		update.Status = model.PaymentCompleted
		update.TransactionID = r.TransactionID
		update.UTR = r.UTR
		update.PaymentDate = &paidAt
	} else {
		update.Status = model.PaymentFailed
		update.FailureReason = r.Error
		if update.FailureReason == "" {
			update.FailureReason = "rejected by bank with status " + r.Status
		}
	}

	applied, err := s.distRepo.UpdateAllocationPayment(ctx, a.ID, []model.PaymentStatus{model.PaymentProcessing}, update)
	switch {
	case err != nil:
		row.Error = err.Error()
		s.log.ErrorContext(ctx, "failed to apply bank result", "allocation_id", a.ID, "error", err)
		return row
	case !applied:
		row.Error = "allocation changed while the batch was in flight"
		return row
	}

	row.PaymentStatus = update.Status
	row.TransactionID = update.TransactionID
	row.UTR = update.UTR
	row.Error = update.FailureReason
	metrics.PaymentsTotal.WithLabelValues(sourceBank, string(update.Status)).Inc()
	return row
}

// ImportConfirmations applies a manual confirmation CSV. Rows are matched to allocations by
// investor email, case-insensitively. A row that cannot be applied is reported in the result
// and never stops the others.
func (s *PaymentService) ImportConfirmations(ctx context.Context, id string, r io.Reader) (*model.ImportResult, error) {
	confirmations, rowErrs, err := bankfile.ReadConfirmations(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckPayment(d); err != nil {
		return nil, err
	}

	result := &model.ImportResult{Errors: []model.ImportRowError{}}
	result.Errors = append(result.Errors, rowErrs...)

	byEmail := make(map[string]*model.InvestorAllocation, len(d.InvestorDistributions))
	for i := range d.InvestorDistributions {
		a := &d.InvestorDistributions[i]
		byEmail[strings.ToLower(strings.TrimSpace(a.InvestorEmail))] = a
	}

	fail := func(c model.PaymentConfirmation, reason string) {
		result.Errors = append(result.Errors, model.ImportRowError{Row: c.Row, Email: c.Email, Reason: reason})
		metrics.PaymentsTotal.WithLabelValues(sourceCSV, "rejected").Inc()
	}

	started := false
	for _, c := range confirmations {
		ref := model.PaymentReference{TransactionID: c.TransactionID, UTR: c.UTR, PaymentDate: c.PaymentDate}
		if ref.IsEmpty() {
			fail(c, "transaction_id or utr is required")
			continue
		}
		a, ok := byEmail[strings.ToLower(c.Email)]
		if !ok {
			fail(c, "no allocation for this email")
			continue
		}
		if a.PaymentStatus == model.PaymentCompleted {
			fail(c, "payment already recorded")
			continue
		}

		if !started {
			// the first applicable row starts payments on an approved distribution
			if err := s.startPayments(ctx, d); err != nil {
				return nil, err
			}
			started = true
		}

		update := s.completedUpdate(ref)
		applied, err := s.distRepo.UpdateAllocationPayment(ctx, a.ID, unsettled, update)
		if err != nil {
			fail(c, "failed to record payment")
			s.log.ErrorContext(ctx, "failed to apply confirmation", "allocation_id", a.ID, "row", c.Row, "error", err)
			continue
		}
		if !applied {
			fail(c, "payment already recorded")
			continue
		}

		a.PaymentStatus = model.PaymentCompleted
		result.SuccessCount++
		metrics.PaymentsTotal.WithLabelValues(sourceCSV, string(model.PaymentCompleted)).Inc()
	}
	result.FailCount = len(result.Errors)

	if _, _, err := s.refreshCompletion(ctx, d.ID); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "payment confirmations imported",
		"distribution_id", d.ID,
		"success", result.SuccessCount,
		"failed", result.FailCount,
	)
	return result, nil
}

// MarkPaid records a settled payment for one investor's allocation.
//
// Repeating the call with the reference already recorded is a no-op; a different reference
// on a settled allocation fails with apperrors.ErrPaymentAlreadyRecorded.
func (s *PaymentService) MarkPaid(ctx context.Context, id, investorID string, ref model.PaymentReference) (*model.MarkPaidResult, error) {
	if ref.IsEmpty() {
		return nil, fmt.Errorf("%w: transactionId or utr is required", apperrors.ErrValidation)
	}

	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	a := d.Allocation(investorID)
	if a == nil {
		return nil, apperrors.ErrAllocationNotFound
	}
	if a.PaymentStatus == model.PaymentCompleted {
		return settledResult(a, ref)
	}
	if err := workflow.CheckPayment(d); err != nil {
		return nil, err
	}
	if err := s.startPayments(ctx, d); err != nil {
		return nil, err
	}

	applied, err := s.distRepo.UpdateAllocationPayment(ctx, a.ID, unsettled, s.completedUpdate(ref))
	if err != nil {
		return nil, err
	}

	current, err := s.reloadAllocation(ctx, id, investorID)
	if err != nil {
		return nil, err
	}
	if !applied {
		if current.PaymentStatus == model.PaymentCompleted {
			return settledResult(current, ref)
		}
		return nil, apperrors.ErrConcurrentModification
	}

	metrics.PaymentsTotal.WithLabelValues(sourceManual, string(model.PaymentCompleted)).Inc()
	s.log.InfoContext(ctx, "payment recorded",
		"distribution_id", id,
		"investor_id", investorID,
		"transaction_id", ref.TransactionID,
		"utr", ref.UTR,
	)

	if _, _, err := s.refreshCompletion(ctx, id); err != nil {
		return nil, err
	}
	return &model.MarkPaidResult{Allocation: *current}, nil
}

func settledResult(a *model.InvestorAllocation, ref model.PaymentReference) (*model.MarkPaidResult, error) {
	if ref.Matches(a) {
		return &model.MarkPaidResult{Allocation: *a, NoOp: true}, nil
	}
	return nil, fmt.Errorf("%w: allocation was settled with transaction %q utr %q",
		apperrors.ErrPaymentAlreadyRecorded, a.TransactionID, a.UTR)
}

func (s *PaymentService) reloadAllocation(ctx context.Context, id, investorID string) (*model.InvestorAllocation, error) {
	allocations, err := s.distRepo.GetAllocations(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range allocations {
		if allocations[i].InvestorID == investorID {
			return &allocations[i], nil
		}
	}
	return nil, apperrors.ErrAllocationNotFound
}

func (s *PaymentService) completedUpdate(ref model.PaymentReference) repository.PaymentUpdate {
	now := s.clock.Now().UTC()
	paidAt := now
	if ref.PaymentDate != nil {
		paidAt = ref.PaymentDate.UTC()
	}
	return repository.PaymentUpdate{
		Status:        model.PaymentCompleted,
		TransactionID: ref.TransactionID,
		UTR:           ref.UTR,
		PaymentDate:   &paidAt,
		UpdatedAt:     now,
	}
}

// startPayments moves an approved distribution to processing before its first payment.
func (s *PaymentService) startPayments(ctx context.Context, d *model.Distribution) error {
	if d.Status != model.StatusApproved {
		return nil
	}
	to, err := workflow.Apply(d.Status, workflow.EventStartPayment)
	if err != nil {
		return err
	}
	if err := s.distRepo.UpdateStatus(ctx, d.ID, d.Version, to, s.clock.Now().UTC()); err != nil {
		return err
	}
	d.Status = to
	d.Version++
	metrics.DistributionTransitionsTotal.WithLabelValues(string(to)).Inc()
	return nil
}

// RetryFailed returns every failed allocation of a processing distribution to pending so
// the next batch submission includes it. It returns the number of allocations reset.
func (s *PaymentService) RetryFailed(ctx context.Context, id string) (int, error) {
	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return 0, err
	}
	if d.Status != model.StatusProcessing {
		return 0, apperrors.NewTransitionError("retry failed payments", string(d.Status), "distribution is not processing")
	}

	var reset int
	now := s.clock.Now().UTC()
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.distRepo.WithTx(tx)
		if err := repo.UpdateStatus(ctx, d.ID, d.Version, d.Status, now); err != nil {
			return err
		}
		var err error
		reset, err = repo.ResetFailedAllocations(ctx, d.ID, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.InfoContext(ctx, "failed payments reset for retry", "distribution_id", id, "count", reset)
	return reset, nil
}

// ListBatches returns the bank submissions of a distribution, newest first.
func (s *PaymentService) ListBatches(ctx context.Context, id string) ([]model.PaymentBatch, error) {
	if _, err := s.distRepo.GetDistribution(ctx, id); err != nil {
		return nil, err
	}
	return s.batchRepo.ListBatches(ctx, id)
}

// ConfirmationTemplate returns the emails of investors whose payment is not yet recorded,
// for pre-filling a confirmation CSV.
func (s *PaymentService) ConfirmationTemplate(ctx context.Context, id string) (*model.Distribution, []string, error) {
	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	emails := []string{}
	for _, a := range d.InvestorDistributions {
		if a.PaymentStatus != model.PaymentCompleted {
			emails = append(emails, a.InvestorEmail)
		}
	}
	return d, emails, nil
}

// refreshCompletion settles a processing distribution once every allocation is paid.
// attention is true when every allocation is final but some, or all, payments failed.
func (s *PaymentService) refreshCompletion(ctx context.Context, id string) (status model.Status, attention bool, err error) {
	d, err := s.distRepo.GetDistribution(ctx, id)
	if err != nil {
		return "", false, err
	}
	if d.Status != model.StatusProcessing {
		return d.Status, false, nil
	}

	outcome := workflow.EvaluateSettlement(d.InvestorDistributions)
	switch outcome {
	case workflow.SettlementReady:
		to, err := workflow.Apply(d.Status, workflow.EventSettle)
		if err != nil {
			return d.Status, false, err
		}
		err = s.distRepo.UpdateStatus(ctx, d.ID, d.Version, to, s.clock.Now().UTC())
		if errors.Is(err, apperrors.ErrConcurrentModification) {
			// moved by another writer; the next sweep re-evaluates
			return d.Status, false, nil
		}
		if err != nil {
			return d.Status, false, err
		}
		metrics.DistributionTransitionsTotal.WithLabelValues(string(to)).Inc()
		s.log.InfoContext(ctx, "distribution completed",
			"distribution_id", d.ID,
			"paid", paidTotal(d).String(),
		)
		return to, false, nil
	case workflow.SettlementFailedRows, workflow.SettlementNoSuccess:
		failed := 0
		for _, a := range d.InvestorDistributions {
			if a.PaymentStatus == model.PaymentFailed {
				failed++
			}
		}
		s.log.WarnContext(ctx, "distribution needs operator attention",
			"distribution_id", d.ID,
			"failed", failed,
			"allocations", len(d.InvestorDistributions),
			"paid", paidTotal(d).String(),
		)
		return d.Status, true, nil
	default:
		return d.Status, false, nil
	}
}

func paidTotal(d *model.Distribution) money.Money {
	var paid money.Money
	for _, a := range d.InvestorDistributions {
		if a.PaymentStatus == model.PaymentCompleted {
			paid += a.NetAmount
		}
	}
	return paid
}

// SweepResult summarises one pass over processing distributions.
type SweepResult struct {
	Checked        int
	Completed      int
	NeedsAttention int
}

// SweepCompletion re-evaluates the completion rule for every processing distribution.
// It never moves money.
func (s *PaymentService) SweepCompletion(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	ids, err := s.distRepo.ListIDsByStatus(ctx, model.StatusProcessing)
	if err != nil {
		return res, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		status, attention, err := s.refreshCompletion(ctx, id)
		if err != nil {
			s.log.ErrorContext(ctx, "completion check failed", "distribution_id", id, "error", err)
			continue
		}
		res.Checked++
		if status == model.StatusCompleted {
			res.Completed++
		}
		if attention {
			res.NeedsAttention++
		}
	}

	metrics.DistributionsNeedingAttention.Set(float64(res.NeedsAttention))
	return res, nil
}
