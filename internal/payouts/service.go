package payouts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/citytransfer/platform/internal/bookings"
	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/eventbus"
	"github.com/citytransfer/platform/pkg/logger"
	"github.com/citytransfer/platform/pkg/models"
	"github.com/citytransfer/platform/pkg/validation"
)

// AccessScope mirrors the caller's identity for authorization decisions
type AccessScope = bookings.AccessScope

// PartnerVerifier checks that a partner exists and may receive payouts.
// A nil verifier skips the check.
type PartnerVerifier interface {
	VerifyPartner(ctx context.Context, partnerID uuid.UUID) error
}

// allowedTransitions is the payout settlement state machine. Cancel is
// handled separately because it is legal from every non-terminal state.
var allowedTransitions = map[PayoutStatus][]PayoutStatus{
	StatusPending:    {StatusRequested},
	StatusRequested:  {StatusApproved},
	StatusApproved:   {StatusProcessing},
	StatusProcessing: {StatusPaid, StatusFailed},
}

func canTransition(from, to PayoutStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Service handles payout business logic
type Service struct {
	repo          RepositoryInterface
	partners      PartnerVerifier
	bus           EventPublisher
	minimumAmount float64
}

// NewService creates a new payout service
func NewService(repo RepositoryInterface, partners PartnerVerifier, bus EventPublisher, minimumAmount float64) *Service {
	return &Service{repo: repo, partners: partners, bus: bus, minimumAmount: minimumAmount}
}

// ========================================
// AGGREGATION
// ========================================

// RequestPayout batches the partner's eligible earnings for the period
// into a new payout. The whole aggregation is atomic: a concurrent
// request for an overlapping period either sees this payout or none.
func (s *Service) RequestPayout(ctx context.Context, req *RequestPayoutRequest, scope AccessScope) (*Payout, error) {
	partnerID := req.PartnerID
	switch scope.Role {
	case models.RolePartner:
		if scope.PartnerID == nil {
			return nil, common.NewAuthorizationError("partner scope required")
		}
		// Partners can only draw on their own ledger.
		partnerID = *scope.PartnerID
	case models.RoleAdmin:
		if partnerID == uuid.Nil {
			return nil, common.NewValidationError("partner_id is required")
		}
	default:
		return nil, common.NewAuthorizationError("insufficient permissions")
	}

	if !ValidMethod(req.Method) {
		return nil, common.NewValidationError("unknown payout method")
	}
	if err := validation.ValidatePeriod(req.PeriodStart, req.PeriodEnd); err != nil {
		return nil, common.NewValidationError(err.Error())
	}

	if s.partners != nil {
		if err := s.partners.VerifyPartner(ctx, partnerID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	payout := &Payout{
		ID:          uuid.New(),
		Reference:   generatePayoutReference(),
		PartnerID:   partnerID,
		Method:      req.Method,
		Status:      StatusPending,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		BankDetails: req.BankDetails,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if scope.Role == models.RolePartner {
		// Partner-initiated requests skip the administrative draft state.
		payout.Status = StatusRequested
		payout.RequestedAt = &now
	}

	err := s.repo.CreateWithEarnings(ctx, payout, s.minimumAmount, func(total float64) float64 {
		return ComputeFee(req.Method, total)
	})
	if err != nil {
		switch err {
		case ErrPeriodOverlap:
			return nil, common.NewConflictError("an active payout already covers part of this period")
		case ErrNoEligibleFunds:
			return nil, common.NewNoEligibleFundsError("no eligible earnings in the requested period")
		case ErrBelowMinimum:
			return nil, common.NewNoEligibleFundsError(
				fmt.Sprintf("eligible total is below the minimum payout amount of %.2f", s.minimumAmount))
		}
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	s.publish(ctx, eventbus.SubjectPayoutRequested, "payout.requested", eventbus.PayoutRequestedData{
		PayoutID:      payout.ID,
		Reference:     payout.Reference,
		PartnerID:     payout.PartnerID,
		Amount:        payout.TotalAmount,
		Fee:           payout.FeeAmount,
		NetAmount:     payout.NetAmount,
		Currency:      payout.Currency,
		Method:        string(payout.Method),
		EarningsCount: payout.EarningsCount,
		RequestedAt:   now,
	})

	return payout, nil
}

// ========================================
// SETTLEMENT TRANSITIONS
// ========================================

// SubmitPayout moves an administrative draft to requested
func (s *Service) SubmitPayout(ctx context.Context, id uuid.UUID) (*Payout, error) {
	return s.transition(ctx, id, StatusRequested, func(p *Payout, now time.Time) {
		p.RequestedAt = &now
	})
}

// ApprovePayout approves a requested payout
func (s *Service) ApprovePayout(ctx context.Context, id uuid.UUID) (*Payout, error) {
	return s.transition(ctx, id, StatusApproved, func(p *Payout, now time.Time) {
		p.ApprovedAt = &now
	})
}

// ProcessPayout hands the payout to the disbursement provider. As part
// of the same operation every linked earning flips to paid.
func (s *Service) ProcessPayout(ctx context.Context, id uuid.UUID, externalTxnID string) (*Payout, error) {
	if externalTxnID == "" {
		return nil, common.NewValidationError("external_txn_id is required")
	}

	payout, err := s.getPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	from := payout.Status
	if !canTransition(from, StatusProcessing) {
		return nil, common.NewInvalidTransitionError("payout", string(from), string(StatusProcessing))
	}

	now := time.Now()
	payout.Status = StatusProcessing
	payout.ExternalTxnID = &externalTxnID
	payout.ProcessedAt = &now
	payout.UpdatedAt = now

	// One transaction: the payout write and the linked earnings flipping
	// to paid land together or not at all.
	if err := s.repo.ProcessWithEarnings(ctx, payout, from, now); err != nil {
		return nil, s.writeError("process", err)
	}
	return payout, nil
}

// CompletePayout marks a processing payout as paid
func (s *Service) CompletePayout(ctx context.Context, id uuid.UUID) (*Payout, error) {
	payout, err := s.transition(ctx, id, StatusPaid, func(p *Payout, now time.Time) {
		p.PaidAt = &now
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventbus.SubjectPayoutPaid, "payout.paid", eventbus.PayoutPaidData{
		PayoutID:  payout.ID,
		Reference: payout.Reference,
		PartnerID: payout.PartnerID,
		NetAmount: payout.NetAmount,
		Currency:  payout.Currency,
		PaidAt:    *payout.PaidAt,
	})
	return payout, nil
}

// FailPayout records a failed disbursement and releases the linked
// earnings back to processed so a later payout can pick them up.
func (s *Service) FailPayout(ctx context.Context, id uuid.UUID, reason string) (*Payout, error) {
	if reason == "" {
		return nil, common.NewValidationError("failure reason is required")
	}

	payout, err := s.getPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	from := payout.Status
	if !canTransition(from, StatusFailed) {
		return nil, common.NewInvalidTransitionError("payout", string(from), string(StatusFailed))
	}

	now := time.Now()
	payout.Status = StatusFailed
	payout.FailureReason = &reason
	payout.UpdatedAt = now

	if err := s.repo.ReleaseWithEarnings(ctx, payout, from); err != nil {
		return nil, s.writeError("fail", err)
	}

	s.publish(ctx, eventbus.SubjectPayoutFailed, "payout.failed", eventbus.PayoutFailedData{
		PayoutID:  payout.ID,
		Reference: payout.Reference,
		PartnerID: payout.PartnerID,
		Reason:    reason,
		FailedAt:  now,
	})
	return payout, nil
}

// CancelPayout cancels a non-terminal payout and releases its earnings
func (s *Service) CancelPayout(ctx context.Context, id uuid.UUID) (*Payout, error) {
	payout, err := s.getPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	from := payout.Status
	if from.IsTerminal() {
		return nil, common.NewInvalidTransitionError("payout", string(from), string(StatusCancelled))
	}

	payout.Status = StatusCancelled
	payout.UpdatedAt = time.Now()
	if err := s.repo.ReleaseWithEarnings(ctx, payout, from); err != nil {
		return nil, s.writeError("cancel", err)
	}
	return payout, nil
}

// ========================================
// QUERIES
// ========================================

// GetPayout retrieves a payout, enforcing partner scope
func (s *Service) GetPayout(ctx context.Context, id uuid.UUID, scope AccessScope) (*Payout, error) {
	payout, err := s.getPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope.Role == models.RolePartner {
		if scope.PartnerID == nil || payout.PartnerID != *scope.PartnerID {
			return nil, common.NewAuthorizationError("you do not have access to this payout")
		}
	}
	return payout, nil
}

// ListPayouts retrieves payouts matching the filters. Partners are
// always restricted to their own payouts.
func (s *Service) ListPayouts(ctx context.Context, filters Filters, limit, offset int, scope AccessScope) ([]Payout, int64, error) {
	switch scope.Role {
	case models.RolePartner:
		if scope.PartnerID == nil {
			return nil, 0, common.NewAuthorizationError("partner scope required")
		}
		filters.PartnerID = scope.PartnerID
	case models.RoleAdmin:
		// unrestricted
	default:
		return nil, 0, common.NewAuthorizationError("insufficient permissions")
	}

	list, total, err := s.repo.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if list == nil {
		list = []Payout{}
	}
	return list, total, nil
}

// GetStats aggregates payouts, scoped to the partner for partner callers
func (s *Service) GetStats(ctx context.Context, partnerID *uuid.UUID, scope AccessScope) (*Stats, error) {
	if scope.Role == models.RolePartner {
		if scope.PartnerID == nil {
			return nil, common.NewAuthorizationError("partner scope required")
		}
		partnerID = scope.PartnerID
	}
	return s.repo.GetStats(ctx, partnerID)
}

// ========================================
// HELPERS
// ========================================

func (s *Service) getPayout(ctx context.Context, id uuid.UUID) (*Payout, error) {
	payout, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == ErrPayoutNotFound {
			return nil, common.NewNotFoundError("payout not found", err)
		}
		return nil, err
	}
	return payout, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, target PayoutStatus, stamp func(*Payout, time.Time)) (*Payout, error) {
	payout, err := s.getPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	from := payout.Status
	if !canTransition(from, target) {
		return nil, common.NewInvalidTransitionError("payout", string(from), string(target))
	}

	now := time.Now()
	payout.Status = target
	stamp(payout, now)
	payout.UpdatedAt = now

	if err := s.repo.Update(ctx, payout, from); err != nil {
		return nil, s.writeError("update", err)
	}
	return payout, nil
}

// writeError maps a guarded-write miss to a conflict. The payout was
// loaded just before the write, so a missing row means it moved in
// between, not that it never existed.
func (s *Service) writeError(op string, err error) error {
	if errors.Is(err, ErrPayoutStale) {
		return common.NewConflictError("payout was changed by a concurrent request")
	}
	return fmt.Errorf("failed to %s payout: %w", op, err)
}

func (s *Service) publish(ctx context.Context, subject, eventType string, data interface{}) {
	if s.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(eventType, "payouts", data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

const referenceCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generatePayoutReference() string {
	b := make([]byte, 10)
	max := big.NewInt(int64(len(referenceCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(int64(i) % int64(len(referenceCharset)))
		}
		b[i] = referenceCharset[n.Int64()]
	}
	return "PO-" + string(b)
}
