package earnings

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
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

const (
	defaultCurrency       = "EUR"
	defaultCommissionRate = 20.0
)

// RateSource resolves the commission rate to apply for a partner.
// A nil source falls back to the platform default.
type RateSource interface {
	DefaultCommissionRate(ctx context.Context, partnerID uuid.UUID) (float64, error)
}

// AccessScope mirrors the caller's identity for authorization decisions
type AccessScope = bookings.AccessScope

// Service handles earnings business logic
type Service struct {
	repo  RepositoryInterface
	rates RateSource
	bus   EventPublisher
}

// NewService creates a new earnings service
func NewService(repo RepositoryInterface, rates RateSource, bus EventPublisher) *Service {
	return &Service{repo: repo, rates: rates, bus: bus}
}

// ========================================
// LEDGER OPERATIONS
// ========================================

// CreateEarning records a new ledger entry
func (s *Service) CreateEarning(ctx context.Context, req *CreateEarningRequest) (*Earning, error) {
	if err := validateMonetary(req.GrossAmount, req.CommissionRate, req.PlatformFee, req.TaxAmount); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return nil, common.NewValidationError("currency must be a 3-letter ISO code")
	}

	commission := round2(req.GrossAmount * req.CommissionRate / 100)
	net := round2(req.GrossAmount - commission - req.PlatformFee - req.TaxAmount)
	if net < 0 {
		return nil, common.NewValidationError("deductions exceed gross amount")
	}

	earnedAt := time.Now()
	if req.EarnedAt != nil {
		earnedAt = *req.EarnedAt
	}

	now := time.Now()
	earning := &Earning{
		ID:               uuid.New(),
		Reference:        generateEarningReference(),
		PartnerID:        req.PartnerID,
		BookingID:        req.BookingID,
		PaymentID:        req.PaymentID,
		Type:             req.Type,
		GrossAmount:      req.GrossAmount,
		CommissionRate:   req.CommissionRate,
		CommissionAmount: commission,
		NetEarnings:      net,
		PlatformFee:      req.PlatformFee,
		TaxAmount:        req.TaxAmount,
		Currency:         currency,
		Status:           StatusPending,
		EarnedAt:         earnedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, earning); err != nil {
		return nil, fmt.Errorf("failed to create earning: %w", err)
	}

	s.publish(ctx, eventbus.SubjectEarningCreated, "earning.created", eventbus.EarningCreatedData{
		EarningID:   earning.ID,
		Reference:   earning.Reference,
		PartnerID:   earning.PartnerID,
		BookingID:   earning.BookingID,
		Type:        string(earning.Type),
		NetEarnings: earning.NetEarnings,
		Currency:    earning.Currency,
	})

	return earning, nil
}

// GetEarning retrieves an earning, enforcing partner scope
func (s *Service) GetEarning(ctx context.Context, id uuid.UUID, scope AccessScope) (*Earning, error) {
	earning, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == ErrEarningNotFound {
			return nil, common.NewNotFoundError("earning not found", err)
		}
		return nil, err
	}
	if err := authorizeEarningRead(earning, scope); err != nil {
		return nil, err
	}
	return earning, nil
}

// UpdateEarning patches a mutable earning. Paid earnings are immutable
// unless the caller performs an administrative unwind.
func (s *Service) UpdateEarning(ctx context.Context, id uuid.UUID, req *UpdateEarningRequest, scope AccessScope) (*Earning, error) {
	if scope.Role != models.RoleAdmin {
		return nil, common.NewAuthorizationError("only administrators can modify earnings")
	}

	earning, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == ErrEarningNotFound {
			return nil, common.NewNotFoundError("earning not found", err)
		}
		return nil, err
	}
	from := earning.Status

	if earning.Status == StatusPaid {
		if !req.AdminUnwind {
			return nil, common.NewImmutableRecordError("paid earnings cannot be modified")
		}
		// Unwind reverts the record to processed so a corrected payout
		// can pick it up again.
		earning.Status = StatusProcessed
		earning.PaidAt = nil
		earning.PayoutID = nil
	}

	if req.Type != nil {
		earning.Type = *req.Type
	}
	if req.GrossAmount != nil {
		earning.GrossAmount = *req.GrossAmount
	}
	if req.CommissionRate != nil {
		earning.CommissionRate = *req.CommissionRate
	}
	if req.PlatformFee != nil {
		earning.PlatformFee = *req.PlatformFee
	}
	if req.TaxAmount != nil {
		earning.TaxAmount = *req.TaxAmount
	}
	if err := validateMonetary(earning.GrossAmount, earning.CommissionRate, earning.PlatformFee, earning.TaxAmount); err != nil {
		return nil, err
	}

	earning.CommissionAmount = round2(earning.GrossAmount * earning.CommissionRate / 100)
	earning.NetEarnings = round2(earning.GrossAmount - earning.CommissionAmount - earning.PlatformFee - earning.TaxAmount)
	if earning.NetEarnings < 0 {
		return nil, common.NewValidationError("deductions exceed gross amount")
	}

	if req.Status != nil {
		if err := applyStatusChange(earning, *req.Status); err != nil {
			return nil, err
		}
	}

	earning.UpdatedAt = time.Now()
	// The write is guarded on the status we read at so a concurrent
	// transition cannot be silently overwritten.
	if err := s.repo.Update(ctx, earning, from); err != nil {
		if errors.Is(err, ErrEarningStale) {
			return nil, common.NewConflictError("earning was changed by a concurrent request")
		}
		return nil, fmt.Errorf("failed to update earning: %w", err)
	}
	return earning, nil
}

// DeleteEarning removes an earning. Paid earnings are immutable.
func (s *Service) DeleteEarning(ctx context.Context, id uuid.UUID, scope AccessScope) error {
	if scope.Role != models.RoleAdmin {
		return common.NewAuthorizationError("only administrators can delete earnings")
	}

	earning, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == ErrEarningNotFound {
			return common.NewNotFoundError("earning not found", err)
		}
		return err
	}
	if earning.Status == StatusPaid {
		return common.NewImmutableRecordError("paid earnings cannot be deleted")
	}
	if earning.PayoutID != nil {
		return common.NewConflictError("earning is linked to a payout")
	}
	if err := s.repo.Delete(ctx, id, earning.Status); err != nil {
		if errors.Is(err, ErrEarningStale) {
			return common.NewConflictError("earning was changed by a concurrent request")
		}
		return fmt.Errorf("failed to delete earning: %w", err)
	}
	return nil
}

// ProcessEarning moves a pending earning to processed, making it
// eligible for payout.
func (s *Service) ProcessEarning(ctx context.Context, id uuid.UUID) (*Earning, error) {
	earning, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == ErrEarningNotFound {
			return nil, common.NewNotFoundError("earning not found", err)
		}
		return nil, err
	}
	if earning.Status != StatusPending {
		return nil, common.NewInvalidTransitionError("earning", string(earning.Status), string(StatusProcessed))
	}

	now := time.Now()
	earning.Status = StatusProcessed
	earning.ProcessedAt = &now
	earning.UpdatedAt = now
	if err := s.repo.Update(ctx, earning, StatusPending); err != nil {
		if errors.Is(err, ErrEarningStale) {
			return nil, common.NewConflictError("earning was changed by a concurrent request")
		}
		return nil, fmt.Errorf("failed to process earning: %w", err)
	}
	return earning, nil
}

// ListEarnings retrieves earnings matching the filters. Partners are
// always restricted to their own ledger.
func (s *Service) ListEarnings(ctx context.Context, filters Filters, limit, offset int, scope AccessScope) ([]Earning, int64, error) {
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
		list = []Earning{}
	}
	return list, total, nil
}

// GetStats aggregates the ledger, scoped to the partner for partner callers
func (s *Service) GetStats(ctx context.Context, partnerID *uuid.UUID, scope AccessScope) (*Stats, error) {
	if scope.Role == models.RolePartner {
		if scope.PartnerID == nil {
			return nil, common.NewAuthorizationError("partner scope required")
		}
		partnerID = scope.PartnerID
	}
	return s.repo.GetStats(ctx, partnerID)
}

// GetPartnerTotals returns one partner's balance position
func (s *Service) GetPartnerTotals(ctx context.Context, partnerID uuid.UUID, scope AccessScope) (*PartnerTotals, error) {
	if scope.Role == models.RolePartner {
		if scope.PartnerID == nil || *scope.PartnerID != partnerID {
			return nil, common.NewAuthorizationError("you can only view your own totals")
		}
	}
	return s.repo.GetPartnerTotals(ctx, partnerID)
}

// ========================================
// HELPERS
// ========================================

func validateMonetary(gross, rate, platformFee, tax float64) error {
	if gross <= 0 {
		return common.NewValidationError("gross amount must be positive")
	}
	if err := validation.ValidateAmount(gross); err != nil {
		return common.NewValidationError(err.Error())
	}
	if rate < 0 || rate > 100 {
		return common.NewValidationError("commission rate must be between 0 and 100")
	}
	if platformFee < 0 {
		return common.NewValidationError("platform fee cannot be negative")
	}
	if tax < 0 {
		return common.NewValidationError("tax amount cannot be negative")
	}
	return nil
}

func applyStatusChange(earning *Earning, target EarningStatus) error {
	if target == earning.Status {
		return nil
	}
	switch {
	case earning.Status == StatusPending && target == StatusProcessed:
		now := time.Now()
		earning.ProcessedAt = &now
	case earning.Status == StatusPending && target == StatusCancelled:
	case earning.Status == StatusProcessed && target == StatusCancelled:
		if earning.PayoutID != nil {
			return common.NewConflictError("earning is linked to a payout")
		}
	default:
		// paid is only ever set by the payout flow
		return common.NewInvalidTransitionError("earning", string(earning.Status), string(target))
	}
	earning.Status = target
	return nil
}

func authorizeEarningRead(earning *Earning, scope AccessScope) error {
	switch scope.Role {
	case models.RoleAdmin:
		return nil
	case models.RolePartner:
		if scope.PartnerID != nil && earning.PartnerID == *scope.PartnerID {
			return nil
		}
	}
	return common.NewAuthorizationError("you do not have access to this earning")
}

func (s *Service) publish(ctx context.Context, subject, eventType string, data interface{}) {
	if s.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(eventType, "earnings", data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

const referenceCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateEarningReference() string {
	b := make([]byte, 10)
	max := big.NewInt(int64(len(referenceCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(int64(i) % int64(len(referenceCharset)))
		}
		b[i] = referenceCharset[n.Int64()]
	}
	return "ERN-" + string(b)
}
