package payouts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/models"
)

// ========================================
// INTERNAL MOCK (implements RepositoryInterface within this package)
// ========================================

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateWithEarnings(ctx context.Context, p *Payout, minTotal float64, feeFn func(total float64) float64) error {
	args := m.Called(ctx, p, minTotal, feeFn)
	return args.Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Payout, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payout), args.Error(1)
}

func (m *mockRepo) GetByReference(ctx context.Context, reference string) (*Payout, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payout), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, p *Payout, from PayoutStatus) error {
	args := m.Called(ctx, p, from)
	return args.Error(0)
}

func (m *mockRepo) ProcessWithEarnings(ctx context.Context, p *Payout, from PayoutStatus, paidAt time.Time) error {
	args := m.Called(ctx, p, from, paidAt)
	return args.Error(0)
}

func (m *mockRepo) ReleaseWithEarnings(ctx context.Context, p *Payout, from PayoutStatus) error {
	args := m.Called(ctx, p, from)
	return args.Error(0)
}

func (m *mockRepo) List(ctx context.Context, filters Filters, limit, offset int) ([]Payout, int64, error) {
	args := m.Called(ctx, filters, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]Payout), args.Get(1).(int64), args.Error(2)
}

func (m *mockRepo) GetStats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error) {
	args := m.Called(ctx, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Stats), args.Error(1)
}

// ========================================
// TEST HELPERS
// ========================================

func testPayout(status PayoutStatus) *Payout {
	now := time.Now().UTC()
	return &Payout{
		ID:            uuid.New(),
		Reference:     "PO-TEST2345678",
		PartnerID:     uuid.New(),
		TotalAmount:   100,
		FeeAmount:     1,
		NetAmount:     99,
		Currency:      "EUR",
		Method:        MethodBankTransfer,
		Status:        status,
		PeriodStart:   now.AddDate(0, -1, 0),
		PeriodEnd:     now,
		EarningsCount: 3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func requestFor(partnerID uuid.UUID) *RequestPayoutRequest {
	now := time.Now().UTC()
	return &RequestPayoutRequest{
		PartnerID:   partnerID,
		PeriodStart: now.AddDate(0, -1, 0),
		PeriodEnd:   now,
		Method:      MethodBankTransfer,
	}
}

func adminScope() AccessScope {
	return AccessScope{Role: models.RoleAdmin, UserID: uuid.New()}
}

func partnerScope(partnerID uuid.UUID) AccessScope {
	return AccessScope{Role: models.RolePartner, UserID: uuid.New(), PartnerID: &partnerID}
}

func appErrorCode(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := err.(*common.AppError)
	require.True(t, ok, "expected *common.AppError, got %T", err)
	return appErr.ErrorCode
}

// ========================================
// TESTS: Fee schedule
// ========================================

func TestComputeFee(t *testing.T) {
	tests := []struct {
		method PayoutMethod
		total  float64
		want   float64
	}{
		{MethodBankTransfer, 100, 1},
		{MethodPayPal, 100, 2.5},
		{MethodCard, 100, 2},
		{MethodWire, 100, 15},
		{MethodCheck, 100, 5},
		{MethodBankTransfer, 250.50, 2.51},
		{MethodWire, 10, 10}, // flat fee capped at total
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ComputeFee(tt.method, tt.total), "method %s total %.2f", tt.method, tt.total)
	}
}

// ========================================
// TESTS: RequestPayout
// ========================================

func TestRequestPayout(t *testing.T) {
	t.Run("partner request starts in requested", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil, nil, 0)
		partnerID := uuid.New()

		repo.On("CreateWithEarnings", mock.Anything, mock.MatchedBy(func(p *Payout) bool {
			return p.PartnerID == partnerID &&
				p.Status == StatusRequested &&
				p.RequestedAt != nil &&
				strings.HasPrefix(p.Reference, "PO-")
		}), 0.0, mock.Anything).Return(nil)

		payout, err := svc.RequestPayout(context.Background(), requestFor(uuid.New()), partnerScope(partnerID))

		require.NoError(t, err)
		// The caller-supplied partner id is ignored for partner scope.
		assert.Equal(t, partnerID, payout.PartnerID)
	})

	t.Run("admin create starts in pending", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil, nil, 0)
		partnerID := uuid.New()

		repo.On("CreateWithEarnings", mock.Anything, mock.MatchedBy(func(p *Payout) bool {
			return p.Status == StatusPending && p.RequestedAt == nil
		}), 0.0, mock.Anything).Return(nil)

		_, err := svc.RequestPayout(context.Background(), requestFor(partnerID), adminScope())
		require.NoError(t, err)
	})

	t.Run("overlapping period is a conflict", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil, nil, 0)
		repo.On("CreateWithEarnings", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(ErrPeriodOverlap)

		_, err := svc.RequestPayout(context.Background(), requestFor(uuid.New()), adminScope())

		require.Error(t, err)
		assert.Equal(t, common.CodeConflict, appErrorCode(t, err))
	})

	t.Run("empty period yields no eligible funds", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil, nil, 0)
		repo.On("CreateWithEarnings", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(ErrNoEligibleFunds)

		_, err := svc.RequestPayout(context.Background(), requestFor(uuid.New()), adminScope())

		require.Error(t, err)
		assert.Equal(t, common.CodeNoEligibleFunds, appErrorCode(t, err))
	})

	t.Run("rejects unknown method", func(t *testing.T) {
		svc := NewService(new(mockRepo), nil, nil, 0)
		req := requestFor(uuid.New())
		req.Method = PayoutMethod("crypto")

		_, err := svc.RequestPayout(context.Background(), req, adminScope())

		require.Error(t, err)
		assert.Equal(t, common.CodeValidation, appErrorCode(t, err))
	})

	t.Run("rejects inverted period", func(t *testing.T) {
		svc := NewService(new(mockRepo), nil, nil, 0)
		req := requestFor(uuid.New())
		req.PeriodStart, req.PeriodEnd = req.PeriodEnd, req.PeriodStart

		_, err := svc.RequestPayout(context.Background(), req, adminScope())

		require.Error(t, err)
		assert.Equal(t, common.CodeValidation, appErrorCode(t, err))
	})

	t.Run("customers cannot request payouts", func(t *testing.T) {
		svc := NewService(new(mockRepo), nil, nil, 0)

		_, err := svc.RequestPayout(context.Background(), requestFor(uuid.New()), AccessScope{Role: models.RoleCustomer, UserID: uuid.New()})

		require.Error(t, err)
		assert.Equal(t, common.CodeAuthorization, appErrorCode(t, err))
	})
}

// ========================================
// TESTS: Settlement state machine
// ========================================

func TestSettlementTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    PayoutStatus
		op      func(*Service, uuid.UUID) (*Payout, error)
		wantErr bool
	}{
		{"submit from pending", StatusPending, func(s *Service, id uuid.UUID) (*Payout, error) {
			return s.SubmitPayout(context.Background(), id)
		}, false},
		{"approve from requested", StatusRequested, func(s *Service, id uuid.UUID) (*Payout, error) {
			return s.ApprovePayout(context.Background(), id)
		}, false},
		{"approve from pending", StatusPending, func(s *Service, id uuid.UUID) (*Payout, error) {
			return s.ApprovePayout(context.Background(), id)
		}, true},
		{"complete from processing", StatusProcessing, func(s *Service, id uuid.UUID) (*Payout, error) {
			return s.CompletePayout(context.Background(), id)
		}, false},
		{"complete from approved", StatusApproved, func(s *Service, id uuid.UUID) (*Payout, error) {
			return s.CompletePayout(context.Background(), id)
		}, true},
		{"fail from approved", StatusApproved, func(s *Service, id uuid.UUID) (*Payout, error) {
			return s.FailPayout(context.Background(), id, "provider rejected")
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			svc := NewService(repo, nil, nil, 0)
			payout := testPayout(tt.from)
			repo.On("GetByID", mock.Anything, payout.ID).Return(payout, nil)
			repo.On("Update", mock.Anything, mock.AnythingOfType("*payouts.Payout"), tt.from).Return(nil)
			repo.On("ReleaseWithEarnings", mock.Anything, mock.AnythingOfType("*payouts.Payout"), tt.from).Return(nil)

			_, err := tt.op(svc, payout.ID)

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, common.CodeInvalidTransition, appErrorCode(t, err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestProcessPayout(t *testing.T) {
	t.Run("settles linked earnings", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil, nil, 0)
		payout := testPayout(StatusApproved)
		repo.On("GetByID", mock.Anything, payout.ID).Return(payout, nil)
		repo.On("ProcessWithEarnings", mock.Anything, mock.AnythingOfType("*payouts.Payout"), StatusApproved, mock.AnythingOfType("time.Time")).Return(nil)

		got, err := svc.ProcessPayout(context.Background(), payout.ID, "ext-123")

		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, got.Status)
		require.NotNil(t, got.ExternalTxnID)
		assert.Equal(t, "ext-123", *got.ExternalTxnID)
		require.NotNil(t, got.ProcessedAt)
		repo.AssertExpectations(t)
	})

	t.Run("stale payout surfaces a conflict", func(t *testing.T) {
		// The payout is read at approved but another request settles it
		// before our write lands. The guarded write refuses.
		repo := new(mockRepo)
		svc := NewService(repo, nil, nil, 0)
		payout := testPayout(StatusApproved)
		repo.On("GetByID", mock.Anything, payout.ID).Return(payout, nil)
		repo.On("ProcessWithEarnings", mock.Anything, mock.AnythingOfType("*payouts.Payout"), StatusApproved, mock.AnythingOfType("time.Time")).
			Return(ErrPayoutStale)

		_, err := svc.ProcessPayout(context.Background(), payout.ID, "ext-123")

		require.Error(t, err)
		assert.Equal(t, common.CodeConflict, appErrorCode(t, err))
	})

	t.Run("requires an external transaction id", func(t *testing.T) {
		svc := NewService(new(mockRepo), nil, nil, 0)

		_, err := svc.ProcessPayout(context.Background(), uuid.New(), "")

		require.Error(t, err)
		assert.Equal(t, common.CodeValidation, appErrorCode(t, err))
	})
}

func TestFailPayoutReleasesEarnings(t *testing.T) {
	repo := new(mockRepo)
	svc := NewService(repo, nil, nil, 0)
	payout := testPayout(StatusProcessing)
	repo.On("GetByID", mock.Anything, payout.ID).Return(payout, nil)
	repo.On("ReleaseWithEarnings", mock.Anything, mock.MatchedBy(func(p *Payout) bool {
		return p.ID == payout.ID && p.Status == StatusFailed
	}), StatusProcessing).Return(nil)

	got, err := svc.FailPayout(context.Background(), payout.ID, "provider rejected the transfer")

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	repo.AssertExpectations(t)
}

func TestCancelPayout(t *testing.T) {
	t.Run("cancels non-terminal and releases earnings", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil, nil, 0)
		payout := testPayout(StatusRequested)
		repo.On("GetByID", mock.Anything, payout.ID).Return(payout, nil)
		repo.On("ReleaseWithEarnings", mock.Anything, mock.MatchedBy(func(p *Payout) bool {
			return p.ID == payout.ID && p.Status == StatusCancelled
		}), StatusRequested).Return(nil)

		got, err := svc.CancelPayout(context.Background(), payout.ID)

		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		repo.AssertExpectations(t)
	})

	t.Run("terminal payout cannot be cancelled", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo, nil, nil, 0)
		payout := testPayout(StatusPaid)
		repo.On("GetByID", mock.Anything, payout.ID).Return(payout, nil)

		_, err := svc.CancelPayout(context.Background(), payout.ID)

		require.Error(t, err)
		assert.Equal(t, common.CodeInvalidTransition, appErrorCode(t, err))
	})
}

// ========================================
// TESTS: Access scope
// ========================================

func TestGetPayoutScope(t *testing.T) {
	repo := new(mockRepo)
	svc := NewService(repo, nil, nil, 0)
	payout := testPayout(StatusRequested)
	repo.On("GetByID", mock.Anything, payout.ID).Return(payout, nil)

	t.Run("owning partner reads", func(t *testing.T) {
		_, err := svc.GetPayout(context.Background(), payout.ID, partnerScope(payout.PartnerID))
		require.NoError(t, err)
	})

	t.Run("other partner is rejected", func(t *testing.T) {
		_, err := svc.GetPayout(context.Background(), payout.ID, partnerScope(uuid.New()))
		require.Error(t, err)
		assert.Equal(t, common.CodeAuthorization, appErrorCode(t, err))
	})
}

func TestListPayoutsForcesScope(t *testing.T) {
	repo := new(mockRepo)
	svc := NewService(repo, nil, nil, 0)
	partnerID := uuid.New()
	otherID := uuid.New()

	repo.On("List", mock.Anything, mock.MatchedBy(func(f Filters) bool {
		return f.PartnerID != nil && *f.PartnerID == partnerID
	}), 20, 0).Return([]Payout{}, int64(0), nil)

	_, _, err := svc.ListPayouts(context.Background(), Filters{PartnerID: &otherID}, 20, 0, partnerScope(partnerID))
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
