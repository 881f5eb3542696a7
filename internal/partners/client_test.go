package partners

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citytransfer/platform/pkg/common"
)

func directoryServer(t *testing.T, partners map[uuid.UUID]Partner) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for id, p := range partners {
			if r.URL.Path == "/api/v1/partners/"+id.String() {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(p)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
}

func TestGetPartner(t *testing.T) {
	partnerID := uuid.New()
	server := directoryServer(t, map[uuid.UUID]Partner{
		partnerID: {ID: partnerID, Name: "Harbour Transfers", Active: true, CommissionRate: 18},
	})
	defer server.Close()

	client := NewClient(server.URL, 2*time.Second, nil, nil)

	partner, err := client.GetPartner(context.Background(), partnerID)

	require.NoError(t, err)
	assert.Equal(t, "Harbour Transfers", partner.Name)
	assert.Equal(t, 18.0, partner.CommissionRate)
}

func TestVerifyPartner(t *testing.T) {
	activeID := uuid.New()
	inactiveID := uuid.New()
	server := directoryServer(t, map[uuid.UUID]Partner{
		activeID:   {ID: activeID, Name: "Harbour Transfers", Active: true},
		inactiveID: {ID: inactiveID, Name: "Dormant Cars", Active: false},
	})
	defer server.Close()

	client := NewClient(server.URL, 2*time.Second, nil, nil)

	t.Run("active partner verifies", func(t *testing.T) {
		require.NoError(t, client.VerifyPartner(context.Background(), activeID))
	})

	t.Run("inactive partner is rejected", func(t *testing.T) {
		err := client.VerifyPartner(context.Background(), inactiveID)
		require.Error(t, err)
		appErr, ok := err.(*common.AppError)
		require.True(t, ok)
		assert.Equal(t, common.CodeValidation, appErr.ErrorCode)
	})

	t.Run("unknown partner is not found", func(t *testing.T) {
		err := client.VerifyPartner(context.Background(), uuid.New())
		require.Error(t, err)
		appErr, ok := err.(*common.AppError)
		require.True(t, ok)
		assert.Equal(t, common.CodeNotFound, appErr.ErrorCode)
	})
}

func TestDefaultCommissionRate(t *testing.T) {
	partnerID := uuid.New()
	server := directoryServer(t, map[uuid.UUID]Partner{
		partnerID: {ID: partnerID, Active: true, CommissionRate: 22.5},
	})
	defer server.Close()

	client := NewClient(server.URL, 2*time.Second, nil, nil)

	rate, err := client.DefaultCommissionRate(context.Background(), partnerID)

	require.NoError(t, err)
	assert.Equal(t, 22.5, rate)
}
