package partners

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/citytransfer/platform/pkg/cache"
	"github.com/citytransfer/platform/pkg/common"
	"github.com/citytransfer/platform/pkg/httpclient"
	"github.com/citytransfer/platform/pkg/logger"
	"github.com/citytransfer/platform/pkg/resilience"
)

// Partner is the directory record for a partner company
type Partner struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Active         bool      `json:"active"`
	CommissionRate float64   `json:"commission_rate"`
}

// Client talks to the partner directory service. Lookups are cached in
// Redis and guarded by a circuit breaker, with the cached record serving
// as the degraded answer while the directory is down.
type Client struct {
	http    *httpclient.Client
	breaker *resilience.CircuitBreaker
	cache   *cache.Manager
}

// NewClient creates a new partner directory client. A nil cache disables
// caching, a nil breaker disables the circuit.
func NewClient(baseURL string, timeout time.Duration, breaker *resilience.CircuitBreaker, cacheManager *cache.Manager) *Client {
	return &Client{
		http:    httpclient.NewClient(baseURL, timeout),
		breaker: breaker,
		cache:   cacheManager,
	}
}

// GetPartner fetches a partner record, preferring the cache
func (c *Client) GetPartner(ctx context.Context, partnerID uuid.UUID) (*Partner, error) {
	key := cache.Keys.Partner(partnerID.String())

	if c.cache != nil {
		var cached Partner
		if err := c.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	partner, err := c.fetch(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, partner, cache.TTL.Long()); err != nil {
			logger.WarnContext(ctx, "failed to cache partner record",
				zap.String("partner_id", partnerID.String()), zap.Error(err))
		}
	}
	return partner, nil
}

// VerifyPartner checks that the partner exists and is active
func (c *Client) VerifyPartner(ctx context.Context, partnerID uuid.UUID) error {
	partner, err := c.GetPartner(ctx, partnerID)
	if err != nil {
		return err
	}
	if !partner.Active {
		return common.NewValidationError("partner is not active")
	}
	return nil
}

// DefaultCommissionRate returns the partner's contracted commission rate
func (c *Client) DefaultCommissionRate(ctx context.Context, partnerID uuid.UUID) (float64, error) {
	partner, err := c.GetPartner(ctx, partnerID)
	if err != nil {
		return 0, err
	}
	return partner.CommissionRate, nil
}

func (c *Client) fetch(ctx context.Context, partnerID uuid.UUID) (*Partner, error) {
	op := func(ctx context.Context) (interface{}, error) {
		body, err := c.http.Get(ctx, "/api/v1/partners/"+partnerID.String(), nil)
		if err != nil {
			if httpErr, ok := err.(*httpclient.HTTPError); ok && httpErr.StatusCode == http.StatusNotFound {
				return nil, common.NewNotFoundError("partner not found", err)
			}
			return nil, err
		}

		var partner Partner
		if err := json.Unmarshal(body, &partner); err != nil {
			return nil, fmt.Errorf("failed to decode partner record: %w", err)
		}
		return &partner, nil
	}

	var result interface{}
	var err error
	if c.breaker != nil {
		result, err = c.breaker.Execute(ctx, op)
	} else {
		result, err = op(ctx)
	}
	if err != nil {
		return nil, err
	}
	return result.(*Partner), nil
}
