package earnings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEarningFiltersSearch(t *testing.T) {
	where, args := buildEarningFilters(Filters{Search: "BK-7Q"})

	// Free-text search covers the earning reference and the linked
	// booking's reference; anything else stays out of the clause.
	assert.Contains(t, where, "reference ILIKE $1")
	assert.Contains(t, where, "booking_id IN (SELECT id FROM bookings WHERE reference ILIKE $1)")
	assert.NotContains(t, where, "currency")
	assert.Equal(t, []interface{}{"%BK-7Q%"}, args)
}

func TestBuildEarningFiltersEmpty(t *testing.T) {
	where, args := buildEarningFilters(Filters{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}
