package pagination

import (
	"math"

	"github.com/gin-gonic/gin"

	"github.com/citytransfer/platform/pkg/common"
)

const (
	// DefaultLimit is the page size used when the caller gives none.
	DefaultLimit = 20
	// MaxLimit caps the page size a caller can request.
	MaxLimit = 100
)

// Params are limit/offset paging values parsed from the query string.
type Params struct {
	Limit  int `form:"limit" json:"limit"`
	Offset int `form:"offset" json:"offset"`
}

// ParseParams reads limit/offset from the query string, clamping them to
// sane bounds. Malformed input falls back to defaults rather than erroring:
// paging is never worth failing a list request over.
func ParseParams(c *gin.Context) Params {
	p := Params{Limit: DefaultLimit}
	if err := c.ShouldBindQuery(&p); err != nil {
		return Params{Limit: DefaultLimit}
	}

	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// BuildMeta assembles the paging envelope for a list response.
func BuildMeta(limit, offset int, total int64) *common.Meta {
	meta := &common.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	}
	if limit > 0 {
		meta.TotalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return meta
}
