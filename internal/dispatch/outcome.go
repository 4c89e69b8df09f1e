package dispatch

import (
	"time"

	"github.com/wilketob/amztec-mcp-server/internal/normalize"
)

// Tool names, matching the original MCP tool surface.
const (
	ToolProductInfo     = "get_amazon_product_info"
	ToolProductPricing  = "get_amazon_product_pricing"
	ToolOptimizeListing = "optimize_product_listing"
)

// FailureKind is the closed set of failure classifications.
type FailureKind string

const (
	KindBadRequest    FailureKind = "bad_request"
	KindUnknownTenant FailureKind = "unknown_tenant"
	KindAuth          FailureKind = "auth_error"
	KindRateLimited   FailureKind = "rate_limited"
	KindUpstream      FailureKind = "upstream_error"
	KindMalformed     FailureKind = "malformed_upstream_data"
)

// Invocation is one tool call: operation name, flat parameters, and an
// optional tenant (empty means the default tenant).
type Invocation struct {
	Tool     string
	Params   map[string]string
	TenantID string
}

// Failure is the typed error surface handed back through the tool protocol.
type Failure struct {
	Kind       FailureKind   `json:"kind"`
	Message    string        `json:"message"`
	Retriable  bool          `json:"retriable"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Status     int           `json:"status,omitempty"`
}

// Outcome is the tagged result of an invocation: exactly one of Payload or
// Failure is set.
type Outcome struct {
	Payload any
	Failure *Failure
}

func (o Outcome) OK() bool { return o.Failure == nil }

func success(payload any) Outcome { return Outcome{Payload: payload} }

func failure(f Failure) Outcome { return Outcome{Failure: &f} }

// ListingBundle is the structured payload of optimize_product_listing:
// normalized product data plus the raw sections, for external optimization
// logic to consume. No analysis happens here.
type ListingBundle struct {
	ASIN            string                  `json:"asin"`
	Focus           string                  `json:"focus"`
	Product         normalize.ProductRecord `json:"current_data"`
	Raw             map[string]any          `json:"raw"`
	AnalysisRequest string                  `json:"analysis_request"`
}
