package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wilketob/amztec-mcp-server/internal/dispatch"
)

// InvocationService is the dispatch surface the handler needs.
type InvocationService interface {
	Dispatch(ctx context.Context, inv dispatch.Invocation) dispatch.Outcome
}

type toolsHandler struct {
	dispatcher InvocationService
}

func newToolsHandler(d InvocationService) *toolsHandler {
	return &toolsHandler{dispatcher: d}
}

// toolDescriptor describes one exposed tool for listing.
type toolDescriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Params      []string `json:"params"`
}

var toolCatalog = []toolDescriptor{
	{
		Name:        dispatch.ToolProductInfo,
		Description: "Fetch detailed listing data for a seller SKU.",
		Params:      []string{"sku", "tenant_id"},
	},
	{
		Name:        dispatch.ToolProductPricing,
		Description: "Fetch competitive pricing for a seller SKU.",
		Params:      []string{"sku", "tenant_id"},
	},
	{
		Name:        dispatch.ToolOptimizeListing,
		Description: "Fetch catalog data for an ASIN and bundle it for listing optimization.",
		Params:      []string{"asin", "focus_area", "tenant_id"},
	},
}

// callRequest is the body of POST /v1/tools/call.
type callRequest struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
	TenantID  string            `json:"tenant_id,omitempty"`
}

// callResponse wraps a successful invocation payload.
type callResponse struct {
	Result any `json:"result"`
}

// ListTools handles GET /v1/tools.
func (h *toolsHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": toolCatalog})
}

// CallTool handles POST /v1/tools/call.
func (h *toolsHandler) CallTool(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "name is required")
		return
	}

	tenant := req.TenantID
	if tenant == "" {
		tenant = req.Arguments["tenant_id"]
	}

	out := h.dispatcher.Dispatch(r.Context(), dispatch.Invocation{
		Tool:     req.Name,
		Params:   req.Arguments,
		TenantID: tenant,
	})
	if out.OK() {
		writeJSON(w, http.StatusOK, callResponse{Result: out.Payload})
		return
	}
	writeFailure(w, out.Failure)
}

// writeFailure maps a dispatch failure onto an HTTP error response.
func writeFailure(w http.ResponseWriter, f *dispatch.Failure) {
	status := http.StatusBadGateway
	switch f.Kind {
	case dispatch.KindBadRequest:
		status = http.StatusBadRequest
	case dispatch.KindUnknownTenant:
		status = http.StatusNotFound
	case dispatch.KindRateLimited:
		status = http.StatusTooManyRequests
		if f.RetryAfter > 0 {
			secs := int(f.RetryAfter / time.Second)
			if f.RetryAfter%time.Second != 0 {
				secs++
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
		}
	}

	writeJSON(w, status, errorEnvelope{
		Error: errorDetail{
			Code:      string(f.Kind),
			Message:   f.Message,
			Retriable: f.Retriable,
		},
	})
}
