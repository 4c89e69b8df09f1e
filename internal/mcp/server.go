// Package mcp exposes the gateway's tools over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilketob/amztec-mcp-server/internal/dispatch"
)

// Dispatcher is the invocation surface the MCP server needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv dispatch.Invocation) dispatch.Outcome
}

const serverName = "amztec-mcp-server"

// productInfoInput is the argument shape for get_amazon_product_info.
type productInfoInput struct {
	SKU      string `json:"sku" jsonschema:"seller SKU of the product"`
	TenantID string `json:"tenant_id,omitempty" jsonschema:"credential scope, omit for the default tenant"`
}

// pricingInput is the argument shape for get_amazon_product_pricing.
type pricingInput struct {
	SKU      string `json:"sku" jsonschema:"seller SKU of the product"`
	TenantID string `json:"tenant_id,omitempty" jsonschema:"credential scope, omit for the default tenant"`
}

// optimizeInput is the argument shape for optimize_product_listing.
type optimizeInput struct {
	ASIN      string `json:"asin" jsonschema:"ASIN of the listing to optimize"`
	FocusArea string `json:"focus_area,omitempty" jsonschema:"optimization focus: title, features, description or all"`
	TenantID  string `json:"tenant_id,omitempty" jsonschema:"credential scope, omit for the default tenant"`
}

// NewServer builds an MCP server exposing the three tools.
func NewServer(d Dispatcher, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        dispatch.ToolProductInfo,
		Description: "Get detailed product information for a seller SKU from the Amazon Selling Partner API.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in productInfoInput) (*mcp.CallToolResult, any, error) {
		return invoke(ctx, d, dispatch.Invocation{
			Tool:     dispatch.ToolProductInfo,
			Params:   map[string]string{"sku": in.SKU},
			TenantID: in.TenantID,
		})
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        dispatch.ToolProductPricing,
		Description: "Get competitive pricing for a seller SKU from the Amazon Selling Partner API.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in pricingInput) (*mcp.CallToolResult, any, error) {
		return invoke(ctx, d, dispatch.Invocation{
			Tool:     dispatch.ToolProductPricing,
			Params:   map[string]string{"sku": in.SKU},
			TenantID: in.TenantID,
		})
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        dispatch.ToolOptimizeListing,
		Description: "Fetch catalog data for an ASIN and bundle it with an optimization request for the given focus area.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in optimizeInput) (*mcp.CallToolResult, any, error) {
		return invoke(ctx, d, dispatch.Invocation{
			Tool:     dispatch.ToolOptimizeListing,
			Params:   map[string]string{"asin": in.ASIN, "focus_area": in.FocusArea},
			TenantID: in.TenantID,
		})
	})

	return srv
}

// NewHTTPHandler wraps the server in the streamable HTTP transport.
func NewHTTPHandler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

// invoke runs one dispatch and converts the outcome into a tool result.
// Failures become IsError results rather than protocol errors so that the
// calling model sees the failure text.
func invoke(ctx context.Context, d Dispatcher, inv dispatch.Invocation) (*mcp.CallToolResult, any, error) {
	out := d.Dispatch(ctx, inv)
	if !out.OK() {
		f := out.Failure
		msg := fmt.Sprintf("%s: %s", f.Kind, f.Message)
		if f.Kind == dispatch.KindRateLimited && f.RetryAfter > 0 {
			msg = fmt.Sprintf("%s (retry after %s)", msg, f.RetryAfter)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: msg}},
			IsError: true,
		}, nil, nil
	}

	body, err := json.Marshal(out.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, nil, nil
}
