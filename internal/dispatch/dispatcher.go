// Package dispatch runs a tool invocation through its full lifecycle:
// credential resolution, token acquisition, rate admission, the upstream
// call, and normalization into a typed outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wilketob/amztec-mcp-server/internal/credential"
	"github.com/wilketob/amztec-mcp-server/internal/metering"
	"github.com/wilketob/amztec-mcp-server/internal/normalize"
	"github.com/wilketob/amztec-mcp-server/internal/spapi"
	"github.com/wilketob/amztec-mcp-server/internal/token"
)

// Limiter is the admission interface the dispatcher needs.
type Limiter interface {
	Admit(tenant, operation string) (ok bool, retryAfter time.Duration)
}

// Caller performs upstream calls; implemented by the spapi client.
type Caller interface {
	Call(ctx context.Context, cs credential.Set, tok token.AccessToken, op spapi.Operation, params map[string]string) (map[string]any, spapi.CallStats, error)
}

// MeteringRecorder records one usage event per invocation.
type MeteringRecorder interface {
	Record(ev metering.Event)
}

// MetricsRecorder is an optional sink for dispatcher metrics.
type MetricsRecorder interface {
	IncInvocations(tenant, operation, outcome string)
	ObserveUpstream(operation string, seconds float64, attempts int)
	IncRateLimitRejection(tenant, operation string)
}

// Dispatcher wires the pipeline together. Safe for concurrent use; no
// invocation blocks another except at the per-tenant synchronization points
// inside its dependencies.
type Dispatcher struct {
	creds       *credential.Store
	tokens      *token.Manager
	limiter     Limiter
	client      Caller
	waitCeiling time.Duration

	collector MeteringRecorder
	metrics   MetricsRecorder

	sleep func(ctx context.Context, d time.Duration) error // injectable for tests
}

// New creates a Dispatcher. collector and metrics may be nil.
func New(creds *credential.Store, tokens *token.Manager, limiter Limiter, client Caller, waitCeiling time.Duration) *Dispatcher {
	return &Dispatcher{
		creds:       creds,
		tokens:      tokens,
		limiter:     limiter,
		client:      client,
		waitCeiling: waitCeiling,
		sleep:       sleepCtx,
	}
}

// SetCollector sets the optional usage-event recorder.
func (d *Dispatcher) SetCollector(c MeteringRecorder) { d.collector = c }

// SetMetrics sets the optional metrics recorder.
func (d *Dispatcher) SetMetrics(m MetricsRecorder) { d.metrics = m }

// Dispatch executes one invocation and always returns a typed outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) Outcome {
	start := time.Now()

	op, err := operationFor(inv)
	if err != nil {
		out := failure(Failure{Kind: KindBadRequest, Message: err.Error()})
		d.record(inv, op, start, spapi.CallStats{}, out)
		return out
	}

	out, stats := d.run(ctx, inv, op)
	d.record(inv, op, start, stats, out)
	return out
}

func (d *Dispatcher) run(ctx context.Context, inv Invocation, op spapi.Operation) (Outcome, spapi.CallStats) {
	// Resolving.
	cs, err := d.creds.Resolve(inv.TenantID)
	if err != nil {
		return failure(Failure{Kind: KindUnknownTenant, Message: err.Error()}), spapi.CallStats{}
	}

	// Authenticating.
	tok, err := d.tokens.EnsureToken(ctx, cs)
	if err != nil {
		return d.classify(err), spapi.CallStats{}
	}

	// RateGating: wait at most once, bounded by the ceiling.
	ok, retryAfter := d.limiter.Admit(cs.TenantID, string(op))
	if !ok {
		if retryAfter > d.waitCeiling {
			if d.metrics != nil {
				d.metrics.IncRateLimitRejection(cs.TenantID, string(op))
			}
			return rateLimited(retryAfter), spapi.CallStats{}
		}
		if err := d.sleep(ctx, retryAfter); err != nil {
			return failure(Failure{Kind: KindUpstream, Message: "cancelled while waiting for rate admission"}), spapi.CallStats{}
		}
		if ok, retryAfter = d.limiter.Admit(cs.TenantID, string(op)); !ok {
			if d.metrics != nil {
				d.metrics.IncRateLimitRejection(cs.TenantID, string(op))
			}
			return rateLimited(retryAfter), spapi.CallStats{}
		}
	}

	// Calling.
	raw, stats, err := d.client.Call(ctx, cs, tok, op, inv.Params)
	if err != nil {
		return d.classify(err), stats
	}

	// Normalizing.
	out, err := d.shape(inv, op, raw)
	if err != nil {
		slog.Error("upstream payload failed normalization",
			"tenant", cs.TenantID, "operation", string(op), "error", err)
		return failure(Failure{Kind: KindMalformed, Message: err.Error()}), stats
	}
	return out, stats
}

// shape turns the raw payload into the tool's typed result.
func (d *Dispatcher) shape(inv Invocation, op spapi.Operation, raw map[string]any) (Outcome, error) {
	switch op {
	case spapi.OpCatalog:
		rec, err := normalize.Product(raw)
		if err != nil {
			return Outcome{}, err
		}
		return success(rec), nil

	case spapi.OpPricing:
		rec, err := normalize.Pricing(raw)
		if err != nil {
			return Outcome{}, err
		}
		return success(rec), nil

	case spapi.OpListing:
		rec, err := normalize.CatalogItem(raw)
		if err != nil {
			return Outcome{}, err
		}
		focus := inv.Params["focus_area"]
		if focus == "" {
			focus = "all"
		}
		return success(ListingBundle{
			ASIN:    rec.ASIN,
			Focus:   focus,
			Product: rec,
			Raw:     raw,
			AnalysisRequest: fmt.Sprintf(
				"Analyze this product listing and provide optimization suggestions focusing on %s. Consider SEO keywords, clarity, and conversion.", focus),
		}), nil
	}
	return Outcome{}, fmt.Errorf("unhandled operation %q", op)
}

// classify maps dependency errors onto the failure taxonomy.
func (d *Dispatcher) classify(err error) Outcome {
	var authErr *token.AuthError
	if errors.As(err, &authErr) {
		return failure(Failure{Kind: KindAuth, Message: authErr.Error(), Status: authErr.Status})
	}
	var ue *spapi.UpstreamError
	if errors.As(err, &ue) {
		return failure(Failure{Kind: KindUpstream, Message: ue.Error(), Retriable: ue.Retriable, Status: ue.Status})
	}
	if errors.Is(err, credential.ErrUnknownTenant) {
		return failure(Failure{Kind: KindUnknownTenant, Message: err.Error()})
	}
	return failure(Failure{Kind: KindUpstream, Message: err.Error()})
}

func rateLimited(retryAfter time.Duration) Outcome {
	return failure(Failure{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("rate limited, retry after %s", retryAfter.Round(time.Millisecond)),
		Retriable:  true,
		RetryAfter: retryAfter,
	})
}

// operationFor validates the invocation and maps the tool name to its
// upstream operation kind.
func operationFor(inv Invocation) (spapi.Operation, error) {
	switch inv.Tool {
	case ToolProductInfo:
		if inv.Params["sku"] == "" {
			return "", errors.New("sku is required")
		}
		return spapi.OpCatalog, nil
	case ToolProductPricing:
		if inv.Params["sku"] == "" {
			return "", errors.New("sku is required")
		}
		return spapi.OpPricing, nil
	case ToolOptimizeListing:
		if inv.Params["asin"] == "" {
			return "", errors.New("asin is required")
		}
		return spapi.OpListing, nil
	default:
		return "", fmt.Errorf("unknown tool %q", inv.Tool)
	}
}

func (d *Dispatcher) record(inv Invocation, op spapi.Operation, start time.Time, stats spapi.CallStats, out Outcome) {
	outcome := "success"
	if !out.OK() {
		outcome = string(out.Failure.Kind)
	}
	tenant := inv.TenantID
	if tenant == "" {
		tenant = credential.DefaultTenant
	}

	if d.metrics != nil {
		d.metrics.IncInvocations(tenant, string(op), outcome)
		if stats.Attempts > 0 {
			d.metrics.ObserveUpstream(string(op), time.Since(start).Seconds(), stats.Attempts)
		}
	}
	if d.collector != nil {
		d.collector.Record(metering.Event{
			TenantID:       tenant,
			Tool:           inv.Tool,
			Operation:      string(op),
			Outcome:        outcome,
			UpstreamStatus: stats.Status,
			Attempts:       stats.Attempts,
			LatencyMs:      time.Since(start).Milliseconds(),
			Timestamp:      time.Now().UTC(),
		})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
