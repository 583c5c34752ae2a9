// Package integration bridges module ports without creating import cycles.
// Every adapter here implements a port declared by the consuming module and
// delegates to the owning module's service.
package integration

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian/internal/consolidation"
	"github.com/meridian-erp/meridian/internal/fulfillment"
	"github.com/meridian-erp/meridian/internal/inventory"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/procurement"
)

// RequestSource feeds submitted purchase-request lines into consolidation.
type RequestSource struct {
	procurement *procurement.Service
}

// NewRequestSource constructs the adapter.
func NewRequestSource(svc *procurement.Service) *RequestSource {
	return &RequestSource{procurement: svc}
}

// ListRequestLines implements consolidation.RequestSource.
func (a *RequestSource) ListRequestLines(ctx context.Context, filter consolidation.RequestLineFilter) ([]consolidation.RequestLine, error) {
	lines, err := a.procurement.ListRequestLines(ctx, procurement.RequestLineFilter{
		DateFrom:   filter.DateFrom,
		DateTo:     filter.DateTo,
		CategoryID: filter.CategoryID,
		CompanyID:  filter.CompanyID,
	})
	if err != nil {
		return nil, err
	}
	return mapRequestLines(lines), nil
}

// GetRequestLines implements consolidation.RequestSource.
func (a *RequestSource) GetRequestLines(ctx context.Context, ids []int64) ([]consolidation.RequestLine, error) {
	lines, err := a.procurement.GetRequestLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	return mapRequestLines(lines), nil
}

func mapRequestLines(lines []procurement.RequestLine) []consolidation.RequestLine {
	out := make([]consolidation.RequestLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, consolidation.RequestLine{
			ID:           line.ID,
			RequestID:    line.RequestID,
			ProductID:    line.ProductID,
			UoM:          line.UoM,
			Qty:          line.Qty,
			RequiredDate: line.RequiredDate,
			RequestDate:  line.RequestDate,
			Priority:     consolidation.Priority(line.Priority),
		})
	}
	return out
}

// VendorSource resolves sourcing suggestions for the classifier.
type VendorSource struct {
	procurement *procurement.Service
}

// NewVendorSource constructs the adapter.
func NewVendorSource(svc *procurement.Service) *VendorSource {
	return &VendorSource{procurement: svc}
}

// SuggestVendor implements consolidation.VendorSource.
func (a *VendorSource) SuggestVendor(ctx context.Context, productID int64) (consolidation.VendorSuggestion, bool, error) {
	suggestion, found, err := a.procurement.SuggestVendor(ctx, productID, time.Now().UTC())
	if err != nil || !found {
		return consolidation.VendorSuggestion{}, false, err
	}
	return consolidation.VendorSuggestion{
		VendorID:        suggestion.VendorID,
		UnitPrice:       suggestion.UnitPrice,
		AgreementLineID: suggestion.AgreementLineID,
	}, true, nil
}

// PlanBridge opens fulfillment plans for freshly created purchase orders.
type PlanBridge struct {
	fulfillment *fulfillment.Service
}

// NewPlanBridge constructs the adapter.
func NewPlanBridge(svc *fulfillment.Service) *PlanBridge {
	return &PlanBridge{fulfillment: svc}
}

// CreatePurchasePlan implements procurement.PlanPort.
func (a *PlanBridge) CreatePurchasePlan(ctx context.Context, req procurement.PlanRequest) error {
	_, err := a.fulfillment.CreatePlan(ctx, fulfillment.CreatePlanInput{
		RequestLineID: req.RequestLineID,
		SessionID:     req.SessionID,
		ProductID:     req.ProductID,
		PlannedQty:    req.PlannedQty,
		CompanyID:     req.CompanyID,
		WarehouseID:   req.WarehouseID,
		SourceType:    fulfillment.SourcePurchase,
		POLineIDs:     []int64{req.POLineID},
	})
	return err
}

// ReceiptHooks reconciles completed inbound movements with the fulfillment
// plans linked to the originating purchase order line.
type ReceiptHooks struct {
	fulfillment *fulfillment.Service
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewReceiptHooks constructs the adapter.
func NewReceiptHooks(svc *fulfillment.Service, metrics *observability.Metrics, logger *slog.Logger) *ReceiptHooks {
	return &ReceiptHooks{fulfillment: svc, metrics: metrics, logger: logger}
}

// OnMovementCompleted implements inventory.IntegrationHandler. Movements
// without a purchase order line are plain stock moves and ignored here.
func (h *ReceiptHooks) OnMovementCompleted(ctx context.Context, ev inventory.MovementCompletedEvent) {
	if ev.POLineID == 0 {
		return
	}
	if err := h.fulfillment.ApplyReceipt(ctx, ev.POLineID, ev.Qty, ev.MovementID); err != nil {
		h.logger.Error("receipt reconciliation failed",
			"movement_id", ev.MovementID, "po_line_id", ev.POLineID, "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveReceiptApplied()
	}
}

// MetricsHooks feeds workflow transitions into Prometheus.
type MetricsHooks struct {
	metrics *observability.Metrics
}

// NewMetricsHooks constructs the adapter.
func NewMetricsHooks(metrics *observability.Metrics) *MetricsHooks {
	return &MetricsHooks{metrics: metrics}
}

// OnSessionStateChanged implements consolidation.IntegrationHandler.
func (h *MetricsHooks) OnSessionStateChanged(_ context.Context, ev consolidation.SessionStateChangedEvent) {
	h.metrics.ObserveTransition(string(ev.From), string(ev.To))
}

// OnLineUpserted implements consolidation.IntegrationHandler. Line churn is
// not metered.
func (h *MetricsHooks) OnLineUpserted(context.Context, consolidation.LineUpsertedEvent) {}
