package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v4"

	"github.com/avadstore/storefront/internal/events"
	"github.com/avadstore/storefront/internal/logging"
	"github.com/avadstore/storefront/internal/payments"
	"github.com/avadstore/storefront/pkg/metrics"
)

// ConfirmHandler finishes a payment: confirm with the gateway, persist the
// gateway's verbatim response at the backend, then answer the browser.
// The (paymentKey, orderId, amount) triple is the idempotency key; a triple
// the ledger already holds as successful replays without a gateway call.
type ConfirmHandler struct {
	Gateway *payments.Client
	Ledger  *payments.Ledger
	Events  *events.Producer
	Backend string
	HTTP    *http.Client
}

func (h *ConfirmHandler) Confirm(c echo.Context) error {
	ctx := c.Request().Context()
	// Payment keys are secrets: only the order id and amount may be logged.
	l := logging.FromContext(ctx).With("handler", "payments.confirm")

	var req struct {
		PaymentKey string      `json:"paymentKey"`
		OrderID    flexString  `json:"orderId"`
		Amount     json.Number `json:"amount"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	amount, err := req.Amount.Int64()
	if err != nil || req.PaymentKey == "" || req.OrderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "paymentKey, orderId and amount are required"})
	}

	triple := payments.Triple{
		PaymentKey: req.PaymentKey,
		OrderID:    string(req.OrderID),
		Amount:     amount,
	}
	l = l.With("order_id", triple.OrderID, "amount", triple.Amount)

	if att, err := h.Ledger.FindSuccess(ctx, triple); err != nil {
		l.Error("ledger_lookup_error", "error", err)
	} else if att != nil {
		metrics.ConfirmTotal.WithLabelValues("replay").Inc()
		l.Info("confirm_replayed")
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, att.GatewayBody)
	}

	// A triple the gateway already confirmed but the backend never
	// acknowledged skips the gateway and re-attempts the forward from the
	// stored body.
	gatewayBody, err := h.confirmedBody(ctx, l, triple)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment confirmation failed"})
	}
	if gatewayBody == nil {
		res, err := h.Gateway.Confirm(ctx, triple)
		if err != nil {
			l.Error("gateway_confirm_error", "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment confirmation failed"})
		}
		if !res.OK() {
			metrics.ConfirmTotal.WithLabelValues("failure").Inc()
			if err := h.Ledger.Record(ctx, triple, payments.OutcomeFailure, res.Body); err != nil {
				l.Error("ledger_record_error", "error", err)
			}
			_ = h.Events.PublishEvent(ctx, events.TypePaymentFailed, triple.OrderID, map[string]any{
				"orderId": triple.OrderID,
				"amount":  triple.Amount,
				"status":  res.Status,
			})
			l.Warn("confirm_rejected", "status", res.Status)
			return c.Blob(res.Status, echo.MIMEApplicationJSON, res.Body)
		}
		gatewayBody = res.Body
	}

	// The full gateway body must reach the backend before the browser sees
	// success. A failed forward parks the confirmed body in the ledger and
	// answers 502 so the success page retries; only the backend ack turns
	// the triple into a recorded success.
	if err := h.persist(ctx, gatewayBody); err != nil {
		l.Error("confirm_persist_error", "error", err)
		metrics.ConfirmTotal.WithLabelValues("persist_failed").Inc()
		if err := h.Ledger.Record(ctx, triple, payments.OutcomePersistPending, gatewayBody); err != nil {
			l.Error("ledger_record_error", "error", err)
		}
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment confirmed but not yet persisted, retry"})
	}
	if err := h.Ledger.Record(ctx, triple, payments.OutcomeSuccess, gatewayBody); err != nil {
		l.Error("ledger_record_error", "error", err)
	}
	metrics.ConfirmTotal.WithLabelValues("success").Inc()
	_ = h.Events.PublishEvent(ctx, events.TypePaymentConfirmed, triple.OrderID, map[string]any{
		"orderId": triple.OrderID,
		"amount":  triple.Amount,
	})
	l.Info("confirm_success")

	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, gatewayBody)
}

// confirmedBody returns the stored gateway body of an earlier confirm whose
// backend forward is still outstanding, nil when the gateway has not
// confirmed this triple yet.
func (h *ConfirmHandler) confirmedBody(ctx context.Context, l *slog.Logger, triple payments.Triple) ([]byte, error) {
	pend, err := h.Ledger.FindPersistPending(ctx, triple)
	if err != nil {
		l.Error("ledger_lookup_error", "error", err)
		return nil, err
	}
	if pend == nil {
		return nil, nil
	}
	l.Info("confirm_persist_retry")
	return pend.GatewayBody, nil
}

func (h *ConfirmHandler) persist(ctx context.Context, gatewayBody []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Backend+"/api/payments/confirm", bytes.NewReader(gatewayBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	resp, err := h.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("backend confirm: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend confirm status %d", resp.StatusCode)
	}
	return nil
}
