package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/tipster-ledger/internal/config"
	"github.com/richardliu001/tipster-ledger/internal/repo"
	"github.com/richardliu001/tipster-ledger/internal/service"
	"github.com/richardliu001/tipster-ledger/internal/webhook"
	"go.uber.org/zap"
)

// Alerter receives settlement problems that need an operator.
type Alerter interface {
	RecordAlert(ctx context.Context, a service.Alert)
}

// WebhookHandler is the payment provider callback endpoint.
//
// Response policy: unverified signatures get 401 unless configured to ack;
// verified events that cannot be applied (unknown type, unknown account or
// reference, bad payload) get 200 plus an alert, since redelivery would not
// change the outcome; store failures and timeouts get 500 so the provider
// redelivers, which settlement tolerates because it is idempotent.
type WebhookHandler struct {
	verifier   *webhook.Verifier
	dispatcher *webhook.Dispatcher
	alerts     Alerter
	cfg        config.WebhookConfig
	log        *zap.SugaredLogger
}

func NewWebhookHandler(v *webhook.Verifier, d *webhook.Dispatcher, alerts Alerter, cfg config.WebhookConfig, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{verifier: v, dispatcher: d, alerts: alerts, cfg: cfg, log: log}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	if h.cfg.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes)
	}
	body, err := c.GetRawData()
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !h.verifier.Verify(body, c.GetHeader(h.cfg.SignatureHeader)) {
		h.log.Warnw("webhook rejected",
			"error", webhook.ErrSignatureInvalid, "remote_ip", c.ClientIP(), "policy", h.cfg.OnUnverified)
		if h.cfg.OnUnverified == config.ActionAck {
			c.Status(http.StatusOK)
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": webhook.ErrSignatureInvalid.Error()})
		return
	}

	ctx := c.Request.Context()
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}
	typ, err := h.dispatcher.Dispatch(ctx, body)
	ref := webhook.Reference(body)

	switch {
	case err == nil:
		h.log.Infow("webhook processed", "event", typ, "reference", ref)
		c.Status(http.StatusOK)
	case errors.Is(err, webhook.ErrUnrecognizedEventType):
		h.log.Infow("unhandled webhook event", "event", typ, "reference", ref, "policy", h.cfg.OnUnhandled)
		if h.cfg.OnUnhandled == config.ActionReject {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	case errors.Is(err, webhook.ErrInvalidPayload):
		h.alert(ctx, "invalid_payload", typ, ref, err)
		if h.cfg.OnInvalidPayload == config.ActionReject {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	case repo.IsDomainError(err) || errors.Is(err, service.ErrInvalidAmount):
		h.alert(ctx, alertKind(err), typ, ref, err)
		c.Status(http.StatusOK)
	default:
		h.alert(ctx, "settlement_failed", typ, ref, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settlement failed"})
	}
}

func (h *WebhookHandler) alert(ctx context.Context, kind string, typ webhook.EventType, ref string, err error) {
	h.alerts.RecordAlert(ctx, service.Alert{Kind: kind, Event: string(typ), Reference: ref, Detail: err.Error()})
}

func alertKind(err error) string {
	switch {
	case errors.Is(err, repo.ErrAccountNotFound), errors.Is(err, repo.ErrWalletNotFound):
		return "account_not_found"
	case errors.Is(err, repo.ErrTransactionNotFound):
		return "transaction_not_found"
	case errors.Is(err, repo.ErrReferenceConflict):
		return "reference_conflict"
	case errors.Is(err, repo.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, repo.ErrUnknownCurrency):
		return "unknown_currency"
	default:
		return "rejected"
	}
}
