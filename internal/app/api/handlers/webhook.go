package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glasswing-io/tiergate/internal/app/service/webhook"
	"github.com/glasswing-io/tiergate/pkg/config"
	"github.com/glasswing-io/tiergate/pkg/logctx"
	"github.com/glasswing-io/tiergate/pkg/webhookauth"
	"go.uber.org/zap"
)

const (
	headerWebhookID        = "webhook-id"
	headerWebhookTimestamp = "webhook-timestamp"
	headerWebhookSignature = "webhook-signature"
)

// @Summary      Provider Webhook
// @Description  Receives payment-provider webhook events. Signature is carried in webhook-id/webhook-timestamp/webhook-signature headers. Always answers 200 once an event type is present; processing errors are logged, not surfaced, to avoid provider retry storms.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]any
// @Failure      401  {object}  map[string]any
// @Router       /webhook [post]
func ApiProviderWebhook(cfg *config.Config, verifier *webhookauth.Verifier, d *webhook.Dispatcher, eventLog *webhook.EventLog, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"received": false, "error": "unreadable body"})
			return
		}

		eventID := c.GetHeader(headerWebhookID)
		verified := verifier.Verify(
			eventID,
			c.GetHeader(headerWebhookTimestamp),
			c.GetHeader(headerWebhookSignature),
			body,
		)
		var warning string
		if !verified {
			logctx.FromGin(c, log).Warnw("webhook_signature_invalid", "event_id", eventID)
			if cfg.SignatureRequired() {
				c.JSON(http.StatusUnauthorized, gin.H{"received": false, "error": "invalid signature"})
				return
			}
			warning = "signature verification failed"
		}

		evt, err := webhook.Normalize(body)
		if err != nil {
			if errors.Is(err, webhook.ErrNoEventType) {
				c.JSON(http.StatusBadRequest, gin.H{"received": false, "error": "missing event type"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"received": false, "error": "malformed payload"})
			return
		}

		ctx := c.Request.Context()
		traceID := c.GetString("traceID")
		eventLog.Received(ctx, eventID, traceID, evt, body)

		logctx.FromGin(c, log).Infow("webhook_received", "event_type", evt.Type, "event_id", eventID)

		// A syntactically-accepted event is always acknowledged: the
		// provider retries non-2xx responses and a poison event would
		// storm forever.
		handleErr := d.Dispatch(ctx, evt)
		if handleErr != nil {
			logctx.FromGin(c, log).Errorw("webhook_handle_error",
				"event_type", evt.Type, "event_id", eventID, "error", handleErr.Error())
		}
		eventLog.Handled(ctx, eventID, traceID, evt, handleErr)

		resp := gin.H{"received": true}
		if warning != "" {
			resp["warning"] = warning
		}
		c.JSON(http.StatusOK, resp)
	}
}

func RegisterWebhookRoutes(r gin.IRouter, cfg *config.Config, verifier *webhookauth.Verifier, d *webhook.Dispatcher, eventLog *webhook.EventLog, log *zap.SugaredLogger) {
	r.POST("/webhook", ApiProviderWebhook(cfg, verifier, d, eventLog, log))
}
