package webhook

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/pkg/logctx"
	"github.com/glasswing-io/tiergate/pkg/tool"
)

// EventLog persists the inbound webhook audit trail.
type EventLog struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewEventLog(db *gorm.DB, log *zap.SugaredLogger) *EventLog {
	return &EventLog{db: db, log: log}
}

// Save asynchronously persists a webhook event log row. Nil input is ignored.
func (s *EventLog) Save(ctx context.Context, row *models.WebhookEventLog) {
	go func() {
		if row == nil {
			return
		}
		if row.ID == "" {
			row.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(row).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook event log: %v", err)
		}
	}()
}

// Received records the delivery of a raw event before processing.
func (s *EventLog) Received(ctx context.Context, eventID, traceID string, evt *Event, body []byte) {
	s.Save(ctx, &models.WebhookEventLog{
		EventID:   eventID,
		EventType: string(evt.Type),
		TraceID:   traceID,
		Data:      datatypes.JSON(body),
		Status:    models.WebhookEventLogStatusReceived,
	})
}

// Handled records the processing outcome of an event.
func (s *EventLog) Handled(ctx context.Context, eventID, traceID string, evt *Event, handleErr error) {
	status := models.WebhookEventLogStatusHandled
	resMap := map[string]any{"ok": handleErr == nil}
	if handleErr != nil {
		status = models.WebhookEventLogStatusHandleFailed
		resMap["error"] = handleErr.Error()
	}
	resBytes, _ := json.Marshal(resMap)
	res := datatypes.JSON(resBytes)
	s.Save(ctx, &models.WebhookEventLog{
		EventID:   eventID,
		EventType: string(evt.Type),
		TraceID:   traceID,
		Data:      datatypes.JSON(evt.Raw),
		Result:    &res,
		Status:    status,
	})
}
