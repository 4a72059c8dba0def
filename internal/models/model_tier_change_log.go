package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/glasswing-io/tiergate/pkg/types"
)

// TierChangeLog records user tier/status mutations.
// Use case: troubleshooting.
type TierChangeLog struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;index:idx_tier_log_user,priority:1;not null"`
	// Reason is the change reason.
	Reason types.TierChangeReason `gorm:"column:reason;type:varchar(64);not null"`
	// Before stores the user row before the change in JSON format.
	Before datatypes.JSONType[*User] `gorm:"column:before;type:jsonb;default:'null'"`
	// After stores the user row after the change in JSON format.
	After datatypes.JSONType[*User] `gorm:"column:after;type:jsonb;default:'null'"`
	// Extra stores additional context such as the triggering event type.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'"`
	CreatedAt time.Time
}

func (TierChangeLog) TableName() string {
	return "tier_change_log"
}
