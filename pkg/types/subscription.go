package types

type SubscriptionStatus string

const (
	// SubscriptionStatusNone marks users that never had a paid subscription.
	SubscriptionStatusNone      SubscriptionStatus = ""
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusGrace     SubscriptionStatus = "GRACE"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionStatusFailed    SubscriptionStatus = "FAILED"
	SubscriptionStatusOnHold    SubscriptionStatus = "ON_HOLD"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

type PlanChangeStatus string

const (
	PlanChangeStatusNone          PlanChangeStatus = ""
	PlanChangeStatusPending       PlanChangeStatus = "PENDING"
	PlanChangeStatusCompleted     PlanChangeStatus = "COMPLETED"
	PlanChangeStatusPaymentNeeded PlanChangeStatus = "PAYMENT_NEEDED"
)

// TierChangeReason is recorded in the tier change log.
type TierChangeReason string

const (
	TierChangeReasonPurchase   TierChangeReason = "purchase"
	TierChangeReasonRenewal    TierChangeReason = "renewal"
	TierChangeReasonPlanChange TierChangeReason = "planChange"
	TierChangeReasonRefund     TierChangeReason = "refund"
	TierChangeReasonCancel     TierChangeReason = "cancel"
	TierChangeReasonReconcile  TierChangeReason = "reconcile"
)
