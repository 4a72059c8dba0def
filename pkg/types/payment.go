package types

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusDisputed   PaymentStatus = "DISPUTED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
)

type SessionMode string

const (
	SessionModeSubscription SessionMode = "SUBSCRIPTION"
)
