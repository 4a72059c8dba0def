package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalize_PaymentEvent(t *testing.T) {
	body := []byte(`{"event_type":"payment.succeeded","data":{"payment_id":"pay_1","customer_email":"a@b.com","total_amount":1500,"currency":"USD","metadata":{"user_id":"u-1"}}}`)

	evt, err := Normalize(body)
	require.NoError(t, err)
	require.Equal(t, EventPaymentSucceeded, evt.Type)
	require.NotNil(t, evt.Payment)
	require.Equal(t, "pay_1", evt.Payment.PaymentID)
	require.Equal(t, int64(1500), evt.Payment.TotalAmount)
	require.Equal(t, "u-1", evt.Payment.Metadata["user_id"])
}

func TestNormalize_LegacyEventField(t *testing.T) {
	evt, err := Normalize([]byte(`{"event":"subscription.renewed","data":{"subscription_id":"sub_1"}}`))
	require.NoError(t, err)
	require.Equal(t, EventSubscriptionRenewed, evt.Type)
	require.NotNil(t, evt.Subscription)
	require.Equal(t, "sub_1", evt.Subscription.SubscriptionID)
}

func TestNormalize_LegacyTypeField(t *testing.T) {
	evt, err := Normalize([]byte(`{"type":"payment.failed","data":{"payment_id":"pay_2"}}`))
	require.NoError(t, err)
	require.Equal(t, EventPaymentFailed, evt.Type)
	require.NotNil(t, evt.Payment)
}

func TestNormalize_EventTypeWinsOverAliases(t *testing.T) {
	evt, err := Normalize([]byte(`{"event_type":"payment.succeeded","event":"payment.failed","data":{}}`))
	require.NoError(t, err)
	require.Equal(t, EventPaymentSucceeded, evt.Type)
}

func TestNormalize_MissingEventType(t *testing.T) {
	_, err := Normalize([]byte(`{"data":{"payment_id":"pay_1"}}`))
	require.ErrorIs(t, err, ErrNoEventType)
}

func TestNormalize_MalformedJSON(t *testing.T) {
	_, err := Normalize([]byte(`{not json`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoEventType)
}

func TestNormalize_UnknownTypeKeepsRaw(t *testing.T) {
	evt, err := Normalize([]byte(`{"event_type":"license_key.created","data":{"key":"abc"}}`))
	require.NoError(t, err)
	require.Equal(t, EventType("license_key.created"), evt.Type)
	require.False(t, evt.Known())
	require.JSONEq(t, `{"key":"abc"}`, string(evt.Raw))
}

func TestNormalize_MissingDataStillParses(t *testing.T) {
	evt, err := Normalize([]byte(`{"event_type":"subscription.cancelled"}`))
	require.NoError(t, err)
	require.NotNil(t, evt.Subscription)
	require.Empty(t, evt.Subscription.SubscriptionID)
}

func TestPeriodEnd_PrefersCurrentPeriodEnd(t *testing.T) {
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	p := &SubscriptionPayload{CurrentPeriodEnd: &end, NextBillingDate: &next}
	require.Equal(t, &end, p.PeriodEnd())

	p = &SubscriptionPayload{NextBillingDate: &next}
	require.Equal(t, &next, p.PeriodEnd())

	p = &SubscriptionPayload{}
	require.Nil(t, p.PeriodEnd())
}
