package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatch_RoutesToHandler(t *testing.T) {
	d := NewDispatcher(zap.NewNop().Sugar())

	var got *Event
	d.Register(EventPaymentSucceeded, func(_ context.Context, evt *Event) error {
		got = evt
		return nil
	})

	evt := &Event{Type: EventPaymentSucceeded}
	require.NoError(t, d.Dispatch(context.Background(), evt))
	require.Same(t, evt, got)
}

func TestDispatch_UnknownTypeIsAcked(t *testing.T) {
	d := NewDispatcher(zap.NewNop().Sugar())
	require.NoError(t, d.Dispatch(context.Background(), &Event{Type: "license_key.created"}))
}

func TestDispatch_PropagatesHandlerError(t *testing.T) {
	d := NewDispatcher(zap.NewNop().Sugar())
	want := errors.New("boom")
	d.Register(EventRefundSucceeded, func(context.Context, *Event) error { return want })

	require.ErrorIs(t, d.Dispatch(context.Background(), &Event{Type: EventRefundSucceeded}), want)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	d := NewDispatcher(zap.NewNop().Sugar())
	h := func(context.Context, *Event) error { return nil }
	d.Register(EventCustomerCreated, h)
	require.Panics(t, func() { d.Register(EventCustomerCreated, h) })
}
