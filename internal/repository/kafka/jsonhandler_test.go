package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Event string `json:"event"`
	N     int    `json:"n"`
}

func TestJSONHandler_Decodes(t *testing.T) {
	var got *testEvent
	h := JSONHandler(func(ctx context.Context, key []byte, msg *testEvent) error {
		got = msg
		return nil
	}, nil)

	err := h(context.Background(), []byte("k"), []byte(`{"event":"check.down","n":3}`))
	require.NoError(t, err)
	require.Equal(t, &testEvent{Event: "check.down", N: 3}, got)
}

func TestJSONHandler_PoisonMessageDropped(t *testing.T) {
	called := false
	var badErr error
	h := JSONHandler(func(ctx context.Context, key []byte, msg *testEvent) error {
		called = true
		return nil
	}, func(err error) { badErr = err })

	// a nil return means the offset commits and the partition moves on
	err := h(context.Background(), nil, []byte(`{not json`))
	require.NoError(t, err)
	require.False(t, called)
	require.Error(t, badErr)
}

func TestJSONHandler_HandlerErrorPropagates(t *testing.T) {
	want := errors.New("downstream unavailable")
	h := JSONHandler(func(ctx context.Context, key []byte, msg *testEvent) error {
		return want
	}, nil)

	err := h(context.Background(), nil, []byte(`{}`))
	require.ErrorIs(t, err, want)
}
