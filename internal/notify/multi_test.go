package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/dorank/internal/publisher/memory"
	"github.com/JakeFAU/dorank/internal/stats"
)

func TestMultiDeliversToAll(t *testing.T) {
	t.Parallel()

	primary, secondary := memory.New(), memory.New()
	m, err := NewMulti(nil, primary, secondary)
	require.NoError(t, err)

	require.NoError(t, m.Notify(context.Background(), stats.Message{Channel: "C1", ErrorText: "x"}))
	require.Len(t, primary.Messages(), 1)
	require.Len(t, secondary.Messages(), 1)
}

func TestMultiSecondaryFailureIsLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	primary, secondary := memory.New(), memory.New()
	secondary.Err = errors.New("topic missing")

	m, err := NewMulti(zap.New(core), primary, secondary)
	require.NoError(t, err)
	require.NoError(t, m.Notify(context.Background(), stats.Message{Channel: "C1"}))
	require.Equal(t, 1, logs.FilterMessage("secondary notifier failed").Len())
}

func TestMultiPrimaryFailureReturned(t *testing.T) {
	t.Parallel()

	primary, secondary := memory.New(), memory.New()
	primary.Err = errors.New("slack down")

	m, err := NewMulti(nil, primary, secondary)
	require.NoError(t, err)
	require.ErrorContains(t, m.Notify(context.Background(), stats.Message{}), "slack down")
	require.Len(t, secondary.Messages(), 1, "secondaries still receive the message")

	_, err = NewMulti(nil, nil)
	require.Error(t, err)
}
