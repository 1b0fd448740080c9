package events

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct{ calls atomic.Int32 }

func (c *countingNotifier) NotifySessionConnected(context.Context, string, string) error {
	c.calls.Add(1)
	return nil
}

func TestFallbackNotifierSwitchesWhenUnhealthy(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	primary, fallback := &countingNotifier{}, &countingNotifier{}

	n := NewFallbackNotifier(primary, fallback, healthy.Load)
	ctx := context.Background()

	require.NoError(t, n.NotifySessionConnected(ctx, "s1", "0xabc"))
	assert.EqualValues(t, 1, primary.calls.Load())
	assert.EqualValues(t, 0, fallback.calls.Load())

	healthy.Store(false)
	require.NoError(t, n.NotifySessionConnected(ctx, "s2", "0xabc"))
	assert.EqualValues(t, 1, primary.calls.Load())
	assert.EqualValues(t, 1, fallback.calls.Load())
}
