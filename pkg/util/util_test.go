package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDateTpl(t *testing.T) {
	ts := int64(1699603200000)
	assert.Equal(t, "2023.11.10", FormatDateTpl(ts, "YYYY.MM.DD"))
	assert.Equal(t, "10/11/23", FormatDateTpl(ts, "DD/MM/YY"))
	assert.Equal(t, "2023-11-10 08:00:00", FormatDateTpl(ts, "YYYY-MM-DD hh:mm:ss"))
	assert.Empty(t, FormatDateTpl(0, "YYYY"))
}

func TestDiscordTimestamp(t *testing.T) {
	assert.Equal(t, "<t:1699603200:R>", DiscordTimestamp(time.UnixMilli(1699603200000), 'R'))
}

func TestForEachRespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	failed := ForEach(context.Background(), make([]int, 20), 3, func(ctx context.Context, _ int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return nil
	})
	assert.Zero(t, failed)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestForEachCountsFailures(t *testing.T) {
	var calls atomic.Int32
	failed := ForEach(context.Background(), []int{1, 2, 3, 4}, 2, func(ctx context.Context, n int) error {
		calls.Add(1)
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})
	assert.Equal(t, 2, failed)
	assert.Equal(t, int32(4), calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 3, ForEach(ctx, []int{1, 2, 3}, 2, func(context.Context, int) error { return nil }))
}
