package automation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollStopsWhenConditionHolds(t *testing.T) {
	var calls int32
	err := Poll(context.Background(), PollOptions{Interval: time.Millisecond, MaxAttempts: 10},
		func(ctx context.Context) (bool, error) {
			return atomic.AddInt32(&calls, 1) == 3, nil
		})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls)
}

func TestPollMaxAttempts(t *testing.T) {
	var calls int32
	err := Poll(context.Background(), PollOptions{Interval: time.Millisecond, MaxAttempts: 5},
		func(ctx context.Context) (bool, error) {
			atomic.AddInt32(&calls, 1)
			return false, nil
		})
	assert.ErrorIs(t, err, ErrPollExhausted)
	assert.EqualValues(t, 5, calls)
}

func TestPollTimeout(t *testing.T) {
	start := time.Now()
	err := Poll(context.Background(), PollOptions{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond},
		func(ctx context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, ErrPollExhausted)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollRequiresBound(t *testing.T) {
	err := Poll(context.Background(), PollOptions{Interval: time.Millisecond},
		func(ctx context.Context) (bool, error) { return false, nil })
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPollExhausted)
}

func TestPollConditionError(t *testing.T) {
	boom := errors.New("boom")
	err := Poll(context.Background(), PollOptions{Interval: time.Millisecond, MaxAttempts: 5},
		func(ctx context.Context) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestPollCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, PollOptions{Interval: time.Hour, Timeout: time.Hour},
		func(ctx context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollWakeSkipsInterval(t *testing.T) {
	wake := make(chan struct{}, 1)
	var calls int32
	go func() {
		time.Sleep(10 * time.Millisecond)
		wake <- struct{}{}
	}()
	start := time.Now()
	err := Poll(context.Background(), PollOptions{Interval: time.Hour, Timeout: 5 * time.Second, Wake: wake},
		func(ctx context.Context) (bool, error) {
			return atomic.AddInt32(&calls, 1) == 2, nil
		})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAnyOf(t *testing.T) {
	no := func(ctx context.Context) (bool, error) { return false, nil }
	broken := func(ctx context.Context) (bool, error) { return false, errors.New("页面元素不存在") }
	yes := func(ctx context.Context) (bool, error) { return true, nil }

	ok, err := AnyOf(broken, no, yes)(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AnyOf(broken, no)(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatchDirSignalsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	wake, stop, err := WatchDir(context.Background(), dir, func(name string) bool {
		return strings.HasSuffix(name, "_vocals.wav")
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "song_vocals.wav"), []byte("x"), 0644))
	select {
	case <-wake:
	case <-time.After(5 * time.Second):
		t.Fatal("没有收到唤醒信号")
	}
}

func TestEndpointLocksSerializeSameEndpoint(t *testing.T) {
	locks := NewEndpointLocks()
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "http://127.0.0.1:7860/")
	require.NoError(t, err)

	// 同一地址（大小写和末尾斜杠不同）在持锁期间拿不到
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(short, "HTTP://127.0.0.1:7860")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 不同地址互不影响
	other, err := locks.Acquire(ctx, "http://127.0.0.1:7861")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := locks.Acquire(ctx, "http://127.0.0.1:7860")
	require.NoError(t, err)
	again()
}

func TestSleepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestScreenshotPath(t *testing.T) {
	p := ScreenshotPath("/tmp/shots", "separate")
	assert.Equal(t, "/tmp/shots", filepath.Dir(p))
	assert.True(t, strings.HasPrefix(filepath.Base(p), "separate_"))
	assert.Equal(t, ".png", filepath.Ext(p))
}
