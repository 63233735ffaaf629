package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheerer/ambient-bridge/lights"
)

type sample struct {
	color lights.Color
	ok    bool
	err   error
	panic bool
}

// scriptedSource plays back samples, then reports "no change" forever.
type scriptedSource struct {
	mu      sync.Mutex
	samples []sample
	calls   int
	onCall  func(n int)
}

func (s *scriptedSource) Sample(ctx context.Context) (lights.Color, bool, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	var next sample
	if n <= len(s.samples) {
		next = s.samples[n-1]
	}
	onCall := s.onCall
	s.mu.Unlock()

	if onCall != nil {
		onCall(n)
	}
	if next.panic {
		panic("sdk exploded")
	}
	return next.color, next.ok, next.err
}

type recordingTarget struct {
	mu       sync.Mutex
	colors   []lights.Color
	offs     int
	offErr   error
	offPanic bool
	// state of the turn off context at call time
	offCtxErr   error
	offDeadline bool
}

func (t *recordingTarget) SetColor(ctx context.Context, color lights.Color) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.colors = append(t.colors, color)
}

func (t *recordingTarget) TurnOff(ctx context.Context) error {
	t.mu.Lock()
	t.offs++
	t.offCtxErr = ctx.Err()
	_, t.offDeadline = ctx.Deadline()
	t.mu.Unlock()
	if t.offPanic {
		panic("turn off exploded")
	}
	return t.offErr
}

var fast = Config{PollInterval: time.Millisecond, TurnOffTimeout: time.Second}

func TestRun_ForwardsOnlyChangedColors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{
		samples: []sample{
			{color: lights.Color{Red: 1, Green: 2, Blue: 3}, ok: true},
			{ok: false},
			{color: lights.Color{Red: 4, Green: 5, Blue: 6}, ok: true},
		},
	}
	src.onCall = func(n int) {
		if n == 4 {
			cancel()
		}
	}
	dst := &recordingTarget{}

	err := Run(ctx, fast, src, dst)
	require.NoError(t, err)

	assert.Equal(t, []lights.Color{{Red: 1, Green: 2, Blue: 3}, {Red: 4, Green: 5, Blue: 6}}, dst.colors)
	assert.Equal(t, 1, dst.offs)
}

func TestRun_CancelledTurnsOffOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dst := &recordingTarget{}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{PollInterval: time.Hour}, &scriptedSource{}, dst)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not interrupt the poll sleep")
	}

	assert.Equal(t, 1, dst.offs)
	assert.NoError(t, dst.offCtxErr, "turn off must not use the cancelled run context")
	assert.True(t, dst.offDeadline, "turn off must be bounded by a timeout")
}

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scriptedSource{}
	dst := &recordingTarget{}

	require.NoError(t, Run(ctx, fast, src, dst))
	assert.Zero(t, src.calls)
	assert.Equal(t, 1, dst.offs)
}

func TestRun_FatalSourceError(t *testing.T) {
	fatal := errors.New("source device not found")
	src := &scriptedSource{
		samples: []sample{
			{color: lights.Color{Red: 9, Green: 9, Blue: 9}, ok: true},
			{err: fatal},
		},
	}
	dst := &recordingTarget{}

	err := Run(context.Background(), fast, src, dst)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, []lights.Color{{Red: 9, Green: 9, Blue: 9}}, dst.colors)
	assert.Equal(t, 1, dst.offs)
}

func TestRun_PanicInTick(t *testing.T) {
	src := &scriptedSource{samples: []sample{{panic: true}}}
	dst := &recordingTarget{}

	err := Run(context.Background(), fast, src, dst)
	assert.ErrorIs(t, err, ErrTickPanic)
	assert.Equal(t, 1, dst.offs)
}

func TestRun_TurnOffFailureIsSwallowed(t *testing.T) {
	src := &scriptedSource{samples: []sample{{err: errors.New("gone")}}}
	dst := &recordingTarget{offErr: errors.New("unreachable")}

	err := Run(context.Background(), fast, src, dst)
	assert.EqualError(t, err, "gone")
	assert.Equal(t, 1, dst.offs)
}

func TestRun_TurnOffPanicIsSwallowed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dst := &recordingTarget{offPanic: true}

	assert.NotPanics(t, func() {
		assert.NoError(t, Run(ctx, fast, &scriptedSource{}, dst))
	})
	assert.Equal(t, 1, dst.offs)
}
