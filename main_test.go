// ABOUTME: Tests for the player command
// ABOUTME: Covers the emulated-core producer loop and monitor control handling
package main

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/audiopipe/internal/source"
	"github.com/Resonate-Protocol/audiopipe/internal/ui"
	"github.com/Resonate-Protocol/audiopipe/pkg/pipeline"
)

func nullPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{
		InputRate: source.DefaultToneRate,
		Driver:    "null",
		Sync:      pipeline.SyncNonblocking,
		Logger:    log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProduceFeedsPipelineUntilCancelled(t *testing.T) {
	p := nullPipeline(t)
	src := source.NewTone(source.DefaultToneFrequency, source.DefaultToneRate)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	// 4x speed: roughly 36 core frames in 150ms
	require.NoError(t, produce(ctx, src, p, 4))

	perFrame := int64(source.DefaultToneRate / coreFPS)
	assert.Greater(t, p.Stats().Submitted, perFrame*3)
}

func TestProduceStopsOnClosedPipeline(t *testing.T) {
	p := nullPipeline(t)
	require.NoError(t, p.Close())

	src := source.NewTone(source.DefaultToneFrequency, source.DefaultToneRate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, produce(ctx, src, p, 1))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestHandleControlAppliesAndQuits(t *testing.T) {
	p := nullPipeline(t)
	control := ui.NewControl()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- handleControl(ctx, p, control, cancel) }()

	control.Changes <- ui.ControlMsg{Kind: ui.ControlVolume, Volume: 25}
	control.Changes <- ui.ControlMsg{Kind: ui.ControlSlowMotion, On: true}
	assert.Eventually(t, func() bool {
		s := p.Stats()
		return s.Volume == 0.25 && s.SlowMotion
	}, time.Second, 5*time.Millisecond)

	control.Quit <- struct{}{}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("handleControl did not return after quit")
	}
	assert.Error(t, ctx.Err())
}
