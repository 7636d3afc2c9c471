package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProviderIsInert(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	// Every record path must be a no-op without instruments.
	p.RecordCheck(ctx, "cache.vary.honored", "PASS")
	p.RecordRun(ctx, "PARTIAL", 120*time.Millisecond)
	p.RecordInsights(ctx, "reinforcing", 3)

	runCtx, done := p.TrackRun(ctx, "gate.run", GateRunAttrs("run-1", 6)...)
	assert.NotNil(t, runCtx)
	done(nil)

	require.NoError(t, p.Shutdown(ctx))
}

func TestDisabledProviderStillHandsOutTracer(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())

	ctx, span := p.StartSpan(context.Background(), "noop")
	assert.NotNil(t, ctx)
	span.End()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "vigil", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.Insecure)
}

func TestCheckAttrs(t *testing.T) {
	attrs := CheckAttrs("fault.io.disk", "fault", "SKIP")
	require.Len(t, attrs, 3)
	assert.Equal(t, AttrObligationID, attrs[0].Key)
	assert.Equal(t, "SKIP", attrs[2].Value.AsString())
}
