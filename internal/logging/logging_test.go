package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildEncodings(t *testing.T) {
	for _, enc := range []string{"json", "console", "auto"} {
		t.Run(enc, func(t *testing.T) {
			l, err := Config{Level: "debug", Encoding: enc}.Build()
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestBuildBadLevelFallsBack(t *testing.T) {
	l, err := Config{Level: "loud", Encoding: "json"}.Build()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))
}

func TestWithRequestTagsID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx, l := WithRequest(context.Background(), zap.New(core))
	l.Info("hello")

	require.Equal(t, 1, logs.Len())
	id, ok := logs.All()[0].ContextMap()["request_id"].(string)
	require.True(t, ok)
	assert.Len(t, id, 36)

	assert.Same(t, l, FromContext(ctx, nil))
}

func TestFromContextFallback(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background(), nil))
}
