package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Defaults(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer func() { _ = logger.Sync() }()
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	require.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = WithSessionID(ctx, "session-1")
	ctx = WithStepID(ctx, "step-1")

	fields := ContextFields(ctx)
	assert.Equal(t, []zap.Field{
		zap.String("session.id", "session-1"),
		zap.String("step.id", "step-1"),
	}, fields)

	assert.Equal(t, "session-1", SessionIDFromContext(ctx))
	assert.Equal(t, "step-1", StepIDFromContext(ctx))
}
