package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinShutdown_RunsEveryFunc(t *testing.T) {
	var calls []string
	first := errors.New("first failed")

	shutdown := JoinShutdown(
		func(context.Context) error { calls = append(calls, "logs"); return first },
		nil,
		func(context.Context) error { calls = append(calls, "traces"); return nil },
	)

	err := shutdown(context.Background())

	assert.ErrorIs(t, err, first)
	assert.Equal(t, []string{"logs", "traces"}, calls)
}
