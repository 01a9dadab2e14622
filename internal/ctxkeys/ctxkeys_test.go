package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassID(t *testing.T) {
	_, ok := PassID(context.Background())
	assert.False(t, ok)

	_, ok = PassID(WithPassID(context.Background(), ""))
	assert.False(t, ok)

	id, ok := PassID(WithPassID(context.Background(), "p-1"))
	assert.True(t, ok)
	assert.Equal(t, "p-1", id)
}

func TestEnvironment(t *testing.T) {
	_, ok := Environment(context.Background())
	assert.False(t, ok)

	env, ok := Environment(WithEnvironment(context.Background(), "prod"))
	assert.True(t, ok)
	assert.Equal(t, "prod", env)
}
