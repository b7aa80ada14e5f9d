package envutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationAcceptsSecondsAndGoSyntax(t *testing.T) {
	t.Setenv("X_TIMEOUT", "90")
	assert.Equal(t, 90*time.Second, Duration("X_TIMEOUT", time.Second))

	t.Setenv("X_TIMEOUT", "1m30s")
	assert.Equal(t, 90*time.Second, Duration("X_TIMEOUT", time.Second))

	t.Setenv("X_TIMEOUT", "soon")
	assert.Equal(t, time.Second, Duration("X_TIMEOUT", time.Second))
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("X_FLAG", "off")
	assert.False(t, Bool("X_FLAG", true))
	t.Setenv("X_FLAG", "maybe")
	assert.True(t, Bool("X_FLAG", true))

	t.Setenv("X_LIST", " a, ,b ,")
	assert.Equal(t, []string{"a", "b"}, List("X_LIST", nil))
	t.Setenv("X_LIST", ",")
	assert.Equal(t, []string{"z"}, List("X_LIST", []string{"z"}))
}
