package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Transport("send dispatch", cause)

	var te *TransportError
	assert.True(t, errors.As(wrapped, &te))
	assert.Equal(t, cause, te.Unwrap())
	assert.Contains(t, te.Error(), "send dispatch")
	assert.Contains(t, te.Error(), "connection refused")
}

func TestIsTransport(t *testing.T) {
	assert.True(t, IsTransport(Transport("receive", errors.New("boom"))))
	assert.True(t, IsTransport(fmt.Errorf("outer: %w", Transport("receive", errors.New("boom")))))
	assert.False(t, IsTransport(errors.New("boom")))
	assert.False(t, IsTransport(nil))
}
