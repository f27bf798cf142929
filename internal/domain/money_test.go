package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp0(t *testing.T) {
	assert.Equal(t, Money(0), Clamp0(-5))
	assert.Equal(t, Money(0), Clamp0(0))
	assert.Equal(t, Money(12.5), Clamp0(12.5))
}
