package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDerivedControls_PerPhase(t *testing.T) {
	assert.Equal(t, Controls{}, DerivedControls(PhaseInactive))
	assert.Equal(t, Controls{AllowAdd: true, SellProtected: true, Active: true}, DerivedControls(PhaseAdd))
	assert.Equal(t, Controls{SellProtected: true, Active: true}, DerivedControls(PhaseHold))
	assert.Equal(t, Controls{AllowReintegration: true, Active: true}, DerivedControls(PhaseReintegrate))
}

func TestLifecycleState_InCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	none := NewLifecycleState()
	assert.False(t, none.InCooldown(now))

	future := now.Add(24 * time.Hour)
	active := LifecycleState{CooldownUntil: &future}
	assert.True(t, active.InCooldown(now))

	past := now.Add(-24 * time.Hour)
	expired := LifecycleState{CooldownUntil: &past}
	assert.False(t, expired.InCooldown(now))
}
