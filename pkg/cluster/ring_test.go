package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinuteRing_BumpAndVelocity(t *testing.T) {
	var r minuteRing
	m := int64(1000)

	assert.Equal(t, 1, r.bump(m))
	assert.Equal(t, 2, r.bump(m))
	assert.Equal(t, 1, r.bump(m+1))

	// 3 mentions across the last 5 minutes
	assert.InDelta(t, 3.0/5.0, r.velocity(m+1), 1e-9)
}

func TestMinuteRing_StaleSlotReset(t *testing.T) {
	var r minuteRing
	m := int64(1000)
	r.bump(m)
	r.bump(m)

	// Same slot five minutes later must not inherit the old count.
	assert.Equal(t, 1, r.bump(m+5))
	assert.InDelta(t, 1.0/5.0, r.velocity(m+5), 1e-9)
}

func TestMinuteRing_VelocityIgnoresOldBuckets(t *testing.T) {
	var r minuteRing
	m := int64(1000)
	r.bump(m)

	// Six minutes on, the old bucket is out of the averaging window.
	assert.Zero(t, r.velocity(m+6))
}

func TestMinuteRing_NegativeMinutes(t *testing.T) {
	var r minuteRing
	// Pre-epoch timestamps still land in a valid slot.
	assert.Equal(t, 1, r.bump(-3))
	assert.Equal(t, 2, r.bump(-3))
}
