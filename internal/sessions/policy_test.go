package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	day := 24 * time.Hour
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 30*day, p.InitialTTL(created))
	assert.Equal(t, 30*day, p.TTL(created, created.Add(10*day)))
	assert.Equal(t, 5*day, p.TTL(created, created.Add(85*day)))
	assert.LessOrEqual(t, p.TTL(created, created.Add(90*day)), time.Duration(0))

	assert.False(t, p.Exhausted(created, created.Add(89*day)))
	assert.True(t, p.Exhausted(created, created.Add(90*day)))

	assert.False(t, p.InFuture(created, created.Add(-59*time.Second)))
	assert.True(t, p.InFuture(created, created.Add(-61*time.Second)))
}

func TestPolicy_InitialTTLCeiling(t *testing.T) {
	p := Policy{TTLCeiling: time.Hour, IdleTimeout: 2 * time.Hour, MaxLifetime: 3 * time.Hour}
	assert.Equal(t, time.Hour, p.InitialTTL(time.Now()))

	p.TTLCeiling = 0
	assert.Equal(t, 2*time.Hour, p.InitialTTL(time.Now()))
}
