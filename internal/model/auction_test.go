package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateOnlyMovesForward(t *testing.T) {
	assert.True(t, StateOpen.CanMoveTo(StateClosed))
	assert.True(t, StateClosed.CanMoveTo(StatePaid))
	assert.True(t, StateClosed.CanMoveTo(StateClosed))
	assert.False(t, StateClosed.CanMoveTo(StateOpen))
	assert.False(t, StatePaid.CanMoveTo(StateClosed))
	assert.False(t, StateOpen.CanMoveTo(AuctionState("BOGUS")))
}

func TestFloor(t *testing.T) {
	a := AuctionItem{BasePrice: 100}
	assert.Equal(t, int64(100), a.Floor())
	a.CurrentPrice = 150
	assert.Equal(t, int64(150), a.Floor())
}

func TestExpired(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := AuctionItem{EndTime: end}
	assert.False(t, a.Expired(end.Add(-time.Nanosecond)))
	assert.True(t, a.Expired(end))
	assert.True(t, a.Expired(end.Add(time.Minute)))
}
