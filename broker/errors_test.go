package broker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetcodeTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code      Retcode
		transient bool
	}{
		{RetRequote, true},
		{RetReject, true},
		{RetPriceChanged, true},
		{RetPriceOff, true},
		{RetTimeout, true},
		{RetTooManyRequests, true},
		{RetInvalidStops, false},
		{RetInvalidVolume, false},
		{RetNoMoney, false},
		{RetMarketClosed, false},
		{Retcode(42), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.code.String(), func(t *testing.T) {
			t.Parallel()
			err := fmt.Errorf("wrapped: %w", &OrderError{Op: "open", Code: tt.code})
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestOrderErrorMessage(t *testing.T) {
	t.Parallel()
	err := &OrderError{Op: "modify", Ticket: 7, Code: RetInvalidStops, Msg: "sl too close"}
	assert.Equal(t, "broker: modify #7: 10016 invalid stops: sl too close", err.Error())
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestPositionClosedMatchesNotFound(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("close: %w", &OrderError{Op: "close", Ticket: 3, Code: RetPositionClosed})
	assert.ErrorIs(t, err, ErrPositionNotFound)
}
