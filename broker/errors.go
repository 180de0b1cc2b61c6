package broker

import (
	"errors"
	"fmt"
)

// Retcode follows the MetaTrader 5 trade server return codes.
type Retcode int

const (
	RetRequote         Retcode = 10004
	RetReject          Retcode = 10006
	RetDone            Retcode = 10009
	RetTimeout         Retcode = 10012
	RetInvalid         Retcode = 10013
	RetInvalidVolume   Retcode = 10014
	RetInvalidPrice    Retcode = 10015
	RetInvalidStops    Retcode = 10016
	RetTradeDisabled   Retcode = 10017
	RetMarketClosed    Retcode = 10018
	RetNoMoney         Retcode = 10019
	RetPriceChanged    Retcode = 10020
	RetPriceOff        Retcode = 10021
	RetTooManyRequests Retcode = 10024
	RetPositionClosed  Retcode = 10036
)

var retcodeNames = map[Retcode]string{
	RetRequote:         "requote",
	RetReject:          "reject",
	RetDone:            "done",
	RetTimeout:         "timeout",
	RetInvalid:         "invalid request",
	RetInvalidVolume:   "invalid volume",
	RetInvalidPrice:    "invalid price",
	RetInvalidStops:    "invalid stops",
	RetTradeDisabled:   "trade disabled",
	RetMarketClosed:    "market closed",
	RetNoMoney:         "no money",
	RetPriceChanged:    "price changed",
	RetPriceOff:        "off quotes",
	RetTooManyRequests: "too many requests",
	RetPositionClosed:  "position closed",
}

func (c Retcode) String() string {
	if s, ok := retcodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("retcode(%d)", int(c))
}

// Transient reports whether a rejection with this code is worth retrying.
func (c Retcode) Transient() bool {
	switch c {
	case RetRequote, RetReject, RetTimeout, RetPriceChanged, RetPriceOff, RetTooManyRequests:
		return true
	}
	return false
}

var (
	ErrPositionNotFound = errors.New("broker: position not found")
)

// OrderError is a rejected order operation.
type OrderError struct {
	Op     string
	Ticket uint64
	Code   Retcode
	Msg    string
}

func (e *OrderError) Error() string {
	msg := fmt.Sprintf("broker: %s", e.Op)
	if e.Ticket != 0 {
		msg += fmt.Sprintf(" #%d", e.Ticket)
	}
	msg += fmt.Sprintf(": %d %s", int(e.Code), e.Code)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return msg
}

// Is lets errors.Is match ErrPositionNotFound for position-closed rejections.
func (e *OrderError) Is(target error) bool {
	return target == ErrPositionNotFound && e.Code == RetPositionClosed
}

// IsTransient reports whether err (or anything it wraps) is a retryable
// order rejection. Unknown errors are permanent.
func IsTransient(err error) bool {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Code.Transient()
	}
	return false
}

// CodeOf extracts the retcode from err, or 0.
func CodeOf(err error) Retcode {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return 0
}
