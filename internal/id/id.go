// Package id generates ULIDs for deals and runs.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID stamped with the wall clock.
func New() string {
	return At(time.Now())
}

// At returns a ULID stamped with t. Simulated deals use market time so
// ids sort in bar order. Within one millisecond ids stay increasing.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	ts := ulid.Timestamp(t.UTC())
	id, err := ulid.New(ts, mono)
	if err != nil {
		// Monotonic entropy overflows only after 2^80 ids in one ms; a
		// clock going backwards relative to the last id lands here too.
		id = ulid.MustNew(ts, cryptoRand.Reader)
	}
	return id.String()
}

// Time extracts the timestamp of a ULID string.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
