package canvas

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDFunc produces identifiers for objects and participants.
type IDFunc func() string

// RandomIDs returns an IDFunc backed by random UUIDs.
func RandomIDs() IDFunc {
	return uuid.NewString
}

// Sequence returns an IDFunc producing prefix1, prefix2, ... It is safe for
// concurrent use.
func Sequence(prefix string) IDFunc {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + strconv.Itoa(n)
	}
}
