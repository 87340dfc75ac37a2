package idgen

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New returns a UUIDv7 identifier string.
// If UUIDv7 generation fails, it falls back to a random UUIDv4.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Monotonic hands out ULIDs that compare strictly greater than every id it
// returned before, even within the same millisecond.
type Monotonic struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (m *Monotonic) Next() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(m.now()), m.entropy)
	if err != nil {
		// Entropy overflow within one millisecond; move to the next one.
		id = ulid.MustNew(ulid.Timestamp(m.now().Add(time.Millisecond)), m.entropy)
	}
	return id.String()
}
