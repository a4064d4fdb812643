package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
// Every row in the system (tenants, documents, signers, audit events, ...) is
// keyed by one of these; sortability keeps the audit chain's createdAt-ordered
// queries index-friendly.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewOpaque returns a random 128-bit UUID for values that are handed to
// clients as bare tokens of identity rather than storage keys: signature
// UUIDs, JWT "jti" claims.
func NewOpaque() string {
	return uuid.NewString()
}
