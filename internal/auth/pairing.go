package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// maxFailedRedeems bounds guessing: once this many unknown codes have been
// tried, every pending code is dropped and pairing has to start over.
const maxFailedRedeems = 5

var (
	ErrPairingInvalid = errors.New("pairing code invalid")
	ErrPairingExpired = errors.New("pairing code expired")
)

type pairingEntry struct {
	createdAt time.Time
	requestID string
	scope     Scope
}

// PairingStore tracks pending pairing codes and the scope each was issued for.
type PairingStore struct {
	mu       sync.Mutex
	entries  map[string]pairingEntry
	failures int
	ttl      time.Duration
	now      func() time.Time
}

func NewPairingStore(ttl time.Duration) *PairingStore {
	return &PairingStore{
		entries: make(map[string]pairingEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// StartCleanup removes expired codes periodically until the context is canceled.
func (store *PairingStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.CleanupExpired()
			case <-ctx.Done():
				store.Clear()
				return
			}
		}
	}()
}

// CleanupExpired removes expired pairing codes.
func (store *PairingStore) CleanupExpired() {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := store.now()
	for code, entry := range store.entries {
		if now.Sub(entry.createdAt) > store.ttl {
			delete(store.entries, code)
		}
	}
}

// Clear wipes all entries from the store.
func (store *PairingStore) Clear() {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.entries = make(map[string]pairingEntry)
	store.failures = 0
}

// Create generates and stores a new pairing code bound to scope.
func (store *PairingStore) Create(requestID string, scope Scope) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for attempts := 0; attempts < 10; attempts++ {
		code, err := randomPairingCode()
		if err != nil {
			return "", err
		}
		if _, exists := store.entries[code]; exists {
			continue
		}
		store.entries[code] = pairingEntry{
			createdAt: store.now(),
			requestID: requestID,
			scope:     scope,
		}
		return code, nil
	}

	return "", fmt.Errorf("unable to generate unique pairing code")
}

// Redeem consumes a pairing code and returns the scope it was issued for.
// Expired codes are consumed too.
func (store *PairingStore) Redeem(code string) (Scope, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.entries[code]
	if !ok {
		store.failures++
		if store.failures >= maxFailedRedeems {
			store.entries = make(map[string]pairingEntry)
			store.failures = 0
		}
		return "", ErrPairingInvalid
	}
	delete(store.entries, code)
	if store.now().Sub(entry.createdAt) > store.ttl {
		return "", ErrPairingExpired
	}
	store.failures = 0
	return entry.scope, nil
}

// Pending returns the number of outstanding codes.
func (store *PairingStore) Pending() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.entries)
}

func randomPairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}
