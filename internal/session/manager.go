package session

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/internal/docstore"
	"github.com/Nyenzo/tule-initiative/internal/idp"
)

// ProfileCollection is the document collection holding per-user profiles.
const ProfileCollection = "users"

// IdentityProvider is the slice of the identity provider the session
// manager needs: the auth-state stream, verified claims resolution, and
// sign-out.
type IdentityProvider interface {
	Subscribe() (<-chan idp.StateChange, func())
	RefreshClaims(ctx context.Context, accountID string, force bool) (auth.VerifiedClaims, error)
	SignOut(ctx context.Context, accountID string) error
}

// Manager resolves identity events into session snapshots.
//
// Exactly one goroutine consumes the provider's event stream, so events are
// resolved strictly in arrival order and a slow resolution for one event
// delays, never interleaves with, the next. All snapshot writes go through
// the cell; nothing else mutates session state.
type Manager struct {
	provider IdentityProvider
	store    docstore.Store
	cell     *Cell

	started   atomic.Bool
	cancelSub func()
	current   atomic.Pointer[string] // account ID of the signed-in principal
	done      chan struct{}
}

// NewManager wires a manager to its identity provider and profile store.
// Start must be called before snapshots settle.
func NewManager(provider IdentityProvider, store docstore.Store) *Manager {
	return &Manager{
		provider: provider,
		store:    store,
		cell:     NewCell(),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the provider's auth-state stream and begins resolving
// events. Calling Start more than once is a no-op.
func (m *Manager) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}

	changes, cancel := m.provider.Subscribe()
	m.cancelSub = cancel

	go m.run(ctx, changes)
}

func (m *Manager) run(ctx context.Context, changes <-chan idp.StateChange) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			m.handleChange(ctx, change)
		}
	}
}

// handleChange resolves one identity event into a settled snapshot.
//
// A present identity is trusted only after a forced claims refresh: the
// directory is re-read so privilege changes made since the last token was
// minted are visible immediately. Any failure on that path yields the
// signed-out snapshot rather than a principal with guessed privileges.
func (m *Manager) handleChange(ctx context.Context, change idp.StateChange) {
	if change.Identity == nil {
		m.current.Store(nil)
		m.cell.Set(Snapshot{Principal: nil, Loading: false})
		return
	}

	identity := change.Identity

	claims, err := m.provider.RefreshClaims(ctx, identity.ID, true)
	if err != nil {
		log.Printf("ERROR: failed to refresh claims for %s: %v", identity.ID, err)
		m.current.Store(nil)
		m.cell.Set(Snapshot{Principal: nil, Loading: false})
		return
	}

	admin := claims.Admin
	m.ensureProfile(ctx, identity, &admin)

	name := claims.Name
	if name == "" {
		name = identity.DisplayName
	}
	if name == "" {
		name = localPart(identity.Email)
	}

	id := identity.ID
	m.current.Store(&id)
	m.cell.Set(Snapshot{
		Principal: &Principal{
			ID:            identity.ID,
			Email:         identity.Email,
			DisplayName:   name,
			EmailVerified: claims.EmailVerified,
			Admin:         admin,
		},
		Loading: false,
	})
}

// ensureProfile lazily creates the user's profile document on first
// sign-in and folds a profile-level admin marker into the admin flag.
//
// Profile trouble never blocks session establishment: a read failure is
// logged and skipped (failure is not evidence of absence, so no document
// is created), and a write failure is logged and ignored for the same
// reason. The admin flag can only widen here, from the claim to the
// profile marker, never narrow.
func (m *Manager) ensureProfile(ctx context.Context, identity *idp.Identity, admin *bool) {
	fields, err := m.store.Get(ctx, ProfileCollection, identity.ID)
	if err != nil {
		log.Printf("WARNING: failed to read profile for %s, skipping profile creation: %v", identity.ID, err)
		return
	}

	if fields == nil {
		seed := docstore.Fields{
			"email":     identity.Email,
			"isAdmin":   false,
			"createdAt": time.Now().UTC().Format(time.RFC3339),
		}
		if err := m.store.Upsert(ctx, ProfileCollection, identity.ID, seed, true); err != nil {
			log.Printf("WARNING: failed to create profile for %s: %v", identity.ID, err)
		}
		return
	}

	if flagged, ok := fields["isAdmin"].(bool); ok && flagged {
		*admin = true
	}
}

// Current returns the session fact as of now.
func (m *Manager) Current() Snapshot {
	return m.cell.Get()
}

// Watch returns an ordered stream of session snapshots, starting with the
// current one.
func (m *Manager) Watch() (<-chan Snapshot, func()) {
	return m.cell.Watch()
}

// Logout asks the provider to end the session. The snapshot is not touched
// here; the signed-out state arrives through the event stream like every
// other state, preserving ordering for all watchers.
func (m *Manager) Logout(ctx context.Context) error {
	id := m.current.Load()
	if id == nil {
		return nil
	}
	return m.provider.SignOut(ctx, *id)
}

// Close cancels the provider subscription, waits for the resolver goroutine
// to drain, and closes the cell.
func (m *Manager) Close() {
	if m.started.Load() && m.cancelSub != nil {
		m.cancelSub()
		<-m.done
	}
	m.cell.Close()
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
