package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/internal/docstore"
	"github.com/Nyenzo/tule-initiative/internal/idp"
)

type fakeProvider struct {
	mu         sync.Mutex
	hub        *idp.Hub
	claims     map[string]auth.VerifiedClaims
	claimsErr  error
	forceCalls []bool
	signedOut  []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		hub:    idp.NewHub(),
		claims: map[string]auth.VerifiedClaims{},
	}
}

func (f *fakeProvider) Subscribe() (<-chan idp.StateChange, func()) {
	return f.hub.Subscribe()
}

func (f *fakeProvider) RefreshClaims(_ context.Context, accountID string, force bool) (auth.VerifiedClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceCalls = append(f.forceCalls, force)
	if f.claimsErr != nil {
		return auth.VerifiedClaims{}, f.claimsErr
	}
	return f.claims[accountID], nil
}

func (f *fakeProvider) SignOut(_ context.Context, accountID string) error {
	f.mu.Lock()
	f.signedOut = append(f.signedOut, accountID)
	f.mu.Unlock()
	f.hub.Emit(idp.StateChange{Identity: nil})
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]docstore.Fields
	getErr  error
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]docstore.Fields{}}
}

func (f *fakeStore) key(collection, id string) string { return collection + "/" + id }

func (f *fakeStore) Get(_ context.Context, collection, id string) (docstore.Fields, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	fields, ok := f.docs[f.key(collection, id)]
	if !ok {
		return nil, nil
	}
	return fields, nil
}

func (f *fakeStore) Upsert(_ context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	existing := f.docs[f.key(collection, id)]
	if !merge || existing == nil {
		existing = docstore.Fields{}
	}
	merged := docstore.Fields{}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	f.docs[f.key(collection, id)] = merged
	return nil
}

func startManager(t *testing.T, provider *fakeProvider, store *fakeStore) (*Manager, <-chan Snapshot) {
	t.Helper()
	manager := NewManager(provider, store)
	manager.Start(context.Background())
	t.Cleanup(manager.Close)

	snapshots, cancel := manager.Watch()
	t.Cleanup(cancel)
	return manager, snapshots
}

func nextSnapshot(t *testing.T, snapshots <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snapshot := <-snapshots:
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestInitialSnapshotIsLoading(t *testing.T) {
	_, snapshots := startManager(t, newFakeProvider(), newFakeStore())

	snapshot := nextSnapshot(t, snapshots)
	assert.Nil(t, snapshot.Principal)
	assert.True(t, snapshot.Loading)
}

func TestSignedOutEventSettlesSession(t *testing.T) {
	provider := newFakeProvider()
	_, snapshots := startManager(t, provider, newFakeStore())
	nextSnapshot(t, snapshots) // initial loading state

	provider.hub.Emit(idp.StateChange{Identity: nil})

	snapshot := nextSnapshot(t, snapshots)
	assert.Nil(t, snapshot.Principal)
	assert.False(t, snapshot.Loading)
}

func TestSignInForcesClaimsRefresh(t *testing.T) {
	provider := newFakeProvider()
	provider.claims["u1"] = auth.VerifiedClaims{Subject: "u1", Email: "alex@example.com", Admin: true}
	_, snapshots := startManager(t, provider, newFakeStore())
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})

	snapshot := nextSnapshot(t, snapshots)
	require.NotNil(t, snapshot.Principal)
	assert.True(t, snapshot.Principal.Admin)
	assert.False(t, snapshot.Loading)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	require.NotEmpty(t, provider.forceCalls)
	assert.True(t, provider.forceCalls[0], "claims must be re-read from the directory, not a cache")
}

func TestClaimsRefreshFailureFailsClosed(t *testing.T) {
	provider := newFakeProvider()
	provider.claimsErr = fmt.Errorf("directory unavailable")
	_, snapshots := startManager(t, provider, newFakeStore())
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})

	snapshot := nextSnapshot(t, snapshots)
	assert.Nil(t, snapshot.Principal, "an unresolvable identity must yield the signed-out state")
	assert.False(t, snapshot.Loading)
}

func TestFirstSignInCreatesProfile(t *testing.T) {
	provider := newFakeProvider()
	provider.claims["u1"] = auth.VerifiedClaims{Subject: "u1", Email: "alex@example.com"}
	store := newFakeStore()
	_, snapshots := startManager(t, provider, store)
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})
	nextSnapshot(t, snapshots)

	store.mu.Lock()
	defer store.mu.Unlock()
	profile := store.docs["users/u1"]
	require.NotNil(t, profile)
	assert.Equal(t, "alex@example.com", profile["email"])
	assert.Equal(t, false, profile["isAdmin"])
	assert.NotEmpty(t, profile["createdAt"])
}

func TestReturningSignInDoesNotRewriteProfile(t *testing.T) {
	provider := newFakeProvider()
	provider.claims["u1"] = auth.VerifiedClaims{Subject: "u1", Email: "alex@example.com"}
	store := newFakeStore()
	store.docs["users/u1"] = docstore.Fields{"email": "alex@example.com", "isAdmin": false, "bio": "hello"}
	_, snapshots := startManager(t, provider, store)
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})
	nextSnapshot(t, snapshots)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.upserts, "an existing profile must be left alone")
	assert.Equal(t, "hello", store.docs["users/u1"]["bio"])
}

func TestProfileReadFailureSkipsCreation(t *testing.T) {
	provider := newFakeProvider()
	provider.claims["u1"] = auth.VerifiedClaims{Subject: "u1", Email: "alex@example.com", Admin: true}
	store := newFakeStore()
	store.getErr = fmt.Errorf("store unavailable")
	_, snapshots := startManager(t, provider, store)
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})

	// The session still establishes; a read failure is not evidence the
	// profile is absent, so nothing gets written.
	snapshot := nextSnapshot(t, snapshots)
	require.NotNil(t, snapshot.Principal)
	assert.True(t, snapshot.Principal.Admin)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.upserts)
}

func TestProfileAdminMarkerWidensPrivilege(t *testing.T) {
	provider := newFakeProvider()
	provider.claims["u1"] = auth.VerifiedClaims{Subject: "u1", Email: "alex@example.com", Admin: false}
	store := newFakeStore()
	store.docs["users/u1"] = docstore.Fields{"email": "alex@example.com", "isAdmin": true}
	_, snapshots := startManager(t, provider, store)
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})

	snapshot := nextSnapshot(t, snapshots)
	require.NotNil(t, snapshot.Principal)
	assert.True(t, snapshot.Principal.Admin, "either verified source may grant admin")
}

func TestClaimAdminSurvivesProfileFalse(t *testing.T) {
	provider := newFakeProvider()
	provider.claims["u1"] = auth.VerifiedClaims{Subject: "u1", Email: "alex@example.com", Admin: true}
	store := newFakeStore()
	store.docs["users/u1"] = docstore.Fields{"email": "alex@example.com", "isAdmin": false}
	_, snapshots := startManager(t, provider, store)
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})

	snapshot := nextSnapshot(t, snapshots)
	require.NotNil(t, snapshot.Principal)
	assert.True(t, snapshot.Principal.Admin, "a profile marker can widen but never narrow the claim")
}

func TestDisplayNameFallsBackToEmailLocalPart(t *testing.T) {
	provider := newFakeProvider()
	provider.claims["u1"] = auth.VerifiedClaims{Subject: "u1", Email: "alex@example.com"}
	_, snapshots := startManager(t, provider, newFakeStore())
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})

	snapshot := nextSnapshot(t, snapshots)
	require.NotNil(t, snapshot.Principal)
	assert.Equal(t, "alex", snapshot.Principal.DisplayName)
}

func TestEventsResolveInOrder(t *testing.T) {
	provider := newFakeProvider()
	provider.claims["u1"] = auth.VerifiedClaims{Subject: "u1", Email: "alex@example.com"}
	provider.claims["u2"] = auth.VerifiedClaims{Subject: "u2", Email: "sam@example.com"}
	_, snapshots := startManager(t, provider, newFakeStore())
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})
	provider.hub.Emit(idp.StateChange{Identity: nil})
	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u2", Email: "sam@example.com"}})

	first := nextSnapshot(t, snapshots)
	require.NotNil(t, first.Principal)
	assert.Equal(t, "u1", first.Principal.ID)

	second := nextSnapshot(t, snapshots)
	assert.Nil(t, second.Principal)

	third := nextSnapshot(t, snapshots)
	require.NotNil(t, third.Principal)
	assert.Equal(t, "u2", third.Principal.ID)
}

func TestLogoutGoesThroughProvider(t *testing.T) {
	provider := newFakeProvider()
	provider.claims["u1"] = auth.VerifiedClaims{Subject: "u1", Email: "alex@example.com"}
	manager, snapshots := startManager(t, provider, newFakeStore())
	nextSnapshot(t, snapshots)

	provider.hub.Emit(idp.StateChange{Identity: &idp.Identity{ID: "u1", Email: "alex@example.com"}})
	nextSnapshot(t, snapshots)

	require.NoError(t, manager.Logout(context.Background()))

	// The signed-out snapshot arrives via the provider's event, not from
	// Logout writing state directly.
	snapshot := nextSnapshot(t, snapshots)
	assert.Nil(t, snapshot.Principal)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, []string{"u1"}, provider.signedOut)
}

func TestLogoutWhileSignedOutIsNoOp(t *testing.T) {
	provider := newFakeProvider()
	manager, snapshots := startManager(t, provider, newFakeStore())
	nextSnapshot(t, snapshots)

	require.NoError(t, manager.Logout(context.Background()))

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Empty(t, provider.signedOut)
}
