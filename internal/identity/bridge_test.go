package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlink/realtime-gateway/internal/domain"
)

// memoryDirectory is an in-memory UserDirectory with the same
// uniqueness guarantees the real store enforces.
type memoryDirectory struct {
	mu      sync.Mutex
	nextID  int
	byID    map[string]*domain.User
	byExt   map[string]string // external id -> user id
	byEmail map[string]string
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		byID:    make(map[string]*domain.User),
		byExt:   make(map[string]string),
		byEmail: make(map[string]string),
	}
}

func (d *memoryDirectory) FindByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byExt[externalID]; ok {
		u := *d.byID[id]
		return &u, nil
	}
	return nil, nil
}

func (d *memoryDirectory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byEmail[email]; ok {
		u := *d.byID[id]
		return &u, nil
	}
	return nil, nil
}

func (d *memoryDirectory) FindByID(ctx context.Context, id string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.byID[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (d *memoryDirectory) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byExt[user.ExternalID]; ok {
		return nil, domain.ErrUserAlreadyExists
	}
	d.nextID++
	created := *user
	created.ID = "user:" + created.Handle
	d.byID[created.ID] = &created
	d.byExt[created.ExternalID] = created.ID
	if created.Email != "" {
		d.byEmail[created.Email] = created.ID
	}
	result := created
	return &result, nil
}

func (d *memoryDirectory) LinkExternalID(ctx context.Context, userID, externalID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byExt[externalID] = userID
	if u, ok := d.byID[userID]; ok {
		u.ExternalID = externalID
	}
	return nil
}

func (d *memoryDirectory) seed(u *domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[u.ID] = u
	if u.ExternalID != "" {
		d.byExt[u.ExternalID] = u.ID
	}
	if u.Email != "" {
		d.byEmail[u.Email] = u.ID
	}
}

func verifiedIdentity(id, email string) *domain.ExternalIdentity {
	return &domain.ExternalIdentity{
		ID:            id,
		Email:         email,
		EmailVerified: true,
		Name:          "Test User",
		AvatarURL:     "https://cdn.example.com/avatar.png",
	}
}

func TestBridge_ResolvesByExternalID(t *testing.T) {
	dir := newMemoryDirectory()
	dir.seed(&domain.User{ID: "user:abc", Email: "t@example.com", Role: domain.RoleTrainer, ExternalID: "ext-1"})
	b := NewBridge(dir)

	user, err := b.ResolveOrCreateUser(context.Background(), verifiedIdentity("ext-1", "t@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "user:abc", user.ID)
	assert.Equal(t, domain.RoleTrainer, user.Role)
}

func TestBridge_BackfillsLinkByEmail(t *testing.T) {
	dir := newMemoryDirectory()
	dir.seed(&domain.User{ID: "user:abc", Email: "t@example.com", Role: domain.RoleClient})
	b := NewBridge(dir)

	user, err := b.ResolveOrCreateUser(context.Background(), verifiedIdentity("ext-1", "t@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "user:abc", user.ID)
	assert.Equal(t, "ext-1", user.ExternalID)

	// Subsequent resolves take the external-id path directly.
	again, err := b.ResolveOrCreateUser(context.Background(), verifiedIdentity("ext-1", "t@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "user:abc", again.ID)
}

func TestBridge_UnverifiedEmailDoesNotMatch(t *testing.T) {
	dir := newMemoryDirectory()
	dir.seed(&domain.User{ID: "user:abc", Email: "t@example.com", Role: domain.RoleClient})
	b := NewBridge(dir)

	ext := verifiedIdentity("ext-1", "t@example.com")
	ext.EmailVerified = false

	user, err := b.ResolveOrCreateUser(context.Background(), ext)
	require.NoError(t, err)
	assert.NotEqual(t, "user:abc", user.ID, "unverified email must not link to the existing account")
}

func TestBridge_ProvisionsNewUser(t *testing.T) {
	dir := newMemoryDirectory()
	b := NewBridge(dir)

	user, err := b.ResolveOrCreateUser(context.Background(), verifiedIdentity("ext-9", "new@example.com"))
	require.NoError(t, err)
	assert.Equal(t, Handle("ext-9"), user.Handle)
	assert.Equal(t, domain.RoleClient, user.Role)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "Test User", user.Name)
}

func TestBridge_ProvisioningIsIdempotentUnderRace(t *testing.T) {
	dir := newMemoryDirectory()
	b := NewBridge(dir)
	ext := verifiedIdentity("ext-race", "race@example.com")

	const callers = 8
	results := make(chan *domain.User, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := b.ResolveOrCreateUser(context.Background(), ext)
			require.NoError(t, err)
			results <- user
		}()
	}
	wg.Wait()
	close(results)

	ids := make(map[string]struct{})
	for user := range results {
		ids[user.ID] = struct{}{}
	}
	assert.Len(t, ids, 1, "all racers must resolve to the same user row")
	assert.Len(t, dir.byID, 1, "no duplicate rows")
}

func TestBridge_Impersonate(t *testing.T) {
	dir := newMemoryDirectory()
	dir.seed(&domain.User{ID: "user:mgr", Email: "m@example.com", Role: domain.RoleManager})
	dir.seed(&domain.User{ID: "user:c1", Email: "c@example.com", Role: domain.RoleClient})
	b := NewBridge(dir)

	t.Run("manager may impersonate", func(t *testing.T) {
		actor, _ := dir.FindByID(context.Background(), "user:mgr")
		target, err := b.Impersonate(context.Background(), actor, "user:c1")
		require.NoError(t, err)
		assert.Equal(t, "user:c1", target.ID)
	})

	t.Run("client may not", func(t *testing.T) {
		actor, _ := dir.FindByID(context.Background(), "user:c1")
		_, err := b.Impersonate(context.Background(), actor, "user:mgr")
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("unknown target", func(t *testing.T) {
		actor, _ := dir.FindByID(context.Background(), "user:mgr")
		_, err := b.Impersonate(context.Background(), actor, "user:nope")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}
