package directory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/cache"
	"github.com/jeremyhahn/go-identity/pkg/oauth"
)

var (
	groupA = uuid.MustParse("0a000000-0000-4000-8000-000000000000")
	groupB = uuid.MustParse("0b000000-0000-4000-8000-000000000000")
	groupC = uuid.MustParse("0c000000-0000-4000-8000-000000000000")
	groupD = uuid.MustParse("0d000000-0000-4000-8000-000000000000")

	roleAdmin  = uuid.MustParse("1a000000-0000-4000-8000-000000000000")
	roleViewer = uuid.MustParse("1b000000-0000-4000-8000-000000000000")
	roleEditor = uuid.MustParse("1c000000-0000-4000-8000-000000000000")
	roleAudit  = uuid.MustParse("1d000000-0000-4000-8000-000000000000")
)

// fakeProvider serves directory collections and counts fetches. Methods
// not overridden panic through the nil embedded interface.
type fakeProvider struct {
	oauth.IdentityProvider

	groups []oauth.GroupRepresentation
	roles  []oauth.RoleRepresentation
	users  []oauth.UserRepresentation
	err    error

	groupCalls atomic.Int32
	roleCalls  atomic.Int32
	userCalls  atomic.Int32
}

func (f *fakeProvider) FetchGroups(context.Context) ([]oauth.GroupRepresentation, error) {
	f.groupCalls.Add(1)
	return f.groups, f.err
}

func (f *fakeProvider) FetchRoles(context.Context) ([]oauth.RoleRepresentation, error) {
	f.roleCalls.Add(1)
	return f.roles, f.err
}

func (f *fakeProvider) FetchUsers(context.Context) ([]oauth.UserRepresentation, error) {
	f.userCalls.Add(1)
	return f.users, f.err
}

// treeProvider publishes root A with children B and C, and D below B.
func treeProvider() *fakeProvider {
	return &fakeProvider{
		groups: []oauth.GroupRepresentation{
			{ID: groupA.String(), Name: "A"},
			{ID: groupB.String(), Name: "B", ParentID: groupA.String()},
			{ID: groupC.String(), Name: "C", ParentID: groupA.String()},
			{ID: groupD.String(), Name: "D", ParentID: groupB.String()},
		},
		roles: []oauth.RoleRepresentation{
			{ID: roleAdmin.String(), Name: "admin"},
			{ID: roleViewer.String(), Name: "viewer"},
			{ID: roleEditor.String(), Name: "editor"},
			{ID: roleAudit.String(), Name: "audit"},
		},
		users: []oauth.UserRepresentation{
			{ID: "f3a1c2d4-0000-4000-8000-000000000001", Username: "alice"},
			{ID: "service-account-web", Username: "service-account-web"},
		},
	}
}

func newTestDirectory(t *testing.T, idp oauth.IdentityProvider) *Directory {
	t.Helper()
	store := cache.NewMemoryStore(16)
	t.Cleanup(store.Close)

	dir, err := New(Config{
		IdentityProvider: idp,
		Store:            store,
		ClientID:         "web",
		TTL:              time.Minute,
	})
	require.NoError(t, err)
	return dir
}

func newRedisStore(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisStoreWithClient(client, ""), mr
}

func groupRef(id uuid.UUID) *uuid.UUID {
	return &id
}
