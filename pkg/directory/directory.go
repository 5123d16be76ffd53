package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeremyhahn/go-identity/pkg/cache"
	"github.com/jeremyhahn/go-identity/pkg/oauth"
)

// Config configures a Directory.
type Config struct {
	IdentityProvider oauth.IdentityProvider
	Store            cache.Store

	// KeyPrefix namespaces the cache keys. Defaults to "keycloak.".
	KeyPrefix string

	// ClientID selects the client roles read from resource_access.
	ClientID string

	TTL     time.Duration
	Metrics *cache.Metrics
	Logger  *zerolog.Logger
}

// Directory gives access to the provider's roles, groups and users.
type Directory struct {
	Roles  *Storage[Role]
	Groups *GroupStorage
	Users  *Storage[User]

	clientID string
}

// GroupStorage is a Storage of groups in hierarchy order.
type GroupStorage struct {
	*Storage[Group]
}

// Hierarchy returns the group hierarchy of the current collection.
func (s *GroupStorage) Hierarchy(ctx context.Context) (*Hierarchy, error) {
	list, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return NewHierarchy(list.items), nil
}

// New creates a Directory.
func New(cfg Config) (*Directory, error) {
	if cfg.IdentityProvider == nil {
		return nil, fmt.Errorf("%w: identity provider is required", oauth.ErrInvalidConfiguration)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: cache store is required", oauth.ErrInvalidConfiguration)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = oauth.DefaultKeyPrefix
	}

	idp := cfg.IdentityProvider
	return &Directory{
		Roles: NewStorage(StorageConfig[Role]{
			Store:   cfg.Store,
			Key:     cfg.KeyPrefix + "roles",
			Fetch:   func(ctx context.Context) ([]Role, error) { return fetchRoles(ctx, idp) },
			TTL:     cfg.TTL,
			Metrics: cfg.Metrics,
			Logger:  cfg.Logger,
		}),
		Groups: &GroupStorage{NewStorage(StorageConfig[Group]{
			Store:     cfg.Store,
			Key:       cfg.KeyPrefix + "groups",
			Fetch:     func(ctx context.Context) ([]Group, error) { return fetchGroups(ctx, idp) },
			Normalize: func(groups []Group) []Group { return slices.Collect(NewHierarchy(groups).All()) },
			TTL:       cfg.TTL,
			Metrics:   cfg.Metrics,
			Logger:    cfg.Logger,
		})},
		Users: NewStorage(StorageConfig[User]{
			Store:   cfg.Store,
			Key:     cfg.KeyPrefix + "users",
			Fetch:   func(ctx context.Context) ([]User, error) { return fetchUsers(ctx, idp) },
			TTL:     cfg.TTL,
			Metrics: cfg.Metrics,
			Logger:  cfg.Logger,
		}),
		clientID: cfg.ClientID,
	}, nil
}

// FromAuthenticator creates a Directory sharing the authenticator's
// provider client and cache settings.
func FromAuthenticator(auth *oauth.Authenticator) (*Directory, error) {
	cfg := auth.Config()
	return New(Config{
		IdentityProvider: auth.IdentityProvider(),
		Store:            auth.CacheStore(),
		KeyPrefix:        cfg.Cache.KeyPrefix,
		ClientID:         cfg.ClientID,
		TTL:              cfg.Cache.TTL,
		Metrics:          cfg.Cache.Metrics,
		Logger:           cfg.Logger,
	})
}

// FlushResolved drops every collection from both cache tiers.
func (d *Directory) FlushResolved(ctx context.Context) error {
	return errors.Join(
		d.Roles.FlushResolved(ctx),
		d.Groups.FlushResolved(ctx),
		d.Users.FlushResolved(ctx),
	)
}

func fetchRoles(ctx context.Context, idp oauth.IdentityProvider) ([]Role, error) {
	reps, err := idp.FetchRoles(ctx)
	if err != nil {
		return nil, err
	}
	roles := make([]Role, 0, len(reps))
	for _, r := range reps {
		roles = append(roles, Role{ID: entityID(r.ID), Name: r.Name})
	}
	return roles, nil
}

func fetchGroups(ctx context.Context, idp oauth.IdentityProvider) ([]Group, error) {
	reps, err := idp.FetchGroups(ctx)
	if err != nil {
		return nil, err
	}
	groups := make([]Group, 0, len(reps))
	for _, r := range reps {
		g := Group{ID: entityID(r.ID), Name: r.Name}
		if r.ParentID != "" {
			parent := entityID(r.ParentID)
			g.ParentID = &parent
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func fetchUsers(ctx context.Context, idp oauth.IdentityProvider) ([]User, error) {
	reps, err := idp.FetchUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(reps))
	for _, r := range reps {
		users = append(users, User{ID: entityID(r.ID), Username: r.Username})
	}
	return users, nil
}
