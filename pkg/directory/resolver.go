package directory

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeremyhahn/go-identity/pkg/oauth"
)

// Resolver answers authorization questions about an authenticated user
// from the token claims and the directory collections.
type Resolver struct {
	dir *Directory
}

// Resolver returns a Resolver over the directory.
func (d *Directory) Resolver() *Resolver {
	return &Resolver{dir: d}
}

// RolesOf returns the realm roles granted to user (realm_access.roles)
// that exist in the directory. Client roles are never included; see
// ClientRolesOf.
func (r *Resolver) RolesOf(ctx context.Context, user *oauth.User) (List[Role], error) {
	names := realmRoleNames(user.Claims)
	refs := make([]Reference, 0, len(names))
	for _, name := range names {
		refs = append(refs, ByName(name))
	}
	return r.dir.Roles.GetAllInRefList(ctx, refs)
}

// ClientRolesOf returns the names in resource_access.<client>.roles for
// the directory's client. Client roles live in their own namespace and
// are read from the token only.
func (r *Resolver) ClientRolesOf(user *oauth.User) []string {
	return clientRoleNames(user.Claims, r.dir.clientID)
}

// GroupsOf returns the groups listed in the user's groups claim. Full
// paths are matched exactly. A plain name is accepted only when a single
// group carries it; ambiguous names are dropped.
func (r *Resolver) GroupsOf(ctx context.Context, user *oauth.User) (List[Group], error) {
	names, _ := user.Claims.Strings("groups")
	refs := make([]Reference, 0, len(names))
	var plain []string
	for _, name := range names {
		switch {
		case strings.HasPrefix(name, "/"):
			refs = append(refs, ByName(name))
		case name != "":
			plain = append(plain, name)
		}
	}
	if len(plain) > 0 {
		paths, err := r.pathsOf(ctx, plain)
		if err != nil {
			return NewList[Group](), err
		}
		refs = append(refs, paths...)
	}
	return r.dir.Groups.GetAllInRefList(ctx, refs)
}

// pathsOf maps plain group names to path references.
func (r *Resolver) pathsOf(ctx context.Context, names []string) ([]Reference, error) {
	all, err := r.dir.Groups.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string][]string)
	for g := range all.All() {
		byName[g.Name] = append(byName[g.Name], g.Path)
	}

	refs := make([]Reference, 0, len(names))
	for _, name := range names {
		switch paths := byName[name]; len(paths) {
		case 0:
		case 1:
			refs = append(refs, ByName(paths[0]))
		default:
			zerolog.Ctx(ctx).Debug().
				Str("group", name).
				Strs("paths", paths).
				Msg("ambiguous group name in claim ignored")
		}
	}
	return refs, nil
}

// InGroup reports whether user is a member of the referenced group or of
// any of its descendants. A plain-name ref selects the first group with
// that name in hierarchy order; pass a full path when names repeat.
func (r *Resolver) InGroup(ctx context.Context, user *oauth.User, ref Reference) (bool, error) {
	target, ok, err := r.dir.Groups.GetOne(ctx, ref)
	if err != nil || !ok {
		return false, err
	}

	member, err := r.GroupsOf(ctx, user)
	if err != nil {
		return false, err
	}
	if member.Len() == 0 {
		return false, nil
	}

	h, err := r.dir.Groups.Hierarchy(ctx)
	if err != nil {
		return false, err
	}
	accepted := map[uuid.UUID]struct{}{target.ID: {}}
	for g := range h.Descendants(target.ID) {
		accepted[g.ID] = struct{}{}
	}

	for g := range member.All() {
		if _, ok := accepted[g.ID]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasRole reports whether user holds any of the referenced realm roles.
func (r *Resolver) HasRole(ctx context.Context, user *oauth.User, refs ...Reference) (bool, error) {
	roles, err := r.RolesOf(ctx, user)
	if err != nil {
		return false, err
	}
	return roles.Contains(refs...), nil
}

// HasClientRole reports whether user holds any of the named client roles.
func (r *Resolver) HasClientRole(user *oauth.User, names ...string) bool {
	held := r.ClientRolesOf(user)
	for _, name := range names {
		if name != "" && slices.Contains(held, name) {
			return true
		}
	}
	return false
}

func realmRoleNames(claims oauth.ClaimSet) []string {
	realm, ok := claims.Map("realm_access")
	if !ok {
		return nil
	}
	roles, _ := realm.Strings("roles")
	return roles
}

// clientRoleNames walks the nested maps explicitly since client ids may
// contain dots.
func clientRoleNames(claims oauth.ClaimSet, clientID string) []string {
	if clientID == "" {
		return nil
	}
	resources, ok := claims.Map("resource_access")
	if !ok {
		return nil
	}
	client, ok := resources.Map(clientID)
	if !ok {
		return nil
	}
	roles, _ := client.Strings("roles")
	return roles
}
