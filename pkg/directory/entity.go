// Package directory resolves roles, groups and users published by the
// identity provider.
//
// Each collection is fetched once per cache period through the two-tier
// cache and then scanned in memory. Groups are held as an arena of
// records pointing at their parent by id and are traversed depth-first.
package directory

import (
	"strings"

	"github.com/google/uuid"
)

// Entity is a directory record that can be matched by reference.
type Entity interface {
	Key() uuid.UUID
	Matches(ref Reference) bool
}

// Reference identifies an entity by id or by name. Group names starting
// with "/" are full paths. Group names need not be unique, so a plain
// name matches the first group carrying it in hierarchy order.
type Reference struct {
	ID   uuid.UUID
	Name string
}

// ByID references an entity by id.
func ByID(id uuid.UUID) Reference {
	return Reference{ID: id}
}

// ByName references a role by name, a user by username or a group by
// name or path.
func ByName(name string) Reference {
	return Reference{Name: name}
}

func (r Reference) String() string {
	if r.ID != uuid.Nil {
		return r.ID.String()
	}
	return r.Name
}

// Role is a realm role.
type Role struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (r Role) Key() uuid.UUID { return r.ID }

func (r Role) Matches(ref Reference) bool {
	if ref.ID != uuid.Nil {
		return ref.ID == r.ID
	}
	return ref.Name != "" && ref.Name == r.Name
}

// Group is a group record. ParentID is a relation only; the hierarchy is
// rebuilt from the flat records.
type Group struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	ParentID *uuid.UUID `json:"parentId,omitempty"`

	// Path is derived from the hierarchy and never persisted.
	Path string `json:"-"`
}

func (g Group) Key() uuid.UUID { return g.ID }

func (g Group) Matches(ref Reference) bool {
	switch {
	case ref.ID != uuid.Nil:
		return ref.ID == g.ID
	case strings.HasPrefix(ref.Name, "/"):
		return ref.Name == g.Path
	default:
		return ref.Name != "" && ref.Name == g.Name
	}
}

// User is a user record.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"name"`
}

func (u User) Key() uuid.UUID { return u.ID }

func (u User) Matches(ref Reference) bool {
	if ref.ID != uuid.Nil {
		return ref.ID == u.ID
	}
	return ref.Name != "" && ref.Name == u.Username
}

// entityID maps a provider id to a UUID. Ids that are not UUIDs get a
// stable name-based UUID.
func entityID(id string) uuid.UUID {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
}
