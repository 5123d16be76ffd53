package oauth

import (
	"fmt"

	"github.com/google/uuid"
)

// User is a read-only view over the identity claims of a TokenSet.
type User struct {
	// ID is the subject as a UUID. Subjects that are not UUIDs are mapped
	// to a stable name-based UUID derived from issuer and subject.
	ID uuid.UUID

	// Username is preferred_username, falling back to sub.
	Username string

	Claims ClaimSet
}

// NewUser derives a User from a TokenSet.
func NewUser(ts *TokenSet) (*User, error) {
	claims := ts.Claims()

	sub, _ := claims.String("sub")
	if sub == "" {
		return nil, fmt.Errorf("%w: sub claim is required", ErrInvalidClaims)
	}

	id, err := uuid.Parse(sub)
	if err != nil {
		iss, _ := claims.String("iss")
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(iss+"|"+sub))
	}

	username, _ := claims.String("preferred_username")
	if username == "" {
		username = sub
	}

	return &User{ID: id, Username: username, Claims: claims}, nil
}

// Email returns the email claim, or "".
func (u *User) Email() string {
	s, _ := u.Claims.String("email")
	return s
}

// Name returns the name claim, or "".
func (u *User) Name() string {
	s, _ := u.Claims.String("name")
	return s
}
