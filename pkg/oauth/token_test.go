package oauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenSet_ExpiryFromAccessToken(t *testing.T) {
	key := newTestKey(t, "k1")
	access := key.token(t, testNow, 5*time.Minute, nil)
	id := key.token(t, testNow, time.Hour, jwt.MapClaims{"email": "alice@example.com"})

	ts, err := NewTokenSet(access, "refresh", id)
	require.NoError(t, err)

	assert.Equal(t, testNow.Add(5*time.Minute).Unix(), ts.ExpiresAt().Unix())
	assert.True(t, ts.Refreshable())

	email, ok := ts.Claims().String("email")
	assert.True(t, ok, "claims come from the id token")
	assert.Equal(t, "alice@example.com", email)
}

func TestNewTokenSet_RequiresExp(t *testing.T) {
	key := newTestKey(t, "k1")
	noExp := key.sign(t, jwt.MapClaims{"sub": testSubject})

	_, err := NewTokenSet(noExp, "", "")
	assert.ErrorIs(t, err, ErrInvalidClaims)
	assert.ErrorIs(t, err, ErrTokenValidation)

	_, err = NewTokenSet("", "", "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = NewTokenSet("not-a-jwt", "", "")
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestTokenSet_ExpiryWindows(t *testing.T) {
	key := newTestKey(t, "k1")
	ts, err := NewTokenSet(key.token(t, testNow, time.Minute, nil), "", "")
	require.NoError(t, err)

	assert.False(t, ts.Expired(testNow))
	assert.True(t, ts.Expired(testNow.Add(time.Minute)))
	assert.False(t, ts.ExpiresWithin(testNow, 30*time.Second))
	assert.True(t, ts.ExpiresWithin(testNow.Add(31*time.Second), 30*time.Second))
}

func TestTokenSet_JSONRoundTrip(t *testing.T) {
	key := newTestKey(t, "k1")
	ts, err := NewTokenSet(key.token(t, testNow, time.Minute, nil), "r", key.token(t, testNow, time.Minute, nil))
	require.NoError(t, err)

	data, err := ts.MarshalJSON()
	require.NoError(t, err)

	decoded, err := UnmarshalTokenSet(data)
	require.NoError(t, err)
	assert.Equal(t, ts.AccessToken(), decoded.AccessToken())
	assert.Equal(t, ts.RefreshToken(), decoded.RefreshToken())
	assert.Equal(t, ts.IDToken(), decoded.IDToken())
	assert.True(t, ts.ExpiresAt().Equal(decoded.ExpiresAt()))

	_, err = UnmarshalTokenSet([]byte("{"))
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestTokenSet_ClaimsAreCopied(t *testing.T) {
	key := newTestKey(t, "k1")
	ts, err := NewTokenSet(key.token(t, testNow, time.Minute, nil), "", "")
	require.NoError(t, err)

	claims := ts.Claims()
	claims["sub"] = "changed"

	sub, _ := ts.Claims().String("sub")
	assert.Equal(t, testSubject, sub)
}

func TestClaimSet_Lookups(t *testing.T) {
	claims := ClaimSet{
		"name":     "Alice",
		"verified": true,
		"age":      float64(42),
		"groups":   []any{"/a", "/a/b"},
		"single":   "one",
		"realm_access": map[string]any{
			"roles": []any{"admin", "user"},
		},
		"mixed": []any{"x", 1.0},
	}

	s, ok := claims.String("name")
	assert.True(t, ok)
	assert.Equal(t, "Alice", s)

	_, ok = claims.String("age")
	assert.False(t, ok, "mistyped claims report absent")

	b, ok := claims.Bool("verified")
	assert.True(t, ok)
	assert.True(t, b)

	n, ok := claims.Int64("age")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	groups, ok := claims.Strings("groups")
	assert.True(t, ok)
	assert.Equal(t, []string{"/a", "/a/b"}, groups)

	single, ok := claims.Strings("single")
	assert.True(t, ok)
	assert.Equal(t, []string{"one"}, single)

	_, ok = claims.Strings("mixed")
	assert.False(t, ok)

	roles, ok := claims.LookupStrings("realm_access.roles")
	assert.True(t, ok)
	assert.Equal(t, []string{"admin", "user"}, roles)

	_, ok = claims.Lookup("realm_access.missing")
	assert.False(t, ok)
	_, ok = claims.Lookup("name.deeper")
	assert.False(t, ok)

	_, ok = claims.Get("missing")
	assert.False(t, ok)
}

func TestNewUser(t *testing.T) {
	key := newTestKey(t, "k1")

	t.Run("uuid subject", func(t *testing.T) {
		ts, err := NewTokenSet(key.token(t, testNow, time.Minute, jwt.MapClaims{"email": "a@example.com"}), "", "")
		require.NoError(t, err)

		user, err := NewUser(ts)
		require.NoError(t, err)
		assert.Equal(t, uuid.MustParse(testSubject), user.ID)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "a@example.com", user.Email())
	})

	t.Run("opaque subject maps to stable uuid", func(t *testing.T) {
		claims := jwt.MapClaims{"sub": "auth0|12345", "preferred_username": ""}
		ts, err := NewTokenSet(key.token(t, testNow, time.Minute, claims), "", "")
		require.NoError(t, err)

		first, err := NewUser(ts)
		require.NoError(t, err)
		second, err := NewUser(ts)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceURL, []byte(testIssuer+"|auth0|12345")), first.ID)
		assert.Equal(t, "auth0|12345", first.Username, "username falls back to sub")
	})

	t.Run("missing subject", func(t *testing.T) {
		ts, err := NewTokenSet(key.sign(t, jwt.MapClaims{"exp": testNow.Add(time.Minute).Unix()}), "", "")
		require.NoError(t, err)

		_, err = NewUser(ts)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})
}
