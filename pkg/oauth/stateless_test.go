package oauth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func TestStateless_EmptyTokenIsIdempotent(t *testing.T) {
	idp := &fakeIDP{}
	auth := newTestAuthenticator(t, testConfig(t, testingclock.NewFakePassiveClock(testNow)), idp)
	s := auth.Stateless()

	for _, raw := range []string{"", "", "   ", ""} {
		require.NoError(t, s.Authenticate(context.Background(), raw))
		_, ok := s.User()
		assert.False(t, ok)
		assert.False(t, s.Authenticated())
		assert.NoError(t, s.Err())
	}

	jwksCalls, _, _ := idp.calls()
	assert.Zero(t, jwksCalls, "an absent token never reaches the provider")
}

func TestStateless_BadTokenIsUnauthenticated(t *testing.T) {
	key := newTestKey(t, "k1")
	auth := newTestAuthenticator(t, testConfig(t, testingclock.NewFakePassiveClock(testNow)), &fakeIDP{jwks: jwksJSON(t, key)})
	s := auth.Stateless()

	require.NoError(t, s.Authenticate(context.Background(), "badtoken"))

	_, ok := s.User()
	assert.False(t, ok)
	_, ok = s.Token()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), ErrTokenValidation)
}

func TestStateless_ValidToken(t *testing.T) {
	key := newTestKey(t, "k1")
	auth := newTestAuthenticator(t, testConfig(t, testingclock.NewFakePassiveClock(testNow)), &fakeIDP{jwks: jwksJSON(t, key)})
	s := auth.Stateless()

	raw := key.token(t, testNow, time.Hour, nil)
	require.NoError(t, s.Authenticate(context.Background(), "  "+raw+"\n"))

	user, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, "alice", user.Username)

	ts, ok := s.Token()
	require.True(t, ok)
	assert.Equal(t, raw, ts.AccessToken())
	assert.Empty(t, ts.RefreshToken())

	// A later failure replaces the earlier result.
	require.NoError(t, s.Authenticate(context.Background(), "badtoken"))
	assert.False(t, s.Authenticated())
}

func TestStateless_ExpiredToken(t *testing.T) {
	key := newTestKey(t, "k1")
	auth := newTestAuthenticator(t, testConfig(t, testingclock.NewFakePassiveClock(testNow)), &fakeIDP{jwks: jwksJSON(t, key)})
	s := auth.Stateless()

	require.NoError(t, s.Authenticate(context.Background(), key.token(t, testNow.Add(-2*time.Hour), time.Hour, nil)))
	assert.False(t, s.Authenticated())
	assert.ErrorIs(t, s.Err(), ErrExpiredToken)
}

func TestStateless_ProviderFailureIsReturned(t *testing.T) {
	key := newTestKey(t, "k1")
	idp := &fakeIDP{jwksErr: &ProviderError{Op: "fetch_jwks", StatusCode: 502}}
	auth := newTestAuthenticator(t, testConfig(t, testingclock.NewFakePassiveClock(testNow)), idp)
	s := auth.Stateless()

	err := s.Authenticate(context.Background(), key.token(t, testNow, time.Hour, nil))
	assert.ErrorIs(t, err, ErrProviderCommunication)
	assert.False(t, s.Authenticated())
}

func TestStateless_UnusableKeySetIsProviderFailure(t *testing.T) {
	key := newTestKey(t, "k1")
	idp := &fakeIDP{jwks: json.RawMessage(`{"keys": "not-a-list"}`)}
	auth := newTestAuthenticator(t, testConfig(t, testingclock.NewFakePassiveClock(testNow)), idp)
	s := auth.Stateless()

	err := s.Authenticate(context.Background(), key.token(t, testNow, time.Hour, nil))
	assert.ErrorIs(t, err, ErrProviderCommunication)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "fetch_jwks", pe.Op)
	assert.False(t, s.Authenticated())
	assert.NoError(t, s.Err(), "the token itself was never judged")
}
