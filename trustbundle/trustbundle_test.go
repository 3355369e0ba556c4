package trustbundle

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lestrrat-go/jwx/jwk"
	"github.com/radlab-io/authgate/authgateerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jwksServer(t *testing.T, keyID string) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	publicJWK, err := jwk.New(privateKey.Public())
	require.NoError(t, err)
	require.NoError(t, publicJWK.Set(jwk.KeyIDKey, keyID))

	keySet := jwk.NewSet()
	keySet.Add(publicJWK)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/"+JWKS_ENDPOINT, r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(keySet))
	}))

	t.Cleanup(server.Close)

	return server, privateKey
}

func TestManager_FetchesKeyOnFirstLookup(t *testing.T) {
	server, _ := jwksServer(t, "key-1")

	manager := NewManager(server.URL)

	key, err := manager.GetJWK(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", key.KeyID())

	// Second lookup is served from the cached set.
	key, err = manager.GetJWK(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", key.KeyID())
}

func TestManager_UnknownKeyID(t *testing.T) {
	server, _ := jwksServer(t, "key-1")

	manager := NewManager(server.URL)

	_, err := manager.GetJWK(context.Background(), "key-2")
	assert.ErrorIs(t, err, authgateerrors.ErrInvalidKeyID)
}

func TestManager_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	manager := NewManager(server.URL)

	_, err := manager.GetJWK(context.Background(), "key-1")
	assert.Error(t, err)
}

func TestManager_TrailingSlashProviderURL(t *testing.T) {
	server, _ := jwksServer(t, "key-1")

	manager := NewManager(server.URL + "/")

	key, err := manager.GetJWK(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", key.KeyID())
}
