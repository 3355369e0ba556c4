package trustbundle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lestrrat-go/jwx/jwk"
	"github.com/radlab-io/authgate/authgateerrors"
)

const JWKS_ENDPOINT = ".well-known/jwks.json"

// Manager caches the identity provider's JWKS for credentials signed with
// asymmetric keys. Keys are fetched lazily on the first unknown key id.
type Manager struct {
	keySet  jwk.Set
	jwksURL string
	mu      sync.RWMutex
}

func NewManager(identityProviderURL string) *Manager {
	return &Manager{
		keySet:  jwk.NewSet(),
		jwksURL: strings.TrimSuffix(identityProviderURL, "/") + "/" + JWKS_ENDPOINT,
	}
}

func (m *Manager) GetJWK(ctx context.Context, keyID string) (jwk.Key, error) {
	m.mu.RLock()
	key, found := m.keySet.LookupKeyID(keyID)
	m.mu.RUnlock()

	if found {
		return key, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if key, found := m.keySet.LookupKeyID(keyID); found {
		return key, nil
	}

	if err := m.fetchAndUpdateKeys(ctx); err != nil {
		return nil, err
	}

	if key, found := m.keySet.LookupKeyID(keyID); found {
		return key, nil
	}

	return nil, authgateerrors.ErrInvalidKeyID
}

func (m *Manager) fetchAndUpdateKeys(ctx context.Context) error {
	set, err := jwk.Fetch(ctx, m.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to get JWKS: %w", err)
	}

	m.keySet = set

	return nil
}
