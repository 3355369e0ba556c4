package claims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, role := range RoleList {
		parsed, err := ParseRole(string(role))
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
	}

	_, err := ParseRole("SUPERUSER")
	assert.Error(t, err)

	_, err = ParseRole("admin")
	assert.Error(t, err, "roles are case sensitive")
}

func TestIdentityKey(t *testing.T) {
	anonymous := Identity{Host: "radlab.example", Path: "/dashboard"}
	assert.Equal(t, "radlab.example|/dashboard|anonymous", anonymous.Key())

	known := Identity{Host: "radlab.example", Path: "/dashboard", Subject: "user-1"}
	assert.Equal(t, "radlab.example|/dashboard|user-1", known.Key())

	assert.NotEqual(t, anonymous.Key(), known.Key())
}
