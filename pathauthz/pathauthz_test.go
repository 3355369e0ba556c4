package pathauthz

import (
	"testing"

	"github.com/radlab-io/authgate/claims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() *Policy {
	return &Policy{
		PublicPathPrefixes: []string{"/auth/login", "/health"},
		CarveOuts: []CarveOut{
			{Path: "/messages", Roles: []claims.Role{claims.RoleDoctor, claims.RoleReceptionist}},
		},
		RolePatterns: map[claims.Role][]string{
			claims.RoleDoctor: {
				"/dashboard",
				"/patients",
				"/api/patients",
				"/api/radiation-results/[id]",
			},
			claims.RoleReceptionist: {
				"/dashboard",
				"/patients",
				"/invoices",
			},
			claims.RoleLabTech: {
				"/dashboard",
				"/samples",
				"/api/radiation-results/[id]/readings",
			},
		},
	}
}

func newTestTable(t *testing.T) *Table {
	t.Helper()

	table, err := NewTable(testPolicy())
	require.NoError(t, err)

	return table
}

func TestTable_AdminAlwaysAllowed(t *testing.T) {
	table := newTestTable(t)

	for _, path := range []string{"/", "/dashboard", "/samples", "/api/anything/at/all", "/nonexistent"} {
		assert.True(t, table.IsAllowed(claims.RoleAdmin, path), "path %s", path)
	}
}

func TestTable_ExactAndPrefixMatch(t *testing.T) {
	table := newTestTable(t)

	assert.True(t, table.IsAllowed(claims.RoleDoctor, "/patients"))
	assert.True(t, table.IsAllowed(claims.RoleDoctor, "/patients/42"))
	assert.False(t, table.IsAllowed(claims.RoleDoctor, "/patientsextra"))
	assert.False(t, table.IsAllowed(claims.RoleDoctor, "/invoices"))
}

func TestTable_DynamicSegmentPattern(t *testing.T) {
	table := newTestTable(t)

	assert.True(t, table.IsAllowed(claims.RoleDoctor, "/api/radiation-results/abc123"))
	assert.False(t, table.IsAllowed(claims.RoleDoctor, "/api/radiation-results"))
	assert.False(t, table.IsAllowed(claims.RoleDoctor, "/api/radiation-results/abc123/readings"))

	assert.True(t, table.IsAllowed(claims.RoleLabTech, "/api/radiation-results/abc123/readings"))
	assert.False(t, table.IsAllowed(claims.RoleLabTech, "/api/radiation-results/abc123"))

	// No covering pattern or prefix for this role.
	assert.False(t, table.IsAllowed(claims.RoleReceptionist, "/api/radiation-results/abc123"))
}

func TestTable_ReceptionistCannotReachSamples(t *testing.T) {
	table := newTestTable(t)

	assert.False(t, table.IsAllowed(claims.RoleReceptionist, "/samples"))
	assert.True(t, table.IsAllowed(claims.RoleLabTech, "/samples"))
}

func TestTable_CarveOutBeforeGenericTable(t *testing.T) {
	table := newTestTable(t)

	assert.True(t, table.IsAllowed(claims.RoleDoctor, "/messages"))
	assert.True(t, table.IsAllowed(claims.RoleReceptionist, "/messages/inbox"))
	assert.False(t, table.IsAllowed(claims.RoleLabTech, "/messages"))
	assert.False(t, table.IsAllowed(claims.RolePatient, "/messages"))
}

func TestTable_IsPublic(t *testing.T) {
	table := newTestTable(t)

	assert.True(t, table.IsPublic("/auth/login"))
	assert.True(t, table.IsPublic("/auth/login/callback"))
	assert.True(t, table.IsPublic("/health"))
	assert.False(t, table.IsPublic("/auth/loginx"))
	assert.False(t, table.IsPublic("/dashboard"))
}

func TestTable_UpsertAndDeleteRolePattern(t *testing.T) {
	table := newTestTable(t)

	require.NoError(t, table.UpsertRolePattern(claims.RolePatient, "/my-results/[id]"))
	assert.True(t, table.IsAllowed(claims.RolePatient, "/my-results/77"))

	table.DeleteRolePattern(claims.RolePatient, "/my-results/[id]")
	assert.False(t, table.IsAllowed(claims.RolePatient, "/my-results/77"))
}

func TestTable_UpsertRejectsUnknownRole(t *testing.T) {
	table := newTestTable(t)

	assert.Error(t, table.UpsertRolePattern(claims.Role("SUPERUSER"), "/x"))
}

func TestTable_ReplacePolicySwapsAtomically(t *testing.T) {
	table := newTestTable(t)

	replacement := NewPolicy()
	replacement.RolePatterns[claims.RoleDoctor] = []string{"/only-this"}

	require.NoError(t, table.ReplacePolicy(replacement))

	assert.True(t, table.IsAllowed(claims.RoleDoctor, "/only-this"))
	assert.False(t, table.IsAllowed(claims.RoleDoctor, "/patients"))
	assert.False(t, table.IsPublic("/health"))
}

func TestPolicy_StableHash(t *testing.T) {
	first, err := testPolicy().ComputeStableHash()
	require.NoError(t, err)

	second, err := testPolicy().ComputeStableHash()
	require.NoError(t, err)

	assert.Equal(t, first, second)

	changed := testPolicy()
	changed.RolePatterns[claims.RolePatient] = []string{"/my-results"}

	third, err := changed.ComputeStableHash()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestCompilePattern_InvalidPatternStaysLiteral(t *testing.T) {
	// A bracket that is not a full placeholder segment is treated as
	// literal characters, not a wildcard.
	table, err := NewTable(&Policy{
		RolePatterns: map[claims.Role][]string{
			claims.RoleDoctor: {"/odd[path"},
		},
	})
	require.NoError(t, err)

	assert.True(t, table.IsAllowed(claims.RoleDoctor, "/odd[path"))
	assert.False(t, table.IsAllowed(claims.RoleDoctor, "/oddXpath"))
}
