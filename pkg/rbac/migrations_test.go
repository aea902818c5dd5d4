package rbac

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreOrdered(t *testing.T) {
	migrations := Migrations()
	require.NotEmpty(t, migrations)

	seen := make(map[int]bool)
	last := 0
	for _, m := range migrations {
		assert.Greater(t, m.Version, last, "versions must be strictly ascending")
		assert.False(t, seen[m.Version], "version %d appears twice", m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, strings.TrimSpace(m.SQL))
		seen[m.Version] = true
		last = m.Version
	}
}

func TestMigrationsCreateAssignmentUniqueness(t *testing.T) {
	var found bool
	for _, m := range Migrations() {
		if strings.Contains(m.SQL, "idx_assignments_unique") {
			found = true
			assert.Contains(t, m.SQL, "COALESCE", "the unique index must collapse NULL scope ids")
		}
	}
	assert.True(t, found, "assignment uniqueness index missing from migrations")
}
