// AngelaMos | 2026
// entity_test.go

package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/authcore/internal/auth"
)

func TestRolesScanValue(t *testing.T) {
	roles := Roles{RoleUser, RoleAdmin}

	value, err := roles.Value()
	require.NoError(t, err)

	var decoded Roles
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, roles, decoded)

	var fromString Roles
	require.NoError(t, fromString.Scan(`["user"]`))
	assert.Equal(t, Roles{"user"}, fromString)

	var fromNil Roles
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	var bad Roles
	assert.Error(t, bad.Scan(42))
}

func TestPermissionsFor(t *testing.T) {
	perms := PermissionsFor([]string{RoleUser, RoleAdmin})

	assert.Contains(t, perms, "profile:read")
	assert.Contains(t, perms, "admin:ops")

	seen := make(map[string]int)
	for _, p := range perms {
		seen[p]++
	}
	for p, n := range seen {
		assert.Equal(t, 1, n, "permission %s duplicated", p)
	}

	assert.Empty(t, PermissionsFor(nil))
	assert.Empty(t, PermissionsFor([]string{"unknown-role"}))
}

func TestUserStatusHelpers(t *testing.T) {
	u := &User{Status: auth.StatusActive, Roles: Roles{RoleAdmin}}
	assert.True(t, u.IsActive())
	assert.True(t, u.IsAdmin())
	assert.False(t, u.IsDeleted())

	u.Status = auth.StatusDeleted
	assert.True(t, u.IsDeleted())
}
