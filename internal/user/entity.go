// AngelaMos | 2026
// entity.go

package user

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carterperez-dev/authcore/internal/auth"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Roles is a set of role identifiers stored as a JSONB column.
type Roles []string

func (r Roles) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *Roles) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	case nil:
		*r = nil
		return nil
	default:
		return fmt.Errorf("scan roles: unsupported type %T", src)
	}
}

func (r Roles) Has(role string) bool {
	for _, candidate := range r {
		if candidate == role {
			return true
		}
	}
	return false
}

type User struct {
	ID            string     `db:"id"`
	TenantID      string     `db:"tenant_id"`
	Email         string     `db:"email"`
	PasswordHash  string     `db:"password_hash"`
	Name          string     `db:"name"`
	Roles         Roles      `db:"roles"`
	Status        string     `db:"status"`
	EmailVerified bool       `db:"email_verified"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	DeletedAt     *time.Time `db:"deleted_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil || u.Status == auth.StatusDeleted
}

func (u *User) IsActive() bool {
	return u.Status == auth.StatusActive
}

func (u *User) IsAdmin() bool {
	return u.Roles.Has(RoleAdmin)
}

// rolePermissions is the static role grant table; permission evaluation
// itself happens downstream, the token core only stamps the claim.
var rolePermissions = map[string][]string{
	RoleUser: {
		"profile:read",
		"profile:write",
	},
	RoleAdmin: {
		"profile:read",
		"profile:write",
		"users:read",
		"users:write",
		"admin:ops",
	},
}

// PermissionsFor flattens role grants into a deduplicated permission list.
func PermissionsFor(roles []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, role := range roles {
		for _, perm := range rolePermissions[role] {
			if _, ok := seen[perm]; ok {
				continue
			}
			seen[perm] = struct{}{}
			out = append(out, perm)
		}
	}
	return out
}
