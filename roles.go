package identity

import (
	"database/sql/driver"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Role is the closed set of roles an identity can hold. Values outside
// RoleAdmin and RoleUser can only be produced as the zero Role, which no
// guard accepts.
type Role struct {
	name string
}

var (
	// RoleAdmin can manage other identities.
	RoleAdmin = Role{name: "ADMIN"}
	// RoleUser is the default role for registered identities.
	RoleUser = Role{name: "USER"}
)

// ErrInvalidRole is returned when decoding an unknown role name.
var ErrInvalidRole = goerrors.New("invalid role", goerrors.CategoryValidation).
	WithTextCode(string(KindValidation)).
	WithCode(goerrors.CodeBadRequest)

// ParseRole decodes a wire or storage value. Matching is case insensitive.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case RoleAdmin.name:
		return RoleAdmin, nil
	case RoleUser.name:
		return RoleUser, nil
	}
	return Role{}, ErrInvalidRole
}

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleUser}
}

func (r Role) String() string {
	return r.name
}

// IsZero reports whether r is the unset role.
func (r Role) IsZero() bool {
	return r.name == ""
}

func (r Role) MarshalText() ([]byte, error) {
	if r.IsZero() {
		return nil, ErrInvalidRole
	}
	return []byte(r.name), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value implements driver.Valuer
func (r Role) Value() (driver.Value, error) {
	if r.IsZero() {
		return nil, ErrInvalidRole
	}
	return r.name, nil
}

// Scan implements sql.Scanner
func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	case nil:
		*r = Role{}
		return nil
	}
	return fmt.Errorf("identity: cannot scan %T into Role", src)
}

// RoleSet is a fixed set of roles used by guards.
type RoleSet struct {
	admin bool
	user  bool
}

// NewRoleSet builds a set from the given roles. The zero Role is ignored.
func NewRoleSet(roles ...Role) RoleSet {
	var set RoleSet
	for _, r := range roles {
		switch r {
		case RoleAdmin:
			set.admin = true
		case RoleUser:
			set.user = true
		}
	}
	return set
}

// Contains reports whether r is a member of the set.
func (s RoleSet) Contains(r Role) bool {
	switch r {
	case RoleAdmin:
		return s.admin
	case RoleUser:
		return s.user
	}
	return false
}

// IsEmpty reports whether no role is a member.
func (s RoleSet) IsEmpty() bool {
	return !s.admin && !s.user
}
