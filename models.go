package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record owned by the store.
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name              string     `bun:"name,notnull" json:"name"`
	Email             string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash      string     `bun:"password_hash,notnull" json:"-"`
	Role              Role       `bun:"role,notnull,type:varchar(16)" json:"role"`
	IsVerified        bool       `bun:"is_verified,notnull" json:"isVerified"`
	IsActive          bool       `bun:"is_active,notnull" json:"isActive"`
	VerificationToken string     `bun:"verification_token,nullzero,unique" json:"-"`
	ResetToken        string     `bun:"reset_token,nullzero,unique" json:"-"`
	ResetTokenExpiry  *time.Time `bun:"reset_token_expiry,nullzero" json:"-"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updatedAt,omitempty"`
}

// SessionSubject returns the claims subject for u.
func (u *User) SessionSubject() SessionSubject {
	return SessionSubject{
		UserID: u.ID.String(),
		Email:  u.Email,
		Role:   u.Role,
	}
}

// Recipient returns the notification addressee for u.
func (u *User) Recipient() Recipient {
	return Recipient{Email: u.Email, Name: u.Name}
}

// VerificationState reports where u is in the verification lifecycle.
func (u *User) VerificationState() VerificationState {
	if u.IsVerified {
		return StateVerified
	}
	return StateUnverified
}

func prepareUserDefaults(u *User) {
	if u == nil {
		return
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role.IsZero() {
		u.Role = RoleUser
	}
	now := time.Now().UTC()
	if u.CreatedAt == nil {
		u.CreatedAt = &now
	}
	if u.UpdatedAt == nil {
		u.UpdatedAt = &now
	}
}
