package user

import (
	"time"
)

type Role string

const (
	RoleRider      Role = "RIDER"
	RoleDriver     Role = "DRIVER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether the role may see platform-wide metrics.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User is a rider, driver or administrator of the platform.
type User struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Role   Role   `json:"role" yaml:"role"`
	Avatar string `json:"avatar" yaml:"avatar"`

	Rating        *float64 `json:"rating,omitempty" yaml:"rating,omitempty"`
	WalletBalance *float64 `json:"walletBalance,omitempty" yaml:"walletBalance,omitempty"`
	// IsOnline is only meaningful for drivers.
	IsOnline   *bool `json:"isOnline,omitempty" yaml:"isOnline,omitempty"`
	TotalTrips *int  `json:"totalTrips,omitempty" yaml:"totalTrips,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Online reports the online flag, treating an unset flag as offline.
func (u User) Online() bool {
	return u.IsOnline != nil && *u.IsOnline
}
