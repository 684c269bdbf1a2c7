package user

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultUsers returns the demo accounts the platform starts with.
func DefaultUsers() []User {
	return []User{
		{
			ID:            "rider_1",
			Name:          "Alice Rider",
			Email:         "alice@gocab.com",
			Role:          RoleRider,
			Avatar:        "https://api.dicebear.com/7.x/avataaars/svg?seed=Alice",
			Rating:        ptr(4.8),
			WalletBalance: ptr(45.50),
			TotalTrips:    ptr(12),
		},
		{
			ID:            "driver_1",
			Name:          "Bob Driver",
			Email:         "bob@gocab.com",
			Role:          RoleDriver,
			Avatar:        "https://api.dicebear.com/7.x/avataaars/svg?seed=Bob",
			Rating:        ptr(4.9),
			IsOnline:      ptr(false),
			WalletBalance: ptr(120.00),
			TotalTrips:    ptr(345),
		},
		{
			ID:     "admin_1",
			Name:   "Super Admin",
			Email:  "admin@gocab.com",
			Role:   RoleSuperAdmin,
			Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Admin",
		},
	}
}

type seedFile struct {
	Users []User `yaml:"users"`
}

// LoadSeedFile reads a YAML document with a top-level "users" list.
func LoadSeedFile(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i, u := range f.Users {
		if u.ID == "" || u.Email == "" {
			return nil, fmt.Errorf("seed user %d: id and email are required", i)
		}
		if !u.Role.Valid() {
			return nil, fmt.Errorf("seed user %s: unknown role %q", u.ID, u.Role)
		}
	}
	return f.Users, nil
}

func ptr[T any](v T) *T {
	return &v
}
