package models

import (
	"strings"
	"time"
)

type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleAccountant UserRole = "accountant"
	RoleStaff      UserRole = "staff"
)

// Is compares roles case-insensitively.
func (r UserRole) Is(other UserRole) bool {
	return strings.EqualFold(string(r), string(other))
}

// CanVerify reports whether the role may approve or reject transactions.
func (r UserRole) CanVerify() bool {
	return r.Is(RoleAdmin) || r.Is(RoleAccountant)
}

func (r UserRole) Valid() bool {
	return r.Is(RoleAdmin) || r.Is(RoleAccountant) || r.Is(RoleStaff)
}

type User struct {
	ID           uint     `gorm:"primaryKey"`
	Branch       string   `gorm:"size:100"`
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	IsActive     bool     `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
