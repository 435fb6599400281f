package domain

import "time"

// Role is a capability granted to a shop account.
type Role string

const (
	RoleShop   Role = "SHOP"
	RoleWriter Role = "WRITER"
	RoleEditor Role = "EDITOR"
	RoleAdmin  Role = "ADMIN"
)

type ShopStatus string

const (
	ShopActive   ShopStatus = "active"
	ShopInactive ShopStatus = "inactive"
)

type Shop struct {
	ID           string
	Name         string
	Email        string // normalized lower-case, unique
	PasswordHash string // PHC argon2id, or legacy bcrypt
	Status       ShopStatus
	Verified     bool
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ShopSummary is the public projection returned to clients.
type ShopSummary struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s Shop) Summary() ShopSummary {
	return ShopSummary{ID: s.ID, Name: s.Name, Email: s.Email}
}
