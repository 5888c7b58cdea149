// Package models defines the records stored by the customers and cart
// services and their JSON wire shapes. Field tags match the response
// bodies: timestamps are RFC 3339 and money is a string with two
// decimals.
package models

import (
	"time"
)

// User is a customers account. The password hash never leaves the
// service.
type User struct {
	ID           int64     `json:"id"`
	Created      time.Time `json:"created"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	IsAdmin      bool      `json:"is_admin"`
	PasswordHash string    `json:"-"`
}

// UserRef is the short user form returned at login.
type UserRef struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Ref returns the short form of u.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Email: u.Email}
}

// LoginResult is the body of a successful login. Token already carries
// the "Bearer " prefix.
type LoginResult struct {
	Token string  `json:"token"`
	User  UserRef `json:"user"`
}

// Product is a catalog entry.
type Product struct {
	ID          int64     `json:"id"`
	Created     time.Time `json:"created"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       Money     `json:"price"`
}

// CartItem is one product line in a cart. CartID is the owning user's id.
type CartItem struct {
	ID        int64     `json:"id"`
	Created   time.Time `json:"created"`
	CartID    int64     `json:"cart_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// Cart is the response body for every cart operation: the lines and
// their total.
type Cart struct {
	UserID     int64      `json:"user_id"`
	TotalPrice Money      `json:"total_price"`
	CartItems  []CartItem `json:"cart_items"`
}

// NewCart returns a cart view. A nil items slice renders as [].
func NewCart(userID int64, total Money, items []CartItem) Cart {
	if items == nil {
		items = []CartItem{}
	}
	return Cart{UserID: userID, TotalPrice: total, CartItems: items}
}
