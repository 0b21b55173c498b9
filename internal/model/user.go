// Package model defines the data structures used throughout the application.
package model

import (
	"time"

	"github.com/rs/xid"
)

// UserRegistration is the body of POST /users/. It is never persisted as-is:
// the password pair is checked, hashed and dropped.
type UserRegistration struct {
	Email           string  `json:"email"            validate:"required,email"`
	Password        string  `json:"password"         validate:"required,max=72"`
	PasswordConfirm string  `json:"password_confirm" validate:"required"`
	Name            string  `json:"name"             validate:"required,max=200"`
	DisplayName     *string `json:"display_name"     validate:"omitempty,max=200"`
	PhotoURL        *string `json:"photo_url"        validate:"omitempty,url"`
	PhoneNumber     *string `json:"phone_number"     validate:"omitempty,phone"`
}

// SignInRequest is the body of POST /users/sign-in/.
type SignInRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// StoredUser is the persisted user record.
//
// ID is the storage-native identifier: a 12-byte xid assigned by the
// repository on Create. Outside the repository package it should only be
// observed through repository.ToPublic, which renders it as a string.
type StoredUser struct {
	ID             xid.ID
	Email          string
	HashedPassword string
	Name           string
	DisplayName    *string
	PhotoURL       *string
	PhoneNumber    *string
	CreatedAt      time.Time
}

// PublicUser is what callers and clients see: StoredUser minus the hash,
// with the id normalized to a string.
type PublicUser struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	DisplayName *string `json:"display_name"`
	PhotoURL    *string `json:"photo_url"`
	PhoneNumber *string `json:"phone_number"`
}
