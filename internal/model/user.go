package model

import (
	"slices"
	"strings"
	"time"
)

// UserStatus indicates whether an account is in use.
type UserStatus string

// User status constants.
const (
	UserActive   UserStatus = "Active"
	UserDisabled UserStatus = "Disabled"
)

// TravelSettings lets a user suppress location risk for places they have
// declared ahead of a trip. The zero value is the default for unknown users.
type TravelSettings struct {
	TrustedLocations  []string `json:"TrustedLocations"`
	TravelModeEnabled bool     `json:"TravelMode"`
}

// Trusts reports whether location was declared by the user.
func (s TravelSettings) Trusts(location string) bool {
	location = strings.TrimSpace(location)
	if location == "" {
		return false
	}
	return slices.Contains(s.TrustedLocations, location)
}

// User is a cardholder who receives fraud alerts.
type User struct {
	CreatedAt time.Time  `json:"Created_at"`
	ID        string     `json:"User_ID"`
	FirstName string     `json:"First_Name"`
	LastName  string     `json:"Last_Name"`
	Email     string     `json:"Email"`
	Phone     string     `json:"Phone_Number"`
	Location  string     `json:"Location"`
	Status    UserStatus `json:"Status"`
	Travel    TravelSettings
}
