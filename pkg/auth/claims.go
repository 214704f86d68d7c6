package auth

import "github.com/golang-jwt/jwt/v5"

// MemberClaims is the bearer token the identity provider issues to members.
// Subject carries the provider's stable user id.
type MemberClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone_number,omitempty"`
	jwt.RegisteredClaims
}

// MemberTokenPayload captures the data available when minting a token locally.
type MemberTokenPayload struct {
	Subject string
	Email   string
	Name    string
	Phone   string
}
