package common

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	PrefixLength = 4
)

// RoleType defines the portal role an actor holds.
type RoleType string

const (
	RoleStudent RoleType = "student"
	RoleStaff   RoleType = "staff"
)

var rolePrefixes = map[RoleType]string{
	RoleStudent: "st__",
	RoleStaff:   "sf__",
}

// Actor represents a portal account that maps to a chat user id.
type Actor struct {
	Id   int64
	Role RoleType
}

// ToIMUserId converts an Actor to the chat system's string user id.
//
//	Actor{Id: 42, Role: RoleStudent}.ToIMUserId()  => "st__42"
//	Actor{Id: 7, Role: RoleStaff}.ToIMUserId()     => "sf__7"
func (a *Actor) ToIMUserId() (string, error) {
	prefix, ok := rolePrefixes[a.Role]
	if !ok {
		return "", fmt.Errorf("failed to transfer actor to user id, type: %s", a.Role)
	}
	if a.Id <= 0 {
		return "", fmt.Errorf("failed to transfer actor to user id, id: %d", a.Id)
	}
	return fmt.Sprintf("%s%d", prefix, a.Id), nil
}

// FromIMUserId parses a chat user id string back into an Actor.
// Returns an error if the format is unrecognised.
func (a *Actor) FromIMUserId(userId string) error {
	if a == nil {
		return fmt.Errorf("actor is nil")
	}
	if len(userId) < PrefixLength+1 {
		return fmt.Errorf("invalid userId: %q", userId)
	}
	prefix := userId[:PrefixLength]
	idStr := userId[PrefixLength:]

	var role RoleType
	for r, p := range rolePrefixes {
		if p == prefix {
			role = r
			break
		}
	}
	if role == "" {
		return fmt.Errorf("unknown prefix: %q", prefix)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid id: %q", idStr)
	}
	a.Id = id
	a.Role = role
	return nil
}

// IsIMUserId reports whether s is a well-formed chat user id.
func IsIMUserId(s string) bool {
	var a Actor
	return a.FromIMUserId(s) == nil
}

// NormalizeIdentifier canonicalises a human-entered portal identifier
// (student or staff number). Matching is case-insensitive and ignores
// surrounding whitespace. Identifiers with inner whitespace are rejected.
func NormalizeIdentifier(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty identifier")
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("invalid identifier: %q", raw)
	}
	return strings.ToUpper(s), nil
}
