package domain

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"realtalk/errors"
)

// Visibility controls who may join a room.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Room is a namespace grouping messages and presence. Rooms are created
// through the service boundary and identified by opaque ids.
type Room struct {
	ID          uuid.UUID
	Name        string
	Description string
	Visibility  Visibility
	// PasswordHash is a bcrypt hash, set for private rooms only.
	PasswordHash []byte
	OwnerID      string
	OwnerName    string
	CreatedAt    time.Time
}

// NewRoom builds a room record, hashing the password for private rooms.
func NewRoom(name, description string, visibility Visibility, password, ownerID, ownerName string, now time.Time) (Room, error) {
	room := Room{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Visibility:  visibility,
		OwnerID:     ownerID,
		OwnerName:   ownerName,
		CreatedAt:   now,
	}
	if visibility == VisibilityPrivate {
		if password == "" {
			return Room{}, errors.ValidationError{Reason: errors.ErrBadPassword}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return Room{}, err
		}
		room.PasswordHash = hash
	}
	return room, nil
}

// CheckPassword verifies a join attempt. Public rooms always pass.
func (r Room) CheckPassword(password string) error {
	if r.Visibility != VisibilityPrivate {
		return nil
	}
	if bcrypt.CompareHashAndPassword(r.PasswordHash, []byte(password)) != nil {
		return errors.PermissionError{Reason: errors.ErrBadPassword}
	}
	return nil
}
