package auth

import (
	"github.com/go-playground/validator/v10"

	"realtalk/errors"
)

var validate = validator.New()

type identityPayload struct {
	UserID      string `validate:"required,max=128"`
	DisplayName string `validate:"required,max=64"`
	PhotoRef    string `validate:"omitempty,max=512"`
}

// ValidateIdentity rejects assertions with missing or oversized fields
// before they ever reach a room.
func ValidateIdentity(claims *IdentityClaims) error {
	payload := identityPayload{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		PhotoRef:    claims.PhotoRef,
	}
	if err := validate.Struct(payload); err != nil {
		return errors.ValidationError{Reason: err}
	}
	return nil
}

// RoomPayload is what a client supplies to create a room.
type RoomPayload struct {
	Name        string `validate:"required,min=1,max=64"`
	Description string `validate:"max=256"`
	Visibility  string `validate:"required,oneof=public private"`
	Password    string `validate:"omitempty,min=4,max=72"`
}

func ValidateRoom(payload RoomPayload) error {
	if err := validate.Struct(payload); err != nil {
		return errors.ValidationError{Reason: err}
	}
	return nil
}
