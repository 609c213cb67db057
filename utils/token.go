package utils

import "github.com/google/uuid"

// CreateToken returns an opaque random token for refresh-token storage.
func CreateToken() string {
	firstUUID, err := uuid.NewUUID()
	if err != nil {
		return ""
	}

	secondUUID, err := uuid.NewUUID()
	if err != nil {
		return ""
	}

	return firstUUID.String() + secondUUID.String()
}
