package database

import "github.com/google/uuid"

// GenerateID returns a random RFC 4122 version 4 identifier
func GenerateID() string {
	return uuid.NewString()
}
