package app

import "github.com/google/uuid"

// newID produces a random record identifier.
func newID() string {
	return uuid.NewString()
}
