package core

import "github.com/google/uuid"

// NewID generates a new unique identifier usable for simulations, sessions
// and function call correlation.
func NewID() string { return uuid.NewString() }
