// Package core defines the shared conversational vocabulary (Content, Part,
// function calls and responses) exchanged between the director engine, the
// model adapters and participant tools.
package core
