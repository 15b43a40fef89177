package main

import "errors"

var (
	// ErrUnauthorized is returned when a caller other than the owner creates a puzzle.
	ErrUnauthorized = errors.New("only the owner may call this method")
	// ErrDuplicateKey is returned when a puzzle with the same solution hash exists.
	ErrDuplicateKey = errors.New("puzzle with that key already exists")
	// ErrNotFound is returned when a guess hashes to no known puzzle. Wrong and
	// malformed guesses are indistinguishable.
	ErrNotFound = errors.New("not the correct answer")
	// ErrAlreadySolved is returned for any submission against a solved puzzle.
	ErrAlreadySolved = errors.New("puzzle already solved")
	// ErrCorruptIndex means the unsolved index references a missing puzzle.
	// It is never expected in a healthy registry and is not recoverable.
	ErrCorruptIndex = errors.New("unsolved index references a missing puzzle")
)

// Stable error codes used on the wire.
const (
	CodeUnauthorized  = "ERR_UNAUTHORIZED"
	CodeDuplicateKey  = "ERR_DUPLICATE_KEY"
	CodeNotFound      = "ERR_NOT_CORRECT_ANSWER"
	CodeAlreadySolved = "ERR_PUZZLE_SOLVED"
	CodeCorruptIndex  = "ERR_LOADING_PUZZLE"
	CodeInternal      = "ERR_INTERNAL"
)

// CodeOf maps an error to its wire code.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrDuplicateKey):
		return CodeDuplicateKey
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadySolved):
		return CodeAlreadySolved
	case errors.Is(err, ErrCorruptIndex):
		return CodeCorruptIndex
	}
	return CodeInternal
}
