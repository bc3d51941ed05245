package duelerrors

import "errors"

// Engine sentinel errors. Used across the ws, matchmaking, match and storage
// packages to avoid circular imports.
var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrMatchNotActive    = errors.New("match is not active")
	ErrDuplicateSession  = errors.New("identity already has an active session")
	ErrAlreadyQueued     = errors.New("identity already in the waiting pool")
	ErrJudgeUnavailable  = errors.New("solution judge unavailable")
	ErrNoEligibleProblem = errors.New("no eligible problem in catalog")
)
