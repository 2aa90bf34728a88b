package inventory

import "errors"

// Intent failures. Callers match them with errors.Is; returned errors carry
// extra context wrapped around one of these.
var (
	ErrNotFound        = errors.New("inventory: not found")
	ErrInvalidArgument = errors.New("inventory: invalid argument")
	ErrPolicyRejected  = errors.New("inventory: rejected by policy")
	ErrNoCapacity      = errors.New("inventory: no capacity")
)
