package tracking

import "fmt"

// PermissionError is returned by Start when location access was declined.
type PermissionError struct {
	Scope  string
	Status Permission
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tracking: %s location permission: %v", e.Scope, e.Err)
	}
	return fmt.Sprintf("tracking: %s location permission %s", e.Scope, e.Status)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}
