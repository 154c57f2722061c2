package alarm

import "fmt"

// BackgroundRegistrationError means alarms only fire while the app is in the
// foreground.
type BackgroundRegistrationError struct {
	Err error
}

func (e *BackgroundRegistrationError) Error() string {
	return fmt.Sprintf("alarm: background registration failed: %v", e.Err)
}

func (e *BackgroundRegistrationError) Unwrap() error {
	return e.Err
}
