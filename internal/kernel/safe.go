package kernel

import "fmt"

// runSafely executes fn and converts panics into returned errors tagged with scope.
// Lifecycle hooks and service disposal run through it so one faulty module cannot
// abort the rest of a shutdown.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: panic recovered: %v", scope, recovered)
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}
