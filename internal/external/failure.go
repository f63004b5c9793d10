package external

import "fmt"

// Failure is the error every Facade operation returns. Reason is the
// human-readable cause and is shown to the user verbatim.
type Failure struct {
	Op     string
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("external: %s: %s", f.Op, f.Reason)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

func fail(op, reason string, err error) *Failure {
	if reason == "" {
		if err != nil {
			reason = err.Error()
		} else {
			reason = "unknown error"
		}
	}
	return &Failure{Op: op, Reason: reason, Err: err}
}
