package browser

import "errors"

// InitError wraps a failure to launch chromedriver, attach a WebDriver
// session, or apply the session's initial settings. By the time an
// InitError is returned, any partially started resources have been torn
// back down.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ShutdownError wraps a failure to quit the WebDriver session or stop the
// chromedriver process. The wrapper's references are already cleared when
// a ShutdownError is returned.
type ShutdownError struct {
	Err error
}

func (e *ShutdownError) Error() string {
	return e.Err.Error()
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}

// IsInitError returns true if the error chain contains an InitError.
func IsInitError(err error) bool {
	var ie *InitError
	return errors.As(err, &ie)
}

// IsShutdownError returns true if the error chain contains a ShutdownError.
func IsShutdownError(err error) bool {
	var se *ShutdownError
	return errors.As(err, &se)
}
