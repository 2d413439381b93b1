package objects

import "fmt"

// Error carries the failing routine, a human readable description and the
// PKCS#11 return value reported to the caller.
type Error struct {
	Who         string
	Description string
	Code        RV
	// Needed reports the required buffer size when Code is
	// CKR_BUFFER_TOO_SMALL.
	Needed int
}

func NewError(who, description string, code RV) *Error {
	return &Error{
		Who:         who,
		Description: description,
		Code:        code,
	}
}

// NewShortBufferError reports a recoverable short-buffer condition together
// with the size the caller must retry with.
func NewShortBufferError(who string, needed int) *Error {
	return &Error{
		Who:         who,
		Description: fmt.Sprintf("buffer too small, %d bytes required", needed),
		Code:        CKR_BUFFER_TOO_SMALL,
		Needed:      needed,
	}
}

func (err Error) Error() string {
	return fmt.Sprintf("%s: %s", err.Who, err.Description)
}

// CodeOf extracts the PKCS#11 return value of an error, mapping nil to
// CKR_OK and foreign errors to CKR_GENERAL_ERROR.
func CodeOf(err error) RV {
	if err == nil {
		return CKR_OK
	}
	switch e := err.(type) {
	case *Error:
		return e.Code
	case Error:
		return e.Code
	}
	return CKR_GENERAL_ERROR
}

// IsShortBuffer tells whether err is the recoverable short-buffer condition.
func IsShortBuffer(err error) bool {
	return CodeOf(err) == CKR_BUFFER_TOO_SMALL
}
