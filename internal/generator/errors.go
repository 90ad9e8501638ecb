package generator

import (
	"errors"
	"fmt"
)

// ErrInvalidAPIKey is returned at construction when a provider key is
// missing or obviously malformed.
var ErrInvalidAPIKey = errors.New("invalid API key")

// GenerationError is a failed generation request. Permanent errors (bad
// credentials, unknown model, missing tooling) will fail the same way on
// every attempt; the loop treats them as fatal instead of spending budget.
type GenerationError struct {
	Target    string
	Reason    string
	Permanent bool
	Err       error
}

func (e *GenerationError) Error() string {
	msg := "generation failed"
	if e.Target != "" {
		msg += " for " + e.Target
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a generation error that retrying
// cannot fix.
func IsPermanent(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Permanent
}

func permanent(reason string, err error) error {
	return &GenerationError{Reason: reason, Permanent: true, Err: err}
}

func transient(reason string, err error) error {
	return &GenerationError{Reason: reason, Err: err}
}

// checkAPIKey rejects empty and implausibly short keys.
func checkAPIKey(provider, key string) error {
	if key == "" {
		return fmt.Errorf("%w: %s API key is not set", ErrInvalidAPIKey, provider)
	}
	if len(key) < 10 {
		return fmt.Errorf("%w: %s API key is too short", ErrInvalidAPIKey, provider)
	}
	return nil
}
