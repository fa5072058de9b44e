package biometric

import (
	"context"
	"errors"
)

// PromptInfo describes a prompt. Without device-credential fallback the
// platform requires a negative button label.
type PromptInfo struct {
	Title                 string
	Subtitle              string
	Description           string
	NegativeButtonText    string
	AllowDeviceCredential bool
}

// ErrInvalidPrompt reports a PromptInfo the platform would reject.
var ErrInvalidPrompt = errors.New("biometric: invalid prompt")

func (p PromptInfo) validate() error {
	if p.Title == "" {
		return errors.Join(ErrInvalidPrompt, errors.New("title is required"))
	}
	if !p.AllowDeviceCredential && p.NegativeButtonText == "" {
		return errors.Join(ErrInvalidPrompt, errors.New("negative button text is required without device credential fallback"))
	}
	return nil
}

// Callbacks receive prompt events. The platform may invoke them from any
// goroutine, and OnFailed may fire repeatedly before a terminal callback.
type Callbacks struct {
	OnSucceeded func()
	OnFailed    func()
	OnError     func(code int, message string)
}

// Prompter is the platform prompt.
type Prompter interface {
	// Availability reports whether a prompt can be shown, counting device
	// credentials when allowDeviceCredential is set.
	Availability(allowDeviceCredential bool) Availability
	// Show displays the prompt and returns a function that dismisses it.
	Show(ctx context.Context, info PromptInfo, cb Callbacks) (cancel func(), err error)
}
