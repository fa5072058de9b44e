package biometric

import (
	"bufio"
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultMaxAttempts is the number of wrong PINs a ConsolePrompter accepts
// before locking out the session.
const DefaultMaxAttempts = 3

// ConsolePrompter is a device-credential prompt on a text console, for
// terminals without biometric hardware. It never offers biometrics, so it
// is only available when device-credential fallback is allowed.
//
// An empty line or "q" cancels. Each wrong PIN reports Failed until
// MaxAttempts is reached, which ends the session with ErrorLockout.
type ConsolePrompter struct {
	In          io.Reader
	Out         io.Writer
	PIN         string
	MaxAttempts int

	mu     sync.Mutex
	reader *bufio.Reader
}

// Availability implements Prompter.
func (c *ConsolePrompter) Availability(allowDeviceCredential bool) Availability {
	switch {
	case !allowDeviceCredential:
		return NoHardware
	case c.PIN == "":
		return NoneEnrolled
	default:
		return Available
	}
}

// Show implements Prompter. Reading happens on a separate goroutine; the
// returned cancel stops further callbacks but cannot interrupt a read in
// progress.
func (c *ConsolePrompter) Show(ctx context.Context, info PromptInfo, cb Callbacks) (func(), error) {
	c.mu.Lock()
	if c.reader == nil {
		c.reader = bufio.NewReader(c.In)
	}
	c.mu.Unlock()

	limit := c.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}

	var cancelled atomic.Bool
	fmt.Fprintf(c.Out, "%s\n", info.Title)
	if info.Subtitle != "" {
		fmt.Fprintf(c.Out, "%s\n", info.Subtitle)
	}
	if info.Description != "" {
		fmt.Fprintf(c.Out, "%s\n", info.Description)
	}

	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for attempt := 1; ; attempt++ {
			fmt.Fprint(c.Out, "Enter PIN (blank to cancel): ")
			line, err := c.reader.ReadString('\n')
			if cancelled.Load() || ctx.Err() != nil {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "" && err != nil:
				cb.OnError(ErrorCanceled, "input closed")
				return
			case line == "" || line == "q":
				cb.OnError(ErrorUserCanceled, "Authentication cancelled")
				return
			case subtle.ConstantTimeCompare([]byte(line), []byte(c.PIN)) == 1:
				cb.OnSucceeded()
				return
			case attempt >= limit:
				cb.OnError(ErrorLockout, "Too many attempts. Try again later.")
				return
			default:
				cb.OnFailed()
			}
			if err != nil {
				cb.OnError(ErrorCanceled, "input closed")
				return
			}
		}
	}()
	return func() { cancelled.Store(true) }, nil
}
