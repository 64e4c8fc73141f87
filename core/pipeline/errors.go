package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/tristendillon/delombok/core/inventory"
	"github.com/tristendillon/delombok/core/invoker"
)

var ErrRootNotFound = errors.New("root directory doesn't exist")

// ConfigError is returned before any filesystem effect when the root
// directory cannot be used.
type ConfigError struct {
	Root   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid root directory %s: %s", e.Root, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrRootNotFound }

type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeConfigError Outcome = "config_error"
	OutcomeToolError   Outcome = "tool_error"
	OutcomeLookupError Outcome = "lookup_error"
	OutcomeIOError     Outcome = "io_error"
)

// Classify maps a Run error onto the outcome it represents.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrRootNotFound), errors.Is(err, invoker.ErrToolMissing):
		return OutcomeConfigError
	case errors.Is(err, invoker.ErrToolFailed), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return OutcomeToolError
	case errors.Is(err, inventory.ErrLookup):
		return OutcomeLookupError
	default:
		return OutcomeIOError
	}
}
