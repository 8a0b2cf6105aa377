package cli

import (
	"context"
	"errors"

	"github.com/mmr-tortoise/portprobe/internal/launcher"
	"github.com/mmr-tortoise/portprobe/internal/model"
	"github.com/mmr-tortoise/portprobe/internal/port"
)

// toCLIError maps errors from the launcher and the resolver to a CLIError
// with the matching exit code. CLIErrors pass through unchanged.
func toCLIError(err error) error {
	if err == nil {
		return nil
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	var launchErr *launcher.LaunchError
	switch {
	case errors.As(err, &launchErr):
		return model.WrapCLIError(model.ExitLaunchFailed, "helper could not be started", err)
	case errors.Is(err, port.ErrTimeout):
		return model.WrapCLIError(model.ExitTimeout, "port discovery timed out", err)
	case errors.Is(err, port.ErrProcessUnreachable):
		return model.WrapCLIError(model.ExitProcessUnreachable, "process is not reachable", err)
	case errors.Is(err, port.ErrMalformedTable):
		return model.WrapCLIError(model.ExitMalformedTable, "connection table could not be parsed", err)
	case errors.Is(err, context.Canceled):
		return model.WrapCLIError(model.ExitGeneralError, "interrupted", err)
	default:
		return model.WrapCLIError(model.ExitGeneralError, "unexpected error", err)
	}
}

// invalidFlag reports a bad flag value with ExitInvalidConfig.
func invalidFlag(message string, err error) error {
	return model.WrapCLIError(model.ExitInvalidConfig, message, err)
}
