package cli

import (
	"errors"
	"fmt"

	"github.com/etabotai/etabot/pkg/application"
	"github.com/etabotai/etabot/pkg/domain"
	"github.com/etabotai/etabot/pkg/domain/predict"
	"github.com/etabotai/etabot/pkg/domain/project"
	"github.com/etabotai/etabot/pkg/domain/report"
	"github.com/etabotai/etabot/pkg/domain/tms"
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	var ambiguous *project.AmbiguousMatchError
	if errors.As(err, &ambiguous) {
		return NewCLIError(
			"more than one stored token matches",
			fmt.Sprintf("Set tms.oauth2.token_name to pick one of the %d tokens", ambiguous.Matches),
			err,
		)
	}

	var invalid *project.ValidationError
	if errors.As(err, &invalid) {
		return NewCLIError(invalid.Error(), "Fix the project attributes in the task-management system and re-run 'etabot projects parse'", err)
	}

	switch {
	case errors.Is(err, tms.ErrConnection):
		return &CLIError{Message: "cannot reach the task-management system", Hint: "Check tms.endpoint and the credentials in etabot.yaml", Err: err, ExitCode: 2}
	case errors.Is(err, predict.ErrUnreachable):
		return &CLIError{Message: "prediction engine unavailable", Hint: "Retry later or raise pipeline.prediction_timeout", Err: err, ExitCode: 2}
	case errors.Is(err, project.ErrProjectNotFound):
		return NewCLIError("project not found", "Run 'etabot projects parse' to import projects", err)
	case errors.Is(err, project.ErrTokenNotFound):
		return NewCLIError("no stored OAuth token", "Store a token for the owner or disable tms.oauth2", err)
	case errors.Is(err, application.ErrReportNotFound):
		return NewCLIError("no report yet", "Run 'etabot estimate --project NAME' first", err)
	case errors.Is(err, report.ErrInvalidSerialized):
		return NewCLIError("stored report is malformed", "Re-run 'etabot estimate' to regenerate it", err)
	case errors.Is(err, domain.ErrBrokenChain):
		return &CLIError{Message: "audit log failed verification", Hint: "Events after the reported one cannot be trusted", Err: err, ExitCode: 3}
	case errors.Is(err, report.ErrInvariant):
		return &CLIError{Message: "internal report error", Hint: "Please report this with the log output", Err: err, ExitCode: 3}
	}

	return err
}
