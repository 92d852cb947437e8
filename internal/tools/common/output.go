package common

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/tools/ui"
)

// ExitFailure is the process exit code for a tool command that ran and failed.
const ExitFailure = 3

type CIResult struct {
	OK         bool     `json:"ok"`
	Tool       string   `json:"tool"`
	Command    string   `json:"command"`
	DurationMS int64    `json:"duration_ms"`
	Details    []string `json:"details,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func WriteCIResult(w io.Writer, res CIResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Action is the body of a tool subcommand. It returns human readable details.
type Action func(ctx context.Context) ([]string, error)

// Invocation runs one subcommand either through the terminal UI or, with CI
// set, headless with a JSON result on Out.
type Invocation struct {
	Tool    string
	Command string
	CI      bool
	Timeout time.Duration
	Out     io.Writer
}

func (inv Invocation) Run(action Action) error {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	start := time.Now()
	var (
		details []string
		err     error
	)
	if inv.CI {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		details, err = action(ctx)
		cancel()
	} else {
		details, err = ui.Run(inv.Tool+" "+inv.Command, timeout, action)
	}
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	ctx := context.Background()
	observability.RecordToolCommandRun(ctx, inv.Tool, inv.Command, outcome)
	observability.RecordToolCommandDuration(ctx, inv.Tool, inv.Command, outcome, elapsed)

	if inv.CI {
		out := inv.Out
		if out == nil {
			out = os.Stdout
		}
		res := CIResult{OK: err == nil, Tool: inv.Tool, Command: inv.Command, DurationMS: elapsed.Milliseconds(), Details: details}
		if err != nil {
			res.Error = err.Error()
		}
		if werr := WriteCIResult(out, res); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		return &CommandError{Tool: inv.Tool, Command: inv.Command, Err: err}
	}
	return nil
}

type CommandError struct {
	Tool    string
	Command string
	Err     error
}

func (e *CommandError) Error() string { return e.Tool + " " + e.Command + ": " + e.Err.Error() }
func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode maps a command error to the process exit code: 0 on success,
// ExitFailure when a command ran and failed, 1 for usage errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ExitFailure
	}
	return 1
}
