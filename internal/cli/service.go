package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/Mipos-sub025/internal/loyalty"
	"github.com/eduardojeem/Mipos-sub025/internal/store"
)

// newFormatter builds an OutputFormatter wired to the command's
// writers.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openStore opens the database. The caller must Close it.
func openStore(opts *RootOptions) (*store.Store, error) {
	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database "+opts.DBPath, err)
	}
	return st, nil
}

// openService opens the database and constructs the loyalty service.
// The caller must Close the returned store.
func openService(opts *RootOptions) (*loyalty.Service, *store.Store, error) {
	st, err := openStore(opts)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	svc := loyalty.NewService(st, loyalty.WithLogger(logger))
	return svc, st, nil
}

// reportError maps an operation error to an exit code. Terminal
// rejections exit with ExitRejected and their rejection code; anything
// else is a command error.
//
// In JSON mode the structured error envelope goes to stdout for
// scripted callers; the human-readable message always reaches stderr
// via main's error printing.
func reportError(f *OutputFormatter, err error) error {
	var rejection *loyalty.RejectionError
	if errors.As(err, &rejection) {
		if f.Format == "json" {
			_ = f.Error(string(rejection.Code), rejection.Message, rejection.Details)
		}
		return &ExitError{
			Code:    ExitRejected,
			Message: fmt.Sprintf("[%s] %s", rejection.Code, rejection.Message),
			Err:     err,
		}
	}

	if f.Format == "json" {
		_ = f.Error("STORE_ERROR", err.Error(), nil)
	}
	return &ExitError{Code: ExitCommandError, Message: err.Error(), Err: err}
}
