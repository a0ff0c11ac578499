// Package xmain provides the main stub shared by the nestviz binaries. It wires up the
// human logger, flags with environment fallbacks, signals and graceful shutdown.
package xmain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xos"

	ctxlog "oss.terrastruct.com/nestviz/lib/log"
)

type RunFunc func(context.Context, *State) error

func Main(run RunFunc) {
	name := ""
	args := []string(nil)
	if len(os.Args) > 0 {
		name = os.Args[0]
		args = os.Args[1:]
	}

	ms := &State{
		Name: name,

		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,

		Env: xos.NewEnv(os.Environ()),
	}
	if wd, err := os.Getwd(); err == nil {
		ms.PWD = wd
	}
	ms.Log = cmdlog.Log(ms.Env, os.Stderr)
	ms.Opts = NewOpts(ms.Env, ms.Log, args)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ctx := ctxlog.Stderr(context.Background())
	err := ms.Main(ctx, sigs, run)
	if err != nil {
		code, msg := ExitStatus(err)
		if msg != "" {
			ms.Log.Error.Print(msg)
		}
		os.Exit(code)
	}
}

// ExitStatus maps an error returned by a RunFunc to the process exit code and the message to
// print for it. Usage errors point at --help.
func ExitStatus(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	var eerr ExitError
	if errors.As(err, &eerr) {
		return eerr.Code, eerr.Message
	}
	var uerr UsageError
	if errors.As(err, &uerr) {
		return 1, fmt.Sprintf("%v\nRun with --help to see usage.", err)
	}
	return 1, err.Error()
}

type State struct {
	Name string

	Stdin  io.Reader
	Stdout io.WriteCloser
	Stderr io.WriteCloser

	Log  *cmdlog.Logger
	Env  *xos.Env
	Opts *Opts
	// PWD is the directory relative paths are resolved against.
	PWD string
}

// shutdownGrace bounds how long run may take to return once a signal canceled its context.
const shutdownGrace = time.Minute

// Main runs run until it returns or a signal arrives on sigs. A signal cancels the context
// given to run. SIGTERM then ends cleanly while an interrupt exits with 130.
func (ms *State) Main(ctx context.Context, sigs <-chan os.Signal, run RunFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, ms)
	}()

	var sig os.Signal
	select {
	case err := <-done:
		return err
	case sig = <-sigs:
	}

	ms.Log.Warn.Printf("received signal %v: shutting down...", sig)
	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to shutdown: %w", err)
		}
		if sig == syscall.SIGTERM {
			return nil
		}
		return ExitError{Code: 130}
	case <-time.After(shutdownGrace):
		return ExitError{
			Code:    1,
			Message: fmt.Sprintf("took longer than %v to shutdown: exiting forcefully", shutdownGrace),
		}
	}
}

type ExitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (ee ExitError) Error() string {
	s := fmt.Sprintf("exiting with code %d", ee.Code)
	if ee.Message != "" {
		s += ": " + ee.Message
	}
	return s
}

type UsageError struct {
	Message string `json:"message"`
}

func UsageErrorf(msg string, v ...interface{}) UsageError {
	return UsageError{
		Message: fmt.Sprintf(msg, v...),
	}
}

func (ue UsageError) Error() string {
	return fmt.Sprintf("bad usage: %s", ue.Message)
}

func (ms *State) ReadPath(fp string) ([]byte, error) {
	if fp == "-" {
		return io.ReadAll(ms.Stdin)
	}
	return os.ReadFile(fp)
}

func (ms *State) WritePath(fp string, p []byte) error {
	if fp == "-" {
		_, err := ms.Stdout.Write(p)
		if err != nil {
			return err
		}
		return ms.Stdout.Close()
	}
	return os.WriteFile(fp, p, 0644)
}

// AbsPath resolves fp against ms.PWD. - is left alone.
func (ms *State) AbsPath(fp string) string {
	if fp == "-" || filepath.IsAbs(fp) {
		return fp
	}
	return filepath.Join(ms.PWD, fp)
}

// HumanPath shortens fp for logs: relative to ms.PWD when below it, else with $HOME as ~.
func (ms *State) HumanPath(fp string) string {
	if fp == "-" {
		return fp
	}
	if ms.PWD != "" {
		if rel, err := filepath.Rel(ms.PWD, fp); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	if home := ms.Env.Getenv("HOME"); home != "" && strings.HasPrefix(fp, home) {
		return filepath.Join("~", strings.TrimPrefix(fp, home))
	}
	return fp
}
