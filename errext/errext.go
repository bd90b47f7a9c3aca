/*
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package errext implements the error kinds spec.md §6-7 surfaces at the
// API boundary: hints, exit codes, and the "bomb" (an exception captured off
// a terminated tasklet, still carrying a traceback string and its abort
// reason).
package errext

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/I-asked/stackless/errext/exitcodes"
)

// HasHint is implemented by errors carrying a human-readable hint about how
// to fix the underlying problem.
type HasHint interface {
	Hint() string
}

// HasExitCode is implemented by errors that should set the process exit
// code when they escape to the CLI boundary.
type HasExitCode interface {
	error
	ExitCode() exitcodes.ExitCode
}

// AbortReason classifies why a tasklet's top frame stopped executing.
type AbortReason uint8

const (
	// AbortReasonNone means the tasklet is not aborting.
	AbortReasonNone AbortReason = iota
	// AbortReasonError means a user exception escaped the tasklet's top frame.
	AbortReasonError
	// AbortReasonPanic means a Go panic was recovered at the tasklet boundary.
	AbortReasonPanic
	// AbortReasonKilled means the tasklet was killed by a watchdog-driven
	// error injection on the main tasklet.
	AbortReasonKilled
)

// Exception models spec.md's "bomb": a captured exception escaping a
// tasklet's top frame, carrying a synthesized traceback and the reason it
// aborted.
type Exception interface {
	error
	StackTrace() string
	AbortReason() AbortReason
}

type hintError struct {
	error
	hint string
}

// Hint returns the error's hint message.
func (e *hintError) Hint() string { return e.hint }

// Unwrap returns the wrapped error.
func (e *hintError) Unwrap() error { return e.error }

// WithHint adds a hint to err. If err already carries a hint (directly or
// through its Unwrap chain), the new hint is composed as "new (old)" so
// repeated wrapping never discards earlier context. Returns nil if err is
// nil.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	var prev HasHint
	if errors.As(err, &prev) {
		hint = fmt.Sprintf("%s (%s)", hint, prev.Hint())
	}
	return &hintError{error: err, hint: hint}
}

type exitCodeError struct {
	error
	code exitcodes.ExitCode
}

// ExitCode returns the process exit code attached to this error.
func (e *exitCodeError) ExitCode() exitcodes.ExitCode { return e.code }

// Unwrap returns the wrapped error.
func (e *exitCodeError) Unwrap() error { return e.error }

// WithExitCodeIfNone attaches code to err unless err (or something it
// wraps) already has an exit code, in which case err is returned unchanged
// so the innermost, most specific exit code always wins. Returns nil if err
// is nil.
func WithExitCodeIfNone(err error, code exitcodes.ExitCode) error {
	if err == nil {
		return nil
	}
	var existing HasExitCode
	if errors.As(err, &existing) {
		return err
	}
	return &exitCodeError{error: err, code: code}
}

// Format renders err into a displayable message, preferring an Exception's
// StackTrace() over its Error() text, plus any structured fields (currently
// just "hint") worth showing alongside it.
func Format(err error) (string, map[string]interface{}) {
	if err == nil {
		return "", nil
	}

	text := err.Error()
	var exc Exception
	if errors.As(err, &exc) {
		text = exc.StackTrace()
	}

	fields := map[string]interface{}{}
	var hint HasHint
	if errors.As(err, &hint) {
		fields["hint"] = hint.Hint()
	}
	return text, fields
}

// Fprint logs err to logger at Error level using Format. It is a no-op for
// a nil error.
func Fprint(logger logrus.FieldLogger, err error) {
	if err == nil {
		return
	}
	text, fields := Format(err)
	logger.WithFields(logrus.Fields(fields)).Error(text)
}
