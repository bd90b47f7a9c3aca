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

// Package cmd implements the stackless CLI.
package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	stlog "github.com/I-asked/stackless/log"
)

// globalFlags holds the CLI's global, cross-subcommand configuration.
type globalFlags struct {
	noColor bool
	quiet   bool
	verbose bool

	logOutput string // stderr, stdout, or none
	logFormat string // text or json
}

func getDefaultFlags() globalFlags {
	return globalFlags{logOutput: "stderr"}
}

// globalState groups the process-external state (args, env, filesystem,
// standard streams, logger) behind one struct so it can be swapped out in
// tests instead of reaching for the os package directly throughout the CLI.
type globalState struct {
	ctx context.Context

	fs      afero.Fs
	args    []string
	envVars map[string]string

	defaultFlags, flags globalFlags

	stdOut, stdErr *consoleWriter
	stdIn          io.Reader

	logger *logrus.Logger
}

func newGlobalState(ctx context.Context) *globalState {
	isDumbTerm := os.Getenv("TERM") == "dumb"
	stdoutTTY := !isDumbTerm && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	stderrTTY := !isDumbTerm && (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	outMutex := &sync.Mutex{}

	envVars := buildEnvMap(os.Environ())
	defaultFlags := getDefaultFlags()

	return &globalState{
		ctx:          ctx,
		fs:           afero.NewOsFs(),
		args:         append(make([]string, 0, len(os.Args)), os.Args...),
		envVars:      envVars,
		defaultFlags: defaultFlags,
		flags:        applyEnv(defaultFlags, envVars),
		stdOut:       &consoleWriter{Writer: colorable.NewColorable(os.Stdout), IsTTY: stdoutTTY, Mutex: outMutex},
		stdErr:       &consoleWriter{Writer: colorable.NewColorable(os.Stderr), IsTTY: stderrTTY, Mutex: outMutex},
		stdIn:        os.Stdin,
		logger:       stlog.New(false),
	}
}

func applyEnv(defaults globalFlags, env map[string]string) globalFlags {
	result := defaults
	if val, ok := env["STACKLESS_LOG_OUTPUT"]; ok {
		result.logOutput = val
	}
	if val, ok := env["STACKLESS_LOG_FORMAT"]; ok {
		result.logFormat = val
	}
	if _, ok := env["NO_COLOR"]; ok {
		result.noColor = true
	}
	return result
}

func parseEnvKeyValue(kv string) (string, string) {
	if idx := strings.IndexRune(kv, '='); idx != -1 {
		return kv[:idx], kv[idx+1:]
	}
	return kv, ""
}

func buildEnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v := parseEnvKeyValue(kv)
		env[k] = v
	}
	return env
}

// consoleWriter serializes writes with a shared mutex and, on a real
// terminal, appends an erase-to-end-of-line code before every newline so
// redrawn lines don't leave stale trailing characters.
type consoleWriter struct {
	Writer io.Writer
	IsTTY  bool
	Mutex  *sync.Mutex
}

func (w *consoleWriter) Write(p []byte) (int, error) {
	origLen := len(p)
	if w.IsTTY {
		p = bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\x1b', '[', '0', 'K', '\n'})
	}

	w.Mutex.Lock()
	n, err := w.Writer.Write(p)
	w.Mutex.Unlock()

	if err != nil && n < origLen {
		return n, err
	}
	return origLen, err
}
