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

// Package log builds the logrus.Logger the runtime's components log
// through: a terminal-aware formatter plus a "objects" field convention
// for attaching structured context (tasklet identity, switch mode,
// watchdog deferral reason) to a plain text line.
package log

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// consoleLogFormatter wraps another logrus.Formatter and appends the
// "objects" field's contents, one JSON fragment per element, to the
// formatted line. An object that fails to marshal is silently dropped
// rather than failing the whole log line.
type consoleLogFormatter struct {
	logrus.Formatter
}

func (f *consoleLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	objects, ok := entry.Data["objects"].([]interface{})

	var extra string
	if ok && len(objects) > 0 {
		parts := make([]string, 0, len(objects))
		for _, obj := range objects {
			b, err := json.Marshal(obj)
			if err != nil {
				continue
			}
			parts = append(parts, string(b))
		}
		extra = strings.Join(parts, " ")
	}

	if entry.Data != nil {
		delete(entry.Data, "objects")
	}

	out, err := f.Formatter.Format(entry)
	if err != nil {
		return nil, err
	}
	if extra == "" {
		return out, nil
	}
	return append(out, []byte(extra)...), nil
}

// New builds a *logrus.Logger writing to stderr, with colors enabled
// when stderr is a real terminal (respecting NO_COLOR) and level set
// from verbose.
func New(verbose bool) *logrus.Logger {
	isDumbTerm := os.Getenv("TERM") == "dumb"
	stderrTTY := !isDumbTerm && (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	_, noColor := os.LookupEnv("NO_COLOR")

	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}

	return &logrus.Logger{
		Out: colorable.NewColorable(os.Stderr),
		Formatter: &consoleLogFormatter{&logrus.TextFormatter{
			ForceColors:   stderrTTY,
			DisableColors: !stderrTTY || noColor,
		}},
		Hooks: make(logrus.LevelHooks),
		Level: level,
	}
}

// SetLevelByName applies level (parsed with parseLevels' underlying
// logrus.ParseLevel) to logger, returning an error for an unrecognized
// name.
func SetLevelByName(logger *logrus.Logger, level string) error {
	levels, err := parseLevels(level)
	if err != nil {
		return err
	}
	logger.SetLevel(levels[len(levels)-1])
	return nil
}
