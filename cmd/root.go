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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/I-asked/stackless/errext"
	"github.com/I-asked/stackless/errext/exitcodes"
)

// rootCommand holds the base cobra.Command plus the globalState every
// subcommand constructor closes over.
type rootCommand struct {
	globalState *globalState
	cmd         *cobra.Command
}

func newRootCommand(gs *globalState) *rootCommand {
	c := &rootCommand{globalState: gs}

	rootCmd := &cobra.Command{
		Use:               "stackless",
		Short:             "a cooperative tasklet runtime and call-graph profiler",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	rootCmd.PersistentFlags().AddFlagSet(rootCmdPersistentFlagSet(gs))
	rootCmd.SetArgs(gs.args[1:])
	rootCmd.SetOut(gs.stdOut)
	rootCmd.SetErr(gs.stdErr)
	rootCmd.SetIn(gs.stdIn)

	rootCmd.AddCommand(getRunCmd(gs), getInspectCmd(gs), getVersionCmd(gs))

	c.cmd = rootCmd
	return c
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	if err := c.setupLogger(); err != nil {
		return err
	}
	stdlog.SetOutput(c.globalState.logger.Writer())
	return nil
}

// Execute builds a fresh globalState and rootCommand and runs it; it is
// called once by cmd/stackless/main.go.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gs := newGlobalState(ctx)
	root := newRootCommand(gs)

	if err := root.cmd.Execute(); err != nil {
		exitCode := 1
		var ecerr errext.HasExitCode
		if errors.As(err, &ecerr) {
			exitCode = int(ecerr.ExitCode())
		}
		errext.Fprint(gs.logger, err)
		os.Exit(exitCode)
	}
}

func rootCmdPersistentFlagSet(gs *globalState) *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)

	flags.StringVar(&gs.flags.logOutput, "log-output", gs.flags.logOutput,
		"where to write log lines: stderr, stdout, or none")
	flags.Lookup("log-output").DefValue = gs.defaultFlags.logOutput

	flags.StringVar(&gs.flags.logFormat, "log-format", gs.flags.logFormat, "log line format: text or json")
	flags.Lookup("log-format").DefValue = gs.defaultFlags.logFormat

	flags.BoolVar(&gs.flags.noColor, "no-color", gs.flags.noColor, "disable colored output")
	flags.BoolVarP(&gs.flags.verbose, "verbose", "v", gs.defaultFlags.verbose, "enable debug-level logging")
	flags.BoolVarP(&gs.flags.quiet, "quiet", "q", gs.defaultFlags.quiet, "suppress informational output")

	return flags
}

func (c *rootCommand) setupLogger() error {
	gs := c.globalState
	if gs.flags.verbose {
		gs.logger.SetLevel(logrus.DebugLevel)
	}
	if gs.flags.quiet {
		gs.logger.SetLevel(logrus.WarnLevel)
	}

	var forceColors bool
	switch gs.flags.logOutput {
	case "", "stderr":
		forceColors = !gs.flags.noColor && gs.stdErr.IsTTY
		gs.logger.SetOutput(gs.stdErr)
	case "stdout":
		forceColors = !gs.flags.noColor && gs.stdOut.IsTTY
		gs.logger.SetOutput(gs.stdOut)
	case "none":
		gs.logger.SetOutput(io.Discard)
	default:
		return errext.WithExitCodeIfNone(
			fmt.Errorf("unsupported log output %q", gs.flags.logOutput), exitcodes.InvalidConfig)
	}

	switch gs.flags.logFormat {
	case "json":
		gs.logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		gs.logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   forceColors,
			DisableColors: gs.flags.noColor,
		})
	default:
		return errext.WithExitCodeIfNone(
			fmt.Errorf("unsupported log format %q", gs.flags.logFormat), exitcodes.InvalidConfig)
	}
	return nil
}
