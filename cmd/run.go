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
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/I-asked/stackless"
	"github.com/I-asked/stackless/workload"
)

func getRunCmd(gs *globalState) *cobra.Command {
	var (
		watchdogTicks int
		showProfile   bool
	)

	runCmd := &cobra.Command{
		Use:   "run [script.json]",
		Short: "Run a tasklet pipeline script",
		Long: "Run a tasklet pipeline script to completion. With no script path, " +
			"runs the built-in demo pipeline.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := loadScriptOrDemo(gs.fs, args)
			if err != nil {
				return err
			}

			rt, err := stackless.New(stackless.Options{Logger: gs.logger})
			if err != nil {
				return err
			}
			if _, err := rt.Init(); err != nil {
				return err
			}
			if showProfile {
				if err := rt.Profiler.Enable(true, false); err != nil {
					return err
				}
			}

			collector := workload.NewCollector()
			if _, err := workload.Build(rt, script, collector); err != nil {
				return err
			}

			// A single watchdog.Run slice may hard-interrupt a tasklet still
			// mid-loop; workload.Drive then finishes whatever hasn't
			// terminated yet, whether or not the watchdog ever fired.
			if watchdogTicks > 0 {
				if _, err := rt.Watchdog().Run(watchdogTicks, 0); err != nil {
					return err
				}
			}
			if err := workload.Drive(rt); err != nil {
				return err
			}

			if !gs.flags.quiet {
				printSinkResults(gs.stdOut, script, collector)
			}
			if showProfile {
				if err := printProfilerStats(gs.stdOut, rt); err != nil {
					return err
				}
			}
			return nil
		},
	}

	runCmd.Flags().IntVar(&watchdogTicks, "watchdog-ticks", 0,
		"arm the watchdog with this many ticks per slice before running (0 disables it)")
	runCmd.Flags().BoolVar(&showProfile, "profile", false, "print call-graph profiler stats after the run")
	return runCmd
}

func loadScriptOrDemo(fs afero.Fs, args []string) (*workload.Script, error) {
	if len(args) == 0 {
		memFs := afero.NewMemMapFs()
		if err := afero.WriteFile(memFs, "demo.json", []byte(workload.DemoScript), 0o644); err != nil {
			return nil, err
		}
		return workload.Load(memFs, "demo.json")
	}
	return workload.Load(fs, args[0])
}

func printSinkResults(w *consoleWriter, script *workload.Script, collector *workload.Collector) {
	for _, ts := range script.Tasklets {
		if ts.Kind != workload.KindSink {
			continue
		}
		values := collector.Values(ts.Name)
		fmt.Fprintf(w, "%s: %v\n", ts.Name, values)
	}
}

func printProfilerStats(w *consoleWriter, rt *stackless.Runtime) error {
	stats, err := rt.Profiler.GetStats()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "profile:")
	for _, stat := range stats {
		fmt.Fprintf(w, "  %-20s calls=%-6d recursive=%-6d tt=%.6f it=%.6f\n",
			stat.UserObj, stat.CallCount, stat.RecursiveCallCount, stat.TotalTime, stat.InlineTime)
	}
	return nil
}
