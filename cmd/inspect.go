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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/I-asked/stackless"
	"github.com/I-asked/stackless/workload"
)

// getInspectCmd returns a read-only diagnostic subcommand: it parses a
// script and wires its tasklet/channel topology onto a fresh runtime
// without ever driving the scheduler, then reports that topology plus the
// runtime's main identity and GetThreadInfo run count, which counts main
// and every wired tasklet.
func getInspectCmd(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [script.json]",
		Short: "Inspect a script's tasklet/channel topology without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := loadScriptOrDemo(gs.fs, args)
			if err != nil {
				return err
			}

			rt, err := stackless.New(stackless.Options{Logger: gs.logger})
			if err != nil {
				return err
			}
			main, err := rt.Init()
			if err != nil {
				return err
			}
			if _, err := workload.Build(rt, script, workload.NewCollector()); err != nil {
				return err
			}

			info := rt.GetThreadInfo()
			report := struct {
				Name        string              `json:"name"`
				Tasklets    []workload.TaskletSpec `json:"tasklets"`
				Channels    []string            `json:"channels"`
				MainID      stackless.Key       `json:"main_id"`
				RunCount    int                 `json:"run_count"`
			}{
				Name:     script.Name,
				Tasklets: script.Tasklets,
				Channels: script.ChannelNames(),
				MainID:   main.ID(),
				RunCount: info.RunCount,
			}

			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(gs.stdOut, string(data))
			return nil
		},
	}
}
