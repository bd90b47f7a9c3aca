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

package workload

import "github.com/I-asked/stackless"

// DemoScript is the built-in pipeline the CLI falls back to when no script
// path is given: a generator feeding a doubling transform, relayed through
// a watchdog-ticking stage into a sink.
const DemoScript = `{
  "name": "demo",
  "tasklets": [
    {"name": "gen",     "kind": "generate",  "count": 8, "out": "raw"},
    {"name": "double",  "kind": "transform", "in": "raw", "out": "doubled", "factor": 2},
    {"name": "relay",   "kind": "relay",     "in": "doubled", "out": "final"},
    {"name": "collect", "kind": "sink",      "in": "final"}
  ]
}
`

// Drive runs rt's scheduler, round-robin, until the only tasklet left
// runnable is main. Tasklets must have already been wired with Build (or
// rt.NewTasklet directly) before calling Drive.
func Drive(rt *stackless.Runtime) error {
	for rt.GetRunCount() > 1 {
		if _, err := rt.Schedule(nil); err != nil {
			return err
		}
	}
	return nil
}
