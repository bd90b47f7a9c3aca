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

package log

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// parseLevels returns every logrus.Level at or above the severity of
// level (panic is always included), for hooks that only want to observe
// messages up to a configured verbosity.
func parseLevels(level string) ([]logrus.Level, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	levels := make([]logrus.Level, 0, lvl+1)
	for _, l := range logrus.AllLevels {
		if l > lvl {
			break
		}
		levels = append(levels, l)
	}
	return levels, nil
}
