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

// Package clock implements spec.md §4.1's TimeSource: a monotonic tick
// counter the profiler and watchdog both read from, plus an optional
// user-supplied timer that can replace the monotonic source with
// caller-defined ticks (e.g. CPU time instead of wall time).
package clock

import (
	"time"

	"github.com/sirupsen/logrus"
)

// precision is the fixed-point scale applied to a float64-seconds sample
// from a user timer, per spec.md §4.1.
const precision = 1 << 32

// UserTimer returns either an int64 tick count (already scaled by Unit)
// or a float64 seconds value (scaled internally by precision).
type UserTimer func() (interface{}, error)

// Source is a TimeSource: a monotonic tick counter plus an optional
// user timer substituted in its place.
type Source struct {
	start     time.Time
	unit      float64
	userTimer UserTimer
	logger    logrus.FieldLogger
}

// New builds a Source ticking in nanoseconds (unit = 1e-9 seconds/tick)
// from the moment New is called.
func New(logger logrus.FieldLogger) *Source {
	return &Source{
		start:  time.Now(),
		unit:   1e-9,
		logger: logger,
	}
}

// SetUserTimer installs or clears (nil) the user-supplied timer callable.
func (s *Source) SetUserTimer(timer UserTimer) {
	s.userTimer = timer
}

// Unit returns seconds-per-tick for the currently active timer source.
func (s *Source) Unit() float64 {
	if s.userTimer != nil {
		return 1.0 / precision
	}
	return s.unit
}

// Now returns the current monotonic tick count. If a user timer is
// installed and it fails, the failure is logged as a non-fatal
// UserCallbackFailure diagnostic and zero is substituted so profiling
// can continue uninterrupted.
func (s *Source) Now() int64 {
	if s.userTimer == nil {
		return time.Since(s.start).Nanoseconds()
	}

	v, err := s.userTimer()
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("user timer failed, substituting zero")
		}
		return 0
	}

	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t * precision)
	default:
		if s.logger != nil {
			s.logger.WithField("type", v).Warn("user timer returned an unsupported type, substituting zero")
		}
		return 0
	}
}
