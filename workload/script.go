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

// Package workload loads a declarative tasklet pipeline description from
// disk (or any afero.Fs) and wires it onto a stackless.Runtime. There is no
// bytecode interpreter in this port, so "scripts" are JSON pipelines of a
// small fixed set of stage kinds rather than an embedded language.
package workload

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

// Kind selects a TaskletSpec's built-in behavior.
type Kind string

const (
	// KindGenerate emits Count integers (0..Count-1) onto Out, then
	// closes it. A Count of zero or less emits a single 0.
	KindGenerate Kind = "generate"
	// KindTransform receives off In, multiplies by Factor (a Factor of
	// zero multiplies by 1), and sends the result to Out, until In
	// closes; then closes Out.
	KindTransform Kind = "transform"
	// KindRelay forwards values from In to Out unchanged, ticking the
	// runtime's watchdog once per item to exercise preemption safe
	// points mid-pipeline.
	KindRelay Kind = "relay"
	// KindSink receives off In until it closes, recording every value.
	KindSink Kind = "sink"
)

// TaskletSpec describes one pipeline stage.
type TaskletSpec struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	In     string `json:"in,omitempty"`
	Out    string `json:"out,omitempty"`
	Count  int    `json:"count,omitempty"`
	Factor int    `json:"factor,omitempty"`
}

// Script is a named pipeline of TaskletSpecs, channel names implied by the
// In/Out fields that reference them.
type Script struct {
	Name     string        `json:"name"`
	Tasklets []TaskletSpec `json:"tasklets"`
}

// Load reads and validates a Script from path on fs.
func Load(fs afero.Fs, path string) (*Script, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("workload: reading %s: %w", path, err)
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("workload: parsing %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("workload: %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks the script has at least one tasklet, no duplicate or
// empty names, and only recognized stage kinds.
func (s *Script) Validate() error {
	if len(s.Tasklets) == 0 {
		return fmt.Errorf("script has no tasklets")
	}
	seen := make(map[string]bool, len(s.Tasklets))
	for _, ts := range s.Tasklets {
		if ts.Name == "" {
			return fmt.Errorf("tasklet with empty name")
		}
		if seen[ts.Name] {
			return fmt.Errorf("duplicate tasklet name %q", ts.Name)
		}
		seen[ts.Name] = true
		switch ts.Kind {
		case KindGenerate, KindTransform, KindRelay, KindSink:
		default:
			return fmt.Errorf("tasklet %q: unknown kind %q", ts.Name, ts.Kind)
		}
	}
	return nil
}

// ChannelNames returns every distinct channel name the script's stages
// reference, in first-reference order.
func (s *Script) ChannelNames() []string {
	var names []string
	seen := map[string]bool{}
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	for _, ts := range s.Tasklets {
		add(ts.In)
		add(ts.Out)
	}
	return names
}
