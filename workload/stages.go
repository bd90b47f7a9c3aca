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

import (
	"errors"
	"fmt"
	"sync"

	"github.com/I-asked/stackless"
)

// Collector gathers the values every "sink" stage records, keyed by its
// tasklet name.
type Collector struct {
	mu     sync.Mutex
	values map[string][]interface{}
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{values: make(map[string][]interface{})}
}

// Record appends v under name.
func (c *Collector) Record(name string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = append(c.values[name], v)
}

// Values returns a copy of everything recorded under name.
func (c *Collector) Values(name string) []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.values[name]))
	copy(out, c.values[name])
	return out
}

// Build wires every TaskletSpec in script onto rt, sharing one
// stackless.Channel per distinct In/Out name, and returns the resulting
// tasklets in declaration order. Stages do not run until the caller drives
// rt's scheduler.
func Build(rt *stackless.Runtime, script *Script, collector *Collector) ([]*stackless.Tasklet, error) {
	channels := make(map[string]*stackless.Channel, len(script.ChannelNames()))
	chanOf := func(name string) *stackless.Channel {
		if name == "" {
			return nil
		}
		if ch, ok := channels[name]; ok {
			return ch
		}
		ch := stackless.NewChannel(rt)
		channels[name] = ch
		return ch
	}

	tasklets := make([]*stackless.Tasklet, 0, len(script.Tasklets))
	for _, ts := range script.Tasklets {
		fn, err := buildStage(rt, ts, chanOf, collector)
		if err != nil {
			return nil, err
		}
		t, err := rt.NewTasklet(ts.Name, fn)
		if err != nil {
			return nil, fmt.Errorf("workload: tasklet %q: %w", ts.Name, err)
		}
		tasklets = append(tasklets, t)
	}
	return tasklets, nil
}

func buildStage(
	rt *stackless.Runtime, ts TaskletSpec,
	chanOf func(string) *stackless.Channel, collector *Collector,
) (stackless.Func, error) {
	switch ts.Kind {
	case KindGenerate:
		return generateStage(ts, chanOf(ts.Out)), nil
	case KindTransform:
		return transformStage(ts, chanOf(ts.In), chanOf(ts.Out)), nil
	case KindRelay:
		return relayStage(rt, chanOf(ts.In), chanOf(ts.Out)), nil
	case KindSink:
		return sinkStage(ts, chanOf(ts.In), collector), nil
	default:
		return nil, fmt.Errorf("workload: tasklet %q: unknown kind %q", ts.Name, ts.Kind)
	}
}

func generateStage(ts TaskletSpec, out *stackless.Channel) stackless.Func {
	count := ts.Count
	if count <= 0 {
		count = 1
	}
	return func(self *stackless.Tasklet) (interface{}, error) {
		for i := 0; i < count; i++ {
			if out == nil {
				continue
			}
			if err := out.Send(self, i); err != nil {
				return nil, err
			}
		}
		if out != nil {
			out.Close()
		}
		return count, nil
	}
}

func transformStage(ts TaskletSpec, in, out *stackless.Channel) stackless.Func {
	factor := ts.Factor
	if factor == 0 {
		factor = 1
	}
	return func(self *stackless.Tasklet) (interface{}, error) {
		count := 0
		for {
			v, err := receiveUntilClosed(in, self)
			if err != nil {
				if errors.Is(err, errStageDone) {
					break
				}
				return nil, err
			}
			n, _ := v.(int)
			if out != nil {
				if err := out.Send(self, n*factor); err != nil {
					return nil, err
				}
			}
			count++
		}
		if out != nil {
			out.Close()
		}
		return count, nil
	}
}

func relayStage(rt *stackless.Runtime, in, out *stackless.Channel) stackless.Func {
	return func(self *stackless.Tasklet) (interface{}, error) {
		wd := rt.Watchdog()
		count := 0
		for {
			wd.Tick(self)
			v, err := receiveUntilClosed(in, self)
			if err != nil {
				if errors.Is(err, errStageDone) {
					break
				}
				return nil, err
			}
			if out != nil {
				if err := out.Send(self, v); err != nil {
					return nil, err
				}
			}
			count++
		}
		if out != nil {
			out.Close()
		}
		return count, nil
	}
}

func sinkStage(ts TaskletSpec, in *stackless.Channel, collector *Collector) stackless.Func {
	return func(self *stackless.Tasklet) (interface{}, error) {
		count := 0
		for {
			v, err := receiveUntilClosed(in, self)
			if err != nil {
				if errors.Is(err, errStageDone) {
					break
				}
				return nil, err
			}
			collector.Record(ts.Name, v)
			count++
		}
		return count, nil
	}
}

// errStageDone signals a stage's input channel drained and closed.
var errStageDone = errors.New("workload: input channel closed")

func receiveUntilClosed(in *stackless.Channel, self *stackless.Tasklet) (interface{}, error) {
	if in == nil {
		return nil, errStageDone
	}
	v, err := in.Receive(self)
	if errors.Is(err, stackless.ErrChannelClosed) {
		return nil, errStageDone
	}
	return v, err
}
