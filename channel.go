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

package stackless

import "sync"

// ChannelCallback observes every send/receive on a Channel just before
// the park/rendezvous decision takes effect, per spec.md §4.7. It must
// not itself cause a switch.
type ChannelCallback func(ch *Channel, t *Tasklet, sending bool, willBlock bool)

type direction bool

const (
	dirSend direction = true
	dirRecv direction = false
)

type waiter struct {
	t     *Tasklet
	dir   direction
	value interface{}
}

// Channel is spec.md's rendezvous Channel: a FIFO of waiters with the
// invariant that at most one direction has waiters at any time.
type Channel struct {
	rt *Runtime

	mu      sync.Mutex
	waiters []*waiter
	closing bool
}

// NewChannel builds a Channel bound to rt.
func NewChannel(rt *Runtime) *Channel {
	return &Channel{rt: rt}
}

// Close marks the channel as draining: no new caller may park waiting
// for a peer, though a peer already parked still completes its
// rendezvous normally. This is SPEC_FULL.md's supplemented half-close.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
}

// Closing reports whether Close has been called on this channel.
func (c *Channel) Closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// Send delivers v to a matching receiver, rendezvousing immediately if
// one is already waiting, otherwise parking self until one arrives.
func (c *Channel) Send(self *Tasklet, v interface{}) error {
	_, err := c.transfer(self, dirSend, v)
	return err
}

// Receive waits for a matching sender, rendezvousing immediately if
// one is already waiting, otherwise parking self until one arrives.
func (c *Channel) Receive(self *Tasklet) (interface{}, error) {
	return c.transfer(self, dirRecv, nil)
}

// transfer implements spec.md §4.7's send/receive entry points: look
// for an opposite-direction waiter and rendezvous atomically, or park
// self on the waiter queue and schedule away.
func (c *Channel) transfer(self *Tasklet, dir direction, v interface{}) (interface{}, error) {
	rt := c.rt

	c.mu.Lock()
	var peer *waiter
	if len(c.waiters) > 0 && c.waiters[0].dir != dir {
		peer = c.waiters[0]
		c.waiters = c.waiters[1:]
	}
	closing := c.closing
	willBlock := peer == nil
	if willBlock && !closing {
		c.waiters = append(c.waiters, &waiter{t: self, dir: dir, value: v})
	}
	c.mu.Unlock()

	rt.mu.Lock()
	cb := rt.channelCallback
	rt.mu.Unlock()
	if cb != nil {
		rt.safeCall("channel", func() { cb(c, self, bool(dir), willBlock) })
	}

	if peer != nil {
		var sendVal interface{}
		if dir == dirSend {
			sendVal = v
		} else {
			sendVal = peer.value
		}

		rt.mu.Lock()
		peer.t.tempValue = sendVal
		peer.t.tempErr = nil
		rt.insertAfterCurrentLocked(peer.t)
		rt.mu.Unlock()

		if dir == dirSend {
			return nil, nil
		}
		return sendVal, nil
	}

	if closing {
		return nil, ErrChannelClosed
	}

	// No peer: park self off the ready queue and schedule to the next
	// runnable tasklet. Resume delivers the rendezvoused value (or a
	// propagated bomb) via the ordinary temp-value slot.
	return rt.scheduleTo(self, nil, true, nil)
}
