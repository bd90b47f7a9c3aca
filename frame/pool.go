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

package frame

// DefaultFreeListCapacity is spec.md §4.4 & §9's suggested bound of 200
// retained frames, beyond which Release lets the frame be collected
// instead of recycled.
const DefaultFreeListCapacity = 200

// Pool recycles Frames: at most one "zombie" retained per Code identity,
// plus a bounded global free-list for everything else, so repeated call
// bursts of the same or different code avoid allocator churn.
type Pool struct {
	capacity int
	zombies  map[*Code]*Frame
	free     []*Frame
}

// NewPool builds a Pool with the given free-list capacity. A capacity of
// 0 uses DefaultFreeListCapacity.
func NewPool(capacity int) *Pool {
	if capacity == 0 {
		capacity = DefaultFreeListCapacity
	}
	return &Pool{
		capacity: capacity,
		zombies:  make(map[*Code]*Frame),
	}
}

// Get returns a Frame bound to code, preferring code's zombie (if any),
// then the free-list, then a fresh allocation.
func (p *Pool) Get(code *Code) *Frame {
	if f, ok := p.zombies[code]; ok {
		delete(p.zombies, code)
		f.Code = code
		return f
	}

	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		f.Code = code
		return f
	}

	return &Frame{Code: code}
}

// Release returns f to the pool, clearing its per-activation state but
// retaining its value-stack backing array for reuse. It becomes code's
// zombie if that slot is free, else joins the bounded free-list, else
// is dropped for the garbage collector.
func (p *Pool) Release(f *Frame) {
	code := f.Code
	stack := f.ValueStack[:0]
	*f = Frame{ValueStack: stack}

	if _, occupied := p.zombies[code]; !occupied {
		p.zombies[code] = f
		return
	}

	if len(p.free) < p.capacity {
		p.free = append(p.free, f)
	}
}

// CFramePool recycles CFrames the same way, minus the per-code zombie
// slot (native callables aren't keyed by a shared Code identity).
type CFramePool struct {
	capacity int
	free     []*CFrame
}

// NewCFramePool builds a CFramePool with the given free-list capacity. A
// capacity of 0 uses DefaultFreeListCapacity.
func NewCFramePool(capacity int) *CFramePool {
	if capacity == 0 {
		capacity = DefaultFreeListCapacity
	}
	return &CFramePool{capacity: capacity}
}

// Get returns a recycled CFrame or a fresh one if the free-list is empty.
func (p *CFramePool) Get() *CFrame {
	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return c
	}
	return &CFrame{}
}

// Release clears c and returns it to the bounded free-list, or drops it
// for the garbage collector once the list is full.
func (p *CFramePool) Release(c *CFrame) {
	*c = CFrame{}
	if len(p.free) < p.capacity {
		p.free = append(p.free, c)
	}
}
