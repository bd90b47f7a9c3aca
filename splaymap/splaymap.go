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

// Package splaymap implements spec.md §4.2's OrderedMap: a self-adjusting
// map keyed by opaque pointer identity (uintptr), splayed to the root on
// every touch so recently accessed entries stay cheap to find again.
// ProfilerCore uses it to index ProfilerEntry/ProfilerSubEntry/ProfilerStack
// records by identity.
package splaymap

// Key is the opaque pointer identity OrderedMap is keyed by.
type Key uintptr

type node struct {
	key         Key
	value       interface{}
	left, right *node
}

// Map is a splay-tree-backed OrderedMap: amortized O(log n) get/add with
// recency bias. The zero value is an empty map ready to use.
type Map struct {
	root *node
	size int
}

// Len returns the number of entries currently stored.
func (m *Map) Len() int { return m.size }

// Get returns the value stored under key and whether it was found. A
// successful get splays key to the root.
func (m *Map) Get(key Key) (interface{}, bool) {
	if m.root == nil {
		return nil, false
	}
	m.root = splay(m.root, key)
	if m.root.key == key {
		return m.root.value, true
	}
	return nil, false
}

// Add inserts value under key, which must not already be present. The
// inserted node becomes the root.
func (m *Map) Add(key Key, value interface{}) {
	n := &node{key: key, value: value}
	if m.root == nil {
		m.root = n
		m.size++
		return
	}

	m.root = splay(m.root, key)
	switch {
	case key < m.root.key:
		n.left = m.root.left
		n.right = m.root
		m.root.left = nil
	case key > m.root.key:
		n.right = m.root.right
		n.left = m.root
		m.root.right = nil
	default:
		// Key already present: caller-supplied node replaces the value
		// in place rather than violating uniqueness with a duplicate.
		m.root.value = value
		return
	}
	m.root = n
	m.size++
}

// Visitor observes one (key, value) pair during Enumerate. It must not
// mutate the Map it is enumerating.
type Visitor func(key Key, value interface{})

// Enumerate visits every entry in an unspecified but stable (for the
// duration of one call) order.
func (m *Map) Enumerate(visit Visitor) {
	var walk func(*node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		walk(n.left)
		visit(n.key, n.value)
		walk(n.right)
	}
	walk(m.root)
}

// splay brings the node matching key (or its nearest neighbor, if absent)
// to the root via the standard top-down splay rotation sequence.
func splay(root *node, key Key) *node {
	if root == nil {
		return nil
	}

	var header node
	left, right := &header, &header

	for {
		switch {
		case key < root.key:
			if root.left == nil {
				break
			}
			if key < root.left.key {
				root = rotateRight(root)
				if root.left == nil {
					break
				}
			}
			right.left = root
			right = root
			root = root.left
			continue
		case key > root.key:
			if root.right == nil {
				break
			}
			if key > root.right.key {
				root = rotateLeft(root)
				if root.right == nil {
					break
				}
			}
			left.right = root
			left = root
			root = root.right
			continue
		}
		break
	}

	left.right = root.left
	right.left = root.right
	root.left = header.right
	root.right = header.left
	return root
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	l.right = n
	return l
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	r.left = n
	return r
}
