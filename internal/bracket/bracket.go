// Package bracket builds and advances a single-elimination tournament tree.
package bracket

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrTooFewParticipants is returned when a bracket needs at least two entrants.
	ErrTooFewParticipants = errors.New("bracket requires at least two participants")
	// ErrNodeResolved is returned when reporting a result for a settled node.
	ErrNodeResolved = errors.New("bracket node already resolved")
)

// Match is a playable, unresolved node pairing two participants.
type Match struct {
	Node  int
	Round int
	Left  string
	Right string
}

// Other returns the opponent of id within the match.
func (m Match) Other(id string) string {
	if m.Left == id {
		return m.Right
	}
	return m.Left
}

// Has reports whether id is one of the match's participants.
func (m Match) Has(id string) bool {
	return id == m.Left || id == m.Right
}

type node struct {
	winner   string
	resolved bool
}

// Bracket is a balanced single-elimination tree stored as a binary heap:
// node 1 is the root, node i's children are 2i and 2i+1, and leaves hold the
// seeded participants padded with byes up to the next power of two. A bye
// slot is the empty string; any node facing a bye auto-advances.
type Bracket struct {
	leafCount int
	rounds    int
	seeds     []string
	nodes     []node
}

// New seeds participants into the tree in the given order and resolves all
// bye matches immediately.
func New(participants []string) (*Bracket, error) {
	if len(participants) < 2 {
		return nil, ErrTooFewParticipants
	}
	leafCount := 1
	rounds := 0
	for leafCount < len(participants) {
		leafCount <<= 1
		rounds++
	}
	seeds := make([]string, leafCount)
	copy(seeds, participants)

	b := &Bracket{
		leafCount: leafCount,
		rounds:    rounds,
		seeds:     seeds,
		nodes:     make([]node, leafCount),
	}
	b.propagate()
	return b, nil
}

// Rounds returns the bracket depth: ceil(log2 n) for n participants.
func (b *Bracket) Rounds() int {
	return b.rounds
}

// slot returns the occupant feeding into heap position i once it is decided.
func (b *Bracket) slot(i int) (string, bool) {
	if i >= b.leafCount {
		return b.seeds[i-b.leafCount], true
	}
	n := b.nodes[i]
	return n.winner, n.resolved
}

// propagate resolves every node whose outcome needs no match: bye-vs-bye
// resolves empty, anyone-vs-bye auto-advances. Children carry higher heap
// indices than parents, so one descending pass settles the whole tree.
func (b *Bracket) propagate() {
	for i := b.leafCount - 1; i >= 1; i-- {
		if b.nodes[i].resolved {
			continue
		}
		left, lok := b.slot(2 * i)
		right, rok := b.slot(2*i + 1)
		if !lok || !rok {
			continue
		}
		switch {
		case left == "" && right == "":
			b.nodes[i] = node{winner: "", resolved: true}
		case left == "":
			b.nodes[i] = node{winner: right, resolved: true}
		case right == "":
			b.nodes[i] = node{winner: left, resolved: true}
		}
	}
}

// roundOf maps a heap index to its 1-based round counted from the leaves.
func (b *Bracket) roundOf(i int) int {
	level := bits.Len(uint(i)) - 1
	return b.rounds - level
}

// NextMatch returns the earliest unresolved node with both participants
// decided, scanning rounds from the leaves up and left to right within a
// round so the playing order is deterministic.
func (b *Bracket) NextMatch() (Match, bool) {
	for level := b.rounds - 1; level >= 0; level-- {
		lo := 1 << level
		hi := lo << 1
		for i := lo; i < hi && i < b.leafCount; i++ {
			if b.nodes[i].resolved {
				continue
			}
			left, lok := b.slot(2 * i)
			right, rok := b.slot(2*i + 1)
			if lok && rok && left != "" && right != "" {
				return Match{Node: i, Round: b.roundOf(i), Left: left, Right: right}, true
			}
		}
	}
	return Match{}, false
}

// Report records the winner of an unresolved node and advances them into the
// parent, resolving any byes that become decidable.
func (b *Bracket) Report(nodeIndex int, winner string) error {
	if nodeIndex < 1 || nodeIndex >= b.leafCount {
		return fmt.Errorf("bracket node %d out of range", nodeIndex)
	}
	if b.nodes[nodeIndex].resolved {
		return ErrNodeResolved
	}
	left, lok := b.slot(2 * nodeIndex)
	right, rok := b.slot(2*nodeIndex + 1)
	if !lok || !rok {
		return fmt.Errorf("bracket node %d is not ready to resolve", nodeIndex)
	}
	if winner != left && winner != right {
		return fmt.Errorf("participant %q is not part of node %d", winner, nodeIndex)
	}
	b.nodes[nodeIndex] = node{winner: winner, resolved: true}
	b.propagate()
	return nil
}

// IsComplete reports whether the root has resolved.
func (b *Bracket) IsComplete() bool {
	return b.nodes[1].resolved
}

// Winner returns the root occupant once the bracket is complete.
func (b *Bracket) Winner() (string, bool) {
	if !b.nodes[1].resolved {
		return "", false
	}
	return b.nodes[1].winner, true
}
