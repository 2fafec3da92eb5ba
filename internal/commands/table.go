// Package commands holds the four configured command lists and resolves a
// (command, value) pair to a shell command line.
package commands

import "github.com/mattjoyce/knock/internal/protocol"

// Table is an immutable set of four ordered command lists. Command code N
// (1-4) selects list N; the value byte indexes into it.
type Table struct {
	lists [4][]string
}

// New copies lists into a Table. Later changes to the caller's slices do
// not affect it.
func New(lists [4][]string) *Table {
	t := &Table{}
	for i, l := range lists {
		t.lists[i] = append([]string(nil), l...)
	}
	return t
}

// Select returns the command line for msg, or false when the command code
// does not name a list or the value is out of range.
func (t *Table) Select(msg protocol.Message) (string, bool) {
	idx, ok := msg.ListIndex()
	if !ok {
		return "", false
	}
	list := t.lists[idx]
	if int(msg.Value) >= len(list) {
		return "", false
	}
	return list[msg.Value], true
}

// List returns a copy of command list n (1-4), or nil for any other n.
func (t *Table) List(n int) []string {
	if n < 1 || n > 4 {
		return nil
	}
	return append([]string(nil), t.lists[n-1]...)
}

// Len returns the total number of configured command lines.
func (t *Table) Len() int {
	total := 0
	for _, l := range t.lists {
		total += len(l)
	}
	return total
}
