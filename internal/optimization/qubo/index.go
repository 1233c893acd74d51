package qubo

import "fmt"

// VarKind distinguishes what a binary variable means in the domain problem.
type VarKind uint8

const (
	// KindAssign is "worker A takes job B".
	KindAssign VarKind = iota + 1
	// KindItem is "item A is selected".
	KindItem
	// KindSlack is bit A of a slack register. Slack variables never appear
	// in decoded output.
	KindSlack
)

func (k VarKind) String() string {
	switch k {
	case KindAssign:
		return "assign"
	case KindItem:
		return "item"
	case KindSlack:
		return "slack"
	default:
		return fmt.Sprintf("VarKind(%d)", uint8(k))
	}
}

// Key names a variable by its domain meaning.
type Key struct {
	Kind VarKind
	A, B int
}

func (k Key) String() string {
	switch k.Kind {
	case KindAssign:
		return fmt.Sprintf("x[%d,%d]", k.A, k.B)
	case KindItem:
		return fmt.Sprintf("x[%d]", k.A)
	case KindSlack:
		return fmt.Sprintf("s[%d]", k.A)
	default:
		return fmt.Sprintf("%s(%d,%d)", k.Kind, k.A, k.B)
	}
}

// IndexMap is a bidirectional map between domain keys and flat variable
// indices 0..Len()-1, assigned in registration order.
type IndexMap struct {
	keys  []Key
	index map[Key]int
}

// NewIndexMap returns an empty map with room for n variables.
func NewIndexMap(n int) *IndexMap {
	return &IndexMap{
		keys:  make([]Key, 0, n),
		index: make(map[Key]int, n),
	}
}

// Add registers k and returns its index. Registering the same key twice is a
// programming error.
func (m *IndexMap) Add(k Key) int {
	if _, dup := m.index[k]; dup {
		panic(fmt.Sprintf("qubo: variable %s registered twice", k))
	}
	idx := len(m.keys)
	m.keys = append(m.keys, k)
	m.index[k] = idx
	return idx
}

// Index returns the flat index of k.
func (m *IndexMap) Index(k Key) (int, bool) {
	idx, ok := m.index[k]
	return idx, ok
}

// MustIndex is Index for keys the caller registered itself.
func (m *IndexMap) MustIndex(k Key) int {
	idx, ok := m.index[k]
	if !ok {
		panic(fmt.Sprintf("qubo: unknown variable %s", k))
	}
	return idx
}

// Key returns the key at idx.
func (m *IndexMap) Key(idx int) Key {
	return m.keys[idx]
}

// Len returns the number of registered variables.
func (m *IndexMap) Len() int {
	return len(m.keys)
}

// Count returns how many variables of kind k are registered.
func (m *IndexMap) Count(k VarKind) int {
	n := 0
	for _, key := range m.keys {
		if key.Kind == k {
			n++
		}
	}
	return n
}
