package sessions

// Cursor is the active-question state of a session: either no question is
// active, or exactly one question index is.
type Cursor struct {
	index  int
	active bool
}

// NoActiveQuestion is the state of a fresh session.
func NoActiveQuestion() Cursor { return Cursor{} }

// ActiveAt returns a cursor pointing at question i.
func ActiveAt(i int) Cursor { return Cursor{index: i, active: true} }

// Index returns the active question index and whether one is active.
func (c Cursor) Index() (int, bool) { return c.index, c.active }

// Is reports whether question i is the active one.
func (c Cursor) Is(i int) bool { return c.active && c.index == i }

// Wire renders the cursor as currentQuestionIndex (-1 for none).
func (c Cursor) Wire() int {
	if !c.active {
		return -1
	}
	return c.index
}
