package machine

// A FuncEnv holds the values a closure captured from an enclosing scope. It
// is either "on-stack" — a view into a live coroutine's data stack, kept live
// as long as that coroutine is reachable — or "off-stack" — its own owned
// vector, used once the coroutine frame that created it has returned.
type FuncEnv struct {
	// Coroutine and Offset are set when this environment is on-stack: its
	// values live at Coroutine.Data[Offset : Offset+Length].
	Coroutine *Coroutine
	Offset    int

	// Vals holds the environment's values when it is off-stack (Coroutine is
	// nil). Length always equals len(Vals) in that case.
	Vals []Value

	Length int
}

var _ Value = (*FuncEnv)(nil)

func (e *FuncEnv) String() string { return "funcenv" }
func (e *FuncEnv) Type() string   { return "funcenv" }

// OnStack reports whether the environment is a view into a live coroutine's
// data stack rather than an owned vector.
func (e *FuncEnv) OnStack() bool { return e.Coroutine != nil }

// Get returns the value captured at index i.
func (e *FuncEnv) Get(i int) Value {
	if e.OnStack() {
		return e.Coroutine.Data[e.Offset+i]
	}
	return e.Vals[i]
}

// Set overwrites the value captured at index i.
func (e *FuncEnv) Set(i int, v Value) {
	if e.OnStack() {
		e.Coroutine.Data[e.Offset+i] = v
		return
	}
	e.Vals[i] = v
}

// NewOffStackEnv returns an off-stack environment owning vals.
func NewOffStackEnv(vals []Value) *FuncEnv {
	return &FuncEnv{Vals: vals, Length: len(vals)}
}

// NewOnStackEnv returns an on-stack environment viewing co.Data[offset:offset+length].
func NewOnStackEnv(co *Coroutine, offset, length int) *FuncEnv {
	return &FuncEnv{Coroutine: co, Offset: offset, Length: length}
}
