package machine

// Frame records a call to a Callable value (including module toplevel) or a
// built-in function or method. Frames are kept in call order in the thread's
// callStack slice and are not linked to each other; a marshaled coroutine's
// frames use the separate CoroutineFrame type.
type Frame struct {
	callable Value  // current function (or toplevel) or callable
	pc       uint32 // program counter (non built-in only)

	// env is the captured environment this frame contributed its locals to, if
	// any outer function closed over them. The interpreter in this package does
	// not set it.
	env *FuncEnv
}
