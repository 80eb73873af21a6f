package machine

import "fmt"

// Some machine opcodes are more complex and/or need to be exposed via a
// low-level interface to be available for higher-level APIs. Those functions
// belong in this file.

// Call calls the function or Callable value fn with the specified positional
// arguments.
func Call(thread *Thread, fn Value, args *Tuple) (Value, error) {
	c, ok := fn.(Callable)
	if !ok {
		return nil, fmt.Errorf("invalid call of non-function (%s)", fn.Type())
	}

	if thread.MaxCallStackDepth > 0 && len(thread.callStack) >= thread.MaxCallStackDepth {
		return nil, fmt.Errorf("call stack depth exceeded (%d)", thread.MaxCallStackDepth)
	}

	thread.init()

	fr := &Frame{callable: c}
	thread.callStack = append(thread.callStack, fr) // push

	// Use defer so that panics from built-ins pass through the interpreter
	// without leaving the thread in a bad state.
	defer func() {
		thread.callStack = thread.callStack[:len(thread.callStack)-1] // pop
	}()

	result, err := c.CallInternal(thread, args)

	// Sanity check: nil is not a valid value.
	if result == nil && err == nil {
		err = fmt.Errorf("internal error: nil returned from %s", fn)
	}

	// Always return an EvalError with an accurate backtrace.
	if err != nil {
		if _, ok := err.(*EvalError); !ok {
			err = thread.evalError(err)
		}
	}

	return result, err
}
