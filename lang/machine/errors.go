package machine

import "fmt"

// An EvalError is a Go error augmented with a machine call stack, returned by
// CallInternal and Call whenever an inner error escapes a running program. The
// Backtrace gives the caller the frames active at the point of failure.
type EvalError struct {
	Msg       string
	Err       error
	Backtrace []string
}

func (e *EvalError) Error() string { return e.Msg }
func (e *EvalError) Unwrap() error { return e.Err }

// evalError wraps err with a snapshot of the thread's current call stack. It
// wraps unconditionally; Call only invokes it for errors that are not already
// an *EvalError.
func (th *Thread) evalError(err error) *EvalError {
	bt := make([]string, 0, len(th.callStack))
	for i := len(th.callStack) - 1; i >= 0; i-- {
		fr := th.callStack[i]
		name := "?"
		if c, ok := fr.callable.(Callable); ok {
			name = c.Name()
		}
		bt = append(bt, fmt.Sprintf("%s (pc=%d)", name, fr.pc))
	}
	return &EvalError{Msg: err.Error(), Err: err, Backtrace: bt}
}
