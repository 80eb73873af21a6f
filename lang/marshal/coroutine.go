package marshal

import "github.com/mna/nenuphar/lang/machine"

// coHasChild marks, in the coroutine's flags varint, that a child coroutine
// (the one this coroutine yielded into) follows the frame list.
const coHasChild = 1 << 31

// frameHasEnv marks, in a frame's flags varint, that a captured-environment
// record follows the frame's embedded function.
const frameHasEnv = 1 << 31

// writeCoroutineBody implements the coroutine sub-protocol (§4.6). The
// caller (writeValue's *machine.Coroutine case) has already appended
// LB_FIBER and marked the coroutine in the reference table, so a frame's
// on-stack environment can safely embed this same coroutine as a
// back-reference.
//
// Unlike the original's frame walk, which derives each frame's data window
// from a prevframe/FRAME_SIZE arithmetic chain tied to a native stack
// layout, this runtime's CoroutineFrame already records each frame's data
// window explicitly (Base, Top), so those absolute bounds are written
// directly; the reader places each frame's values back at that same
// absolute position, which keeps them aligned with any FuncEnv.Offset that
// references this coroutine's Data array directly.
func (w *Writer) writeCoroutineBody(co *machine.Coroutine) error {
	if err := w.enter(); err != nil {
		return err
	}
	defer w.leave()

	if co.Status == machine.CoroutineAlive {
		return errAliveCoroutine()
	}

	flags := co.Flags
	if co.Child != nil {
		flags |= coHasChild
	}
	w.buf = writeVarint(w.buf, int32(flags))
	w.buf = writeVarint(w.buf, int32(co.Status))
	w.buf = writeVarint(w.buf, int32(co.StackStart))
	w.buf = writeVarint(w.buf, int32(co.StackTop))
	w.buf = writeVarint(w.buf, int32(co.MaxStack))
	w.buf = writeVarint(w.buf, int32(len(co.Frames)))

	for i := len(co.Frames) - 1; i >= 0; i-- {
		f := co.Frames[i]
		if f.Fn == nil {
			return errNativeFrame(len(w.buf))
		}
		frameFlags := f.Flags
		if f.Env != nil {
			frameFlags |= frameHasEnv
		}
		w.buf = writeVarint(w.buf, int32(frameFlags))
		w.buf = writeVarint(w.buf, int32(f.PrevOffset))
		w.buf = writeVarint(w.buf, int32(f.PC))
		if err := w.writeValue(f.Fn); err != nil {
			return err
		}
		if frameFlags&frameHasEnv != 0 {
			if err := w.writeFuncenv(f.Env); err != nil {
				return err
			}
		}
		w.buf = writeVarint(w.buf, int32(f.Base))
		w.buf = writeVarint(w.buf, int32(f.Top-f.Base))
		for k := f.Base; k < f.Top; k++ {
			if err := w.writeValue(co.Data[k]); err != nil {
				return err
			}
		}
	}

	if co.Child != nil {
		if err := w.writeValue(co.Child); err != nil {
			return err
		}
	}
	return nil
}

// readCoroutineBody mirrors writeCoroutineBody, filling co in place. co has
// already been appended to r.refs by the caller so that a frame's on-stack
// environment resolves a back-reference to co correctly.
func (r *Reader) readCoroutineBody(co *machine.Coroutine) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	flags, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	hasChild := uint32(flags)&coHasChild != 0
	co.Flags = uint32(flags) &^ coHasChild

	status, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	co.Status = machine.CoroutineStatus(status)

	stackStart, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	stackTop, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	maxStack, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	co.StackStart = int(stackStart)
	co.StackTop = int(stackTop)
	co.MaxStack = int(maxStack)

	frameCount, next, err := readVarint(r.data, r.off)
	if err != nil {
		return err
	}
	r.off = next
	if frameCount < 0 {
		return r.errNegativeCount()
	}

	type rawFrame struct {
		flags      uint32
		prevOffset int
		pc         uint32
		fn         *machine.Function
		env        *machine.FuncEnv
		base       int
		vals       []machine.Value
	}
	raws := make([]rawFrame, frameCount)

	dataLen := 0
	for i := range raws {
		frameFlags, next, err := readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next
		prevOffset, next, err := readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next
		pc, next, err := readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next

		fnV, err := r.readValue()
		if err != nil {
			return err
		}
		fn, ok := fnV.(*machine.Function)
		if !ok {
			return errExpectedType(r.off, "function", fnV.Type())
		}
		if int(pc) < 0 {
			return errFrameMismatch(r.off, "negative pc")
		}
		if insns, derr := decodeInsns(fn.Funcode.Code); derr == nil && int(pc) >= len(insns) {
			return errFrameMismatch(r.off, "pc out of range")
		}

		var env *machine.FuncEnv
		if uint32(frameFlags)&frameHasEnv != 0 {
			env, err = r.readFuncenv()
			if err != nil {
				return err
			}
		}

		base, next, err := readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next
		length, next, err := readVarint(r.data, r.off)
		if err != nil {
			return err
		}
		r.off = next
		if base < 0 || length < 0 {
			return errFrameMismatch(r.off, "negative frame bounds")
		}
		if prevOffset >= 0 && int(prevOffset) >= int(base) {
			return errFrameMismatch(r.off, "prevframe not below frame base")
		}
		if int(length) != fn.Funcode.MaxStack {
			return errFrameMismatch(r.off, "slot count does not match function's slot count")
		}

		vals := make([]machine.Value, 0, maxPrealloc(length))
		for k := int32(0); k < length; k++ {
			v, err := r.readValue()
			if err != nil {
				return err
			}
			vals = append(vals, v)
		}
		if top := int(base) + len(vals); top > dataLen {
			dataLen = top
		}

		raws[i] = rawFrame{
			flags:      uint32(frameFlags) &^ frameHasEnv,
			prevOffset: int(prevOffset),
			pc:         uint32(pc),
			fn:         fn,
			env:        env,
			base:       int(base),
			vals:       vals,
		}
	}

	if dataLen < co.StackTop {
		dataLen = co.StackTop
	}
	data := make([]machine.Value, dataLen)
	for i := range data {
		data[i] = machine.Nil
	}
	frames := make([]*machine.CoroutineFrame, len(raws))
	for i, raw := range raws {
		copy(data[raw.base:raw.base+len(raw.vals)], raw.vals)
		frame := &machine.CoroutineFrame{
			Flags:      raw.flags,
			Fn:         raw.fn,
			PC:         raw.pc,
			Env:        raw.env,
			Base:       raw.base,
			Top:        raw.base + len(raw.vals),
			PrevOffset: raw.prevOffset,
		}
		// raws is newest-first (write order); Frames is oldest-first.
		frames[len(raws)-1-i] = frame
	}
	co.Data = data
	co.Frames = frames

	if hasChild {
		childV, err := r.readValue()
		if err != nil {
			return err
		}
		child, ok := childV.(*machine.Coroutine)
		if !ok {
			return errExpectedType(r.off, "coroutine", childV.Type())
		}
		co.Child = child
	}

	return nil
}
