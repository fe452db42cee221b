package ilasm

// Label is an opaque index into the emitter's label table.
type Label struct {
	index int
}

// fixup records one pending branch displacement write-back.
type fixup struct {
	// patchAt is the byte offset of the displacement field in the
	// serialized stream.
	patchAt int
	// long is true if the displacement field is 4 bytes (little-endian);
	// false means it is a single signed byte.
	long bool
	// instrEnd is the offset immediately after the branch instruction,
	// the base every displacement is relative to.
	instrEnd int
}

// labelState tracks one label's resolution.
type labelState struct {
	resolved bool
	offset   int
	pending  []fixup
}

// DefineLabel creates a new, as yet unmarked, label.
func (e *Emitter) DefineLabel() Label {
	idx := len(e.labels)
	e.labels = append(e.labels, labelState{})
	return Label{index: idx}
}

// MarkLabel resolves l to the current emission offset and patches every
// pending branch fixup for it. A label may be marked at most once.
func (e *Emitter) MarkLabel(l Label) {
	st := &e.labels[l.index]
	if st.resolved {
		panic("ilasm: label marked twice")
	}
	st.resolved = true
	st.offset = len(e.buf)
	for _, fx := range st.pending {
		e.patchDisplacement(fx, st.offset)
	}
	st.pending = nil
}

func (e *Emitter) patchDisplacement(fx fixup, targetOffset int) {
	disp := targetOffset - fx.instrEnd
	if fx.long {
		putInt32LE(e.buf[fx.patchAt:], int32(disp))
	} else {
		if disp < -128 || disp > 127 {
			panic("ilasm: short branch displacement out of range")
		}
		e.buf[fx.patchAt] = byte(int8(disp))
	}
}

func putInt32LE(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
