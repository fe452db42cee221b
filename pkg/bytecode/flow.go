package bytecode

// OffsetIndex maps an instruction's byte Offset to its index in Code(),
// built once per compilation and shared by the AI and the driver.
type OffsetIndex map[int]int

// NewOffsetIndex builds the offset->index table for code.
func NewOffsetIndex(code []Instruction) OffsetIndex {
	idx := make(OffsetIndex, len(code))
	for i, ins := range code {
		idx[ins.Offset] = i
	}
	return idx
}

// Successors returns the indices (into code) of every instruction that may
// execute immediately after code[i], in the straight-line/branch/loop sense
// described in spec §4.4 step 3. Exception-handler entries are not included
// here; the driver's handler manager supplies those separately since they
// depend on which handlers are active, not on the opcode alone.
func Successors(code []Instruction, idx OffsetIndex, i int) []int {
	ins := code[i]
	var out []int
	if !IsTerminator(ins.Op) {
		if i+1 < len(code) {
			out = append(out, i+1)
		}
	}
	if HasJumpTarget(ins.Op) {
		if target, ok := idx[int(ins.Arg)]; ok {
			out = append(out, target)
		}
	}
	return out
}
