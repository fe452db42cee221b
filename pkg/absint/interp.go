package absint

import (
	"github.com/vmjit/tracejit/pkg/avalue"
	"github.com/vmjit/tracejit/pkg/bytecode"
)

// maxWorklistSteps bounds the fixed-point loop; exceeding it is treated as
// AI divergence (spec §7, "AI divergence: worklist exceeds a safety
// bound").
const maxWorklistSteps = 1 << 20

// Interpreter runs the fixed-point worklist algorithm over one code
// object's instructions. It is single-use and stack-confined: build one
// with New, call Run once, then read results through GetStackInfo /
// GetLocalInfo / GetReturnInfo (spec §5, "single-use, stack-confined
// objects").
type Interpreter struct {
	code   bytecode.CodeObject
	instrs []bytecode.Instruction
	idx    bytecode.OffsetIndex

	snapshots []state
	reached   []bool

	haveReturn bool
	returnInfo avalue.Value
}

// New builds an Interpreter for code. Call Run with the specialization
// argument kinds (spec §4.4 step 1) to execute the worklist.
func New(code bytecode.CodeObject) *Interpreter {
	instrs := code.Code()
	return &Interpreter{
		code:      code,
		instrs:    instrs,
		idx:       bytecode.NewOffsetIndex(instrs),
		snapshots: make([]state, len(instrs)),
		reached:   make([]bool, len(instrs)),
	}
}

// initialState builds the offset-0 snapshot: argument positions hold Any,
// every other local is Undefined and maybe-undefined. Run immediately
// overwrites the argument positions with the specialization kinds (or Any).
func (ip *Interpreter) initialState() state {
	nlocals := ip.code.NLocals()
	nargs := ip.code.NArgs()
	locals := make([]LocalInfo, nlocals)
	for i := 0; i < nlocals; i++ {
		if i < nargs {
			locals[i] = LocalInfo{Value: avalue.AnyValue(), MaybeUndefined: false}
		} else {
			locals[i] = LocalInfo{Value: avalue.UndefinedValue(), MaybeUndefined: true}
		}
	}
	return state{locals: locals}
}

// Run executes the worklist algorithm to a fixed point. It returns false if
// any transfer function detects an unrepresentable shape — stack
// underflow, a stack-depth mismatch between predecessors, or the worklist
// failing to converge within its safety bound (spec §4.4 step 5).
func (ip *Interpreter) Run(argKinds []avalue.Kind) bool {
	if len(ip.instrs) == 0 {
		return true
	}
	init := ip.initialState()
	nargs := ip.code.NArgs()
	for i := 0; i < nargs; i++ {
		k := avalue.Any
		if i < len(argKinds) {
			k = argKinds[i]
		}
		init.locals[i] = LocalInfo{Value: avalue.Top(k), MaybeUndefined: false}
	}

	ip.snapshots[0] = init
	ip.reached[0] = true
	worklist := []int{0}

	steps := 0
	for len(worklist) > 0 {
		steps++
		if steps > maxWorklistSteps {
			return false
		}
		i := worklist[0]
		worklist = worklist[1:]

		cur := ip.snapshots[i]
		ins := ip.instrs[i]

		succs, ok := ip.transfer(i, ins, cur)
		if !ok {
			return false
		}
		for _, s := range succs {
			if s.index < 0 || s.index >= len(ip.instrs) {
				return false
			}
			if !ip.reached[s.index] {
				ip.reached[s.index] = true
				ip.snapshots[s.index] = s.state
				worklist = append(worklist, s.index)
				continue
			}
			merged, changed, ok := merge(ip.snapshots[s.index], s.state)
			if !ok {
				return false
			}
			if changed {
				ip.snapshots[s.index] = merged
				worklist = append(worklist, s.index)
			}
		}
	}
	return true
}

// successor pairs a target instruction index with the proposed state to
// merge into it.
type successor struct {
	index int
	state state
}

// GetStackInfo returns the abstract stack at offset, top last.
func (ip *Interpreter) GetStackInfo(offset int) ([]avalue.Value, bool) {
	i, ok := ip.idx[offset]
	if !ok || !ip.reached[i] {
		return nil, false
	}
	return append([]avalue.Value(nil), ip.snapshots[i].stack...), true
}

// GetLocalInfo returns the Local Info for localIndex at offset.
func (ip *Interpreter) GetLocalInfo(offset, localIndex int) (LocalInfo, bool) {
	i, ok := ip.idx[offset]
	if !ok || !ip.reached[i] {
		return LocalInfo{}, false
	}
	locals := ip.snapshots[i].locals
	if localIndex < 0 || localIndex >= len(locals) {
		return LocalInfo{}, false
	}
	return locals[localIndex], true
}

// GetReturnInfo returns the join of every RETURN_VALUE operand seen, or
// AnyValue if the function has no reachable return.
func (ip *Interpreter) GetReturnInfo() avalue.Value {
	if !ip.haveReturn {
		return avalue.AnyValue()
	}
	return ip.returnInfo
}
