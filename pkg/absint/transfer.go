package absint

import (
	"github.com/vmjit/tracejit/pkg/avalue"
	"github.com/vmjit/tracejit/pkg/bytecode"
)

var binOpFor = map[bytecode.Opcode]avalue.BinOp{
	bytecode.BINARY_ADD:            avalue.Add,
	bytecode.BINARY_SUBTRACT:       avalue.Sub,
	bytecode.BINARY_MULTIPLY:       avalue.Mul,
	bytecode.BINARY_TRUE_DIVIDE:    avalue.TrueDiv,
	bytecode.BINARY_FLOOR_DIVIDE:   avalue.FloorDiv,
	bytecode.BINARY_MODULO:         avalue.Mod,
	bytecode.BINARY_POWER:          avalue.Pow,
	bytecode.BINARY_LSHIFT:         avalue.LShift,
	bytecode.BINARY_RSHIFT:         avalue.RShift,
	bytecode.BINARY_AND:            avalue.And,
	bytecode.BINARY_OR:             avalue.Or,
	bytecode.BINARY_XOR:            avalue.Xor,
	bytecode.BINARY_MATRIX_MULTIPLY: avalue.MatMul,
}

var unaryOpFor = map[bytecode.Opcode]avalue.UnaryOp{
	bytecode.UNARY_NEGATIVE: avalue.Neg,
	bytecode.UNARY_POSITIVE: avalue.Pos,
	bytecode.UNARY_INVERT:   avalue.Invert,
	bytecode.UNARY_NOT:      avalue.Not,
}

// constToValue infers an abstract value from a code object's pooled
// constant (spec §4.4, "LOAD_CONST c: pushes an abstract value whose kind
// is inferred from c's runtime type and which remembers c as its concrete
// value").
func constToValue(c bytecode.Const) avalue.Value {
	switch c.Kind {
	case bytecode.ConstInt:
		return avalue.ConstInt(c.Int)
	case bytecode.ConstFloat:
		return avalue.ConstFloat(c.Float)
	case bytecode.ConstBool:
		return avalue.ConstBool(c.Bool)
	case bytecode.ConstStr:
		return avalue.ConstStr(c.Str)
	case bytecode.ConstNone:
		return avalue.ConstNone()
	case bytecode.ConstBytes:
		return avalue.Top(avalue.Bytes)
	case bytecode.ConstTuple:
		return avalue.Top(avalue.Tuple)
	default:
		return avalue.AnyValue()
	}
}

// fallthroughIndex returns i+1 when ins does not terminate straight-line
// flow, else -1.
func fallthroughIndex(instrs []bytecode.Instruction, i int) int {
	if bytecode.IsTerminator(instrs[i].Op) {
		return -1
	}
	if i+1 < len(instrs) {
		return i + 1
	}
	return -1
}

// transfer applies ins's transfer function to cur, returning the set of
// successor (index, state) pairs. ok is false on stack underflow or any
// other unrepresentable shape (spec §4.4 step 5).
func (ip *Interpreter) transfer(i int, ins bytecode.Instruction, cur state) ([]successor, bool) {
	arg := int(ins.Arg)

	popN := func(s state, n int) (state, bool) {
		for k := 0; k < n; k++ {
			if len(s.stack) == 0 {
				return s, false
			}
			s.stack = s.stack[:len(s.stack)-1]
		}
		return s, true
	}
	pushAnyN := func(s state, n int) state {
		for k := 0; k < n; k++ {
			s = s.push(avalue.AnyValue())
		}
		return s
	}

	next := cur.clone()
	ok := true

	switch ins.Op {
	case bytecode.NOP, bytecode.POP_BLOCK, bytecode.END_FINALLY, bytecode.POP_EXCEPT:
		if ins.Op == bytecode.POP_BLOCK && len(next.handlerStack) > 0 {
			next.handlerStack = next.handlerStack[:len(next.handlerStack)-1]
		}

	case bytecode.POP_TOP:
		_, next, ok = next.pop()

	case bytecode.DUP_TOP:
		if len(next.stack) == 0 {
			ok = false
			break
		}
		top := next.stack[len(next.stack)-1]
		next = next.push(top)

	case bytecode.DUP_TOP_TWO:
		if len(next.stack) < 2 {
			ok = false
			break
		}
		a, b := next.stack[len(next.stack)-2], next.stack[len(next.stack)-1]
		next = next.push(a).push(b)

	case bytecode.ROT_TWO:
		if len(next.stack) < 2 {
			ok = false
			break
		}
		n := len(next.stack)
		next.stack[n-1], next.stack[n-2] = next.stack[n-2], next.stack[n-1]

	case bytecode.ROT_THREE:
		if len(next.stack) < 3 {
			ok = false
			break
		}
		n := len(next.stack)
		next.stack[n-1], next.stack[n-2], next.stack[n-3] = next.stack[n-2], next.stack[n-3], next.stack[n-1]

	case bytecode.ROT_FOUR:
		if len(next.stack) < 4 {
			ok = false
			break
		}
		n := len(next.stack)
		next.stack[n-1], next.stack[n-2], next.stack[n-3], next.stack[n-4] =
			next.stack[n-2], next.stack[n-3], next.stack[n-4], next.stack[n-1]

	case bytecode.LOAD_CONST:
		consts := ip.code.Consts()
		var v avalue.Value
		if arg >= 0 && arg < len(consts) {
			v = constToValue(consts[arg])
		} else {
			v = avalue.AnyValue()
		}
		next = next.push(v)

	case bytecode.LOAD_FAST:
		if arg < 0 || arg >= len(next.locals) {
			ok = false
			break
		}
		// maybe_undefined just tells the driver to emit a defined-check;
		// the AI still propagates the local's known value unchanged.
		next = next.push(next.locals[arg].Value)

	case bytecode.STORE_FAST:
		var v avalue.Value
		v, next, ok = next.pop()
		if ok {
			if arg < 0 || arg >= len(next.locals) {
				ok = false
				break
			}
			next.locals[arg] = LocalInfo{Value: v, MaybeUndefined: false}
		}

	case bytecode.DELETE_FAST:
		if arg < 0 || arg >= len(next.locals) {
			ok = false
			break
		}
		next.locals[arg] = LocalInfo{Value: avalue.UndefinedValue(), MaybeUndefined: true}

	case bytecode.LOAD_DEREF, bytecode.LOAD_GLOBAL, bytecode.LOAD_NAME, bytecode.LOAD_CLOSURE:
		// Name/cell resolution is not tracked by the lattice; any result
		// kind is possible.
		next = next.push(avalue.AnyValue())

	case bytecode.STORE_DEREF, bytecode.STORE_GLOBAL, bytecode.STORE_NAME:
		_, next, ok = next.pop()

	case bytecode.DELETE_NAME:
		// no stack effect

	case bytecode.UNARY_NOT, bytecode.UNARY_NEGATIVE, bytecode.UNARY_POSITIVE, bytecode.UNARY_INVERT:
		var v avalue.Value
		v, next, ok = next.pop()
		if ok {
			next = next.push(avalue.Unary(unaryOpFor[ins.Op], v))
		}

	case bytecode.BINARY_ADD, bytecode.BINARY_SUBTRACT, bytecode.BINARY_MULTIPLY,
		bytecode.BINARY_TRUE_DIVIDE, bytecode.BINARY_FLOOR_DIVIDE, bytecode.BINARY_MODULO,
		bytecode.BINARY_POWER, bytecode.BINARY_LSHIFT, bytecode.BINARY_RSHIFT,
		bytecode.BINARY_AND, bytecode.BINARY_OR, bytecode.BINARY_XOR, bytecode.BINARY_MATRIX_MULTIPLY:
		var lhs, rhs avalue.Value
		rhs, next, ok = next.pop()
		if ok {
			lhs, next, ok = next.pop()
		}
		if ok {
			next = next.push(avalue.Binary(binOpFor[ins.Op], lhs, rhs))
		}

	case bytecode.BINARY_SUBSCR:
		next, ok = popN(next, 2)
		if ok {
			next = next.push(avalue.AnyValue())
		}

	case bytecode.STORE_SUBSCR:
		next, ok = popN(next, 3)

	case bytecode.DELETE_SUBSCR:
		next, ok = popN(next, 2)

	case bytecode.COMPARE_OP:
		next, ok = popN(next, 2)
		if ok {
			next = next.push(avalue.Top(avalue.Bool))
		}

	case bytecode.JUMP_ABSOLUTE, bytecode.JUMP_FORWARD:
		target, found := ip.idx[arg]
		if !found {
			ok = false
			break
		}
		return []successor{{index: target, state: next}}, true

	case bytecode.POP_JUMP_IF_TRUE, bytecode.POP_JUMP_IF_FALSE:
		_, next, ok = next.pop()
		if !ok {
			break
		}
		target, found := ip.idx[arg]
		if !found {
			ok = false
			break
		}
		succs := []successor{{index: target, state: next}}
		if ft := fallthroughIndex(ip.instrs, i); ft >= 0 {
			succs = append(succs, successor{index: ft, state: next})
		}
		return succs, true

	case bytecode.JUMP_IF_TRUE_OR_POP, bytecode.JUMP_IF_FALSE_OR_POP:
		target, found := ip.idx[arg]
		if !found {
			ok = false
			break
		}
		taken := next // value stays on stack when the jump is taken
		var notTaken state
		_, notTaken, ok = next.pop()
		if !ok {
			break
		}
		succs := []successor{{index: target, state: taken}}
		if ft := fallthroughIndex(ip.instrs, i); ft >= 0 {
			succs = append(succs, successor{index: ft, state: notTaken})
		}
		return succs, true

	case bytecode.RETURN_VALUE:
		var v avalue.Value
		v, _, ok = next.pop()
		if ok {
			if ip.haveReturn {
				ip.returnInfo = avalue.Join(ip.returnInfo, v)
			} else {
				ip.returnInfo = v
				ip.haveReturn = true
			}
		}
		return nil, ok

	case bytecode.GET_ITER:
		_, next, ok = next.pop()
		if ok {
			next = next.push(avalue.Top(avalue.Iterable))
		}

	case bytecode.FOR_ITER:
		if len(next.stack) == 0 {
			ok = false
			break
		}
		target, found := ip.idx[arg]
		if !found {
			ok = false
			break
		}
		loopBody := next.push(avalue.AnyValue())
		var loopExit state
		_, loopExit, ok = next.pop()
		if !ok {
			break
		}
		succs := []successor{{index: target, state: loopExit}}
		if ft := fallthroughIndex(ip.instrs, i); ft >= 0 {
			succs = append(succs, successor{index: ft, state: loopBody})
		}
		return succs, true

	case bytecode.SETUP_FINALLY, bytecode.SETUP_EXCEPT:
		target, found := ip.idx[arg]
		if !found {
			ok = false
			break
		}
		next.handlerStack = append(append([]int(nil), next.handlerStack...), i)
		succs := []successor{}
		if ft := fallthroughIndex(ip.instrs, i); ft >= 0 {
			succs = append(succs, successor{index: ft, state: next})
		}
		// The handler entry sees the exception triple pushed on top of the
		// stack depth recorded at the SETUP_* site (spec §4.4: "Branches to
		// an exception handler set up the abstract stack to match the
		// handler's documented layout").
		handlerEntry := cur.clone()
		handlerEntry.unwindOnly = true
		handlerEntry = pushAnyN(handlerEntry, 3)
		succs = append(succs, successor{index: target, state: handlerEntry})
		return succs, true

	case bytecode.RAISE_VARARGS:
		next, ok = popN(next, arg)
		return nil, ok

	case bytecode.RERAISE:
		return nil, true

	case bytecode.BUILD_LIST:
		next, ok = popN(next, arg)
		if ok {
			next = next.push(avalue.Top(avalue.List))
		}

	case bytecode.BUILD_TUPLE:
		next, ok = popN(next, arg)
		if ok {
			next = next.push(avalue.Top(avalue.Tuple))
		}

	case bytecode.BUILD_SET:
		next, ok = popN(next, arg)
		if ok {
			next = next.push(avalue.Top(avalue.Set))
		}

	case bytecode.BUILD_MAP:
		next, ok = popN(next, arg*2)
		if ok {
			next = next.push(avalue.Top(avalue.Dict))
		}

	case bytecode.LIST_APPEND, bytecode.SET_ADD:
		_, next, ok = next.pop()

	case bytecode.MAP_ADD:
		next, ok = popN(next, 2)

	case bytecode.LIST_EXTEND, bytecode.DICT_UPDATE, bytecode.DICT_MERGE:
		_, next, ok = next.pop()

	case bytecode.LOAD_ATTR:
		_, next, ok = next.pop()
		if ok {
			next = next.push(avalue.AnyValue())
		}

	case bytecode.STORE_ATTR:
		next, ok = popN(next, 2)

	case bytecode.DELETE_ATTR:
		_, next, ok = next.pop()

	case bytecode.IMPORT_NAME:
		next, ok = popN(next, 2)
		if ok {
			next = next.push(avalue.AnyValue())
		}

	case bytecode.IMPORT_FROM:
		if len(next.stack) == 0 {
			ok = false
			break
		}
		next = next.push(avalue.AnyValue())

	case bytecode.IMPORT_STAR:
		_, next, ok = next.pop()

	case bytecode.CALL_FUNCTION:
		next, ok = popN(next, arg+1)
		if ok {
			next = next.push(avalue.AnyValue())
		}

	case bytecode.CALL_FUNCTION_KW:
		next, ok = popN(next, arg+2)
		if ok {
			next = next.push(avalue.AnyValue())
		}

	case bytecode.CALL_FUNCTION_EX:
		n := 2
		if arg&1 != 0 {
			n = 3
		}
		next, ok = popN(next, n)
		if ok {
			next = next.push(avalue.AnyValue())
		}

	case bytecode.LOAD_METHOD:
		_, next, ok = next.pop()
		if ok {
			next = pushAnyN(next, 2)
		}

	case bytecode.CALL_METHOD:
		next, ok = popN(next, arg+2)
		if ok {
			next = next.push(avalue.AnyValue())
		}

	case bytecode.UNPACK_SEQUENCE:
		_, next, ok = next.pop()
		if ok {
			next = pushAnyN(next, arg)
		}

	case bytecode.UNPACK_EX:
		_, next, ok = next.pop()
		if ok {
			before := arg & 0xff
			after := (arg >> 8) & 0xff
			next = pushAnyN(next, before+1+after)
		}

	case bytecode.FORMAT_VALUE:
		n := 1
		if arg&0x04 != 0 {
			n = 2
		}
		next, ok = popN(next, n)
		if ok {
			next = next.push(avalue.Top(avalue.String))
		}

	case bytecode.BUILD_STRING:
		next, ok = popN(next, arg)
		if ok {
			next = next.push(avalue.Top(avalue.String))
		}

	case bytecode.MAKE_FUNCTION:
		n := 2
		for b := 0; b < 4; b++ {
			if arg&(1<<uint(b)) != 0 {
				n++
			}
		}
		next, ok = popN(next, n)
		if ok {
			next = next.push(avalue.Top(avalue.Function))
		}

	case bytecode.BUILD_SLICE:
		next, ok = popN(next, arg)
		if ok {
			next = next.push(avalue.Top(avalue.Slice))
		}

	default:
		// Unrecognized opcode: the driver would refuse to lower it anyway;
		// the AI treats it as a no-op on the abstract stack rather than
		// diverging, so unrelated offsets can still be analyzed.
	}

	if !ok {
		return nil, false
	}
	// Every opcode with a jump-target operand (bytecode.HasJumpTarget) is
	// handled by an explicit case above with its own successor set; this
	// path only ever runs for straight-line opcodes.
	var succs []successor
	if ft := fallthroughIndex(ip.instrs, i); ft >= 0 {
		succs = append(succs, successor{index: ft, state: next})
	}
	return succs, true
}
