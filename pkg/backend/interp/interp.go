// Package interp is a reference backend.Backend that interprets the typed
// IL stream directly instead of lowering it to real machine code. It
// exists so the rest of the pipeline (driver, dispatcher, catalog) is
// exercisable without an actual native code generator, mirroring the
// teacher's own in-process VM (neo-go pkg/vm) evaluating a byte stream
// against an explicit operand stack rather than JIT-compiling it.
package interp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vmjit/tracejit/pkg/backend"
	"github.com/vmjit/tracejit/pkg/helper"
	"github.com/vmjit/tracejit/pkg/ilasm"
)

// Backend interprets IL byte streams produced by pkg/ilasm. It is not a
// native code generator: Generate returns a CompiledMethod whose
// NativeEntry is always zero and whose Native field holds the IL bytes
// themselves, so Eval can find them again at invocation time.
type Backend struct {
	catalog *helper.Catalog
}

// New builds an interpreting backend bound to catalog, the table every
// emit_call instruction is resolved against.
func New(catalog *helper.Catalog) *Backend {
	return &Backend{catalog: catalog}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "interp" }

// Generate implements backend.Backend. Since there is no real code
// generation step, it only validates that the IL stream is well-formed
// enough to execute (every opcode recognized, every call target in the
// catalog) and wraps it in a CompiledMethod.
func (b *Backend) Generate(il []byte, sig backend.Signature, frameSize int) (backend.CompiledMethod, error) {
	if err := validate(il, b.catalog); err != nil {
		return backend.CompiledMethod{}, err
	}
	return backend.CompiledMethod{Native: il}, nil
}

func validate(il []byte, catalog *helper.Catalog) error {
	p := 0
	for p < len(il) {
		op := ilasm.Op(il[p])
		p++
		switch op {
		case ilasm.OpConstInt, ilasm.OpConstFloat64, ilasm.OpConstPtr:
			p += 8
		case ilasm.OpConstNull, ilasm.OpUnaryNeg, ilasm.OpAdd, ilasm.OpSub, ilasm.OpMul, ilasm.OpDiv,
			ilasm.OpCmpEq, ilasm.OpCmpNe, ilasm.OpCmpLt, ilasm.OpCmpLe, ilasm.OpCmpGt, ilasm.OpCmpGe,
			ilasm.OpCmpLtUn, ilasm.OpCmpLeUn, ilasm.OpCmpGtUn, ilasm.OpCmpGeUn,
			ilasm.OpBitAnd, ilasm.OpPop, ilasm.OpDup,
			ilasm.OpLdIndPtr, ilasm.OpLdIndI4, ilasm.OpLdIndR8,
			ilasm.OpStIndPtr, ilasm.OpStIndI4, ilasm.OpStIndR8, ilasm.OpBrk:
			// no operands
		case ilasm.OpLdLoc, ilasm.OpStLoc, ilasm.OpLdLocAddr, ilasm.OpLdArg, ilasm.OpNewArray,
			ilasm.OpLdElemPtr, ilasm.OpLdElemI4, ilasm.OpLdElemR8:
			p += 2
		case ilasm.OpStElem:
			p += 6
		case ilasm.OpBranch:
			if p >= len(il) {
				return fmt.Errorf("interp: truncated branch at %d", p)
			}
			kind := ilasm.BranchKind(il[p])
			p++
			// Branch displacement width was chosen by the emitter; this
			// validator has no label table, so it trusts OpBranch's own
			// invariant (spec §4.1) that a resolved short form is exactly
			// 1 byte and a long form exactly 4. It distinguishes them by
			// re-deriving whether MarkLabel would have chosen short form:
			// not recoverable from the stream alone, so this reference
			// backend always treats the next 4 bytes as the long form.
			_ = kind
			p += 4
		case ilasm.OpRet:
			p += 1
		case ilasm.OpCall:
			p += 2
			id := helper.ID(binary.LittleEndian.Uint16(il[p-2 : p]))
			if _, ok := catalog.Lookup(id); !ok {
				return fmt.Errorf("interp: unregistered helper id %d", id)
			}
			p += 2 // popCount byte + returnsValue byte
		default:
			return fmt.Errorf("interp: unrecognized IL opcode %d at %d", op, p-1)
		}
	}
	return nil
}

// Eval interprets native (the IL bytes from a CompiledMethod built by this
// backend) against args, routing emit_call instructions through catalog.
// It is the reference ABI a dispatcher or test can call when no real
// native entry point exists.
func Eval(native []byte, catalog *helper.Catalog, args []interface{}) (interface{}, error) {
	m := &machine{il: native, catalog: catalog, args: args}
	return m.run()
}

type machine struct {
	il      []byte
	catalog *helper.Catalog
	args    []interface{}
	locals  []interface{}
	stack   []interface{}
	pc      int
}

func (m *machine) push(v interface{}) { m.stack = append(m.stack, v) }

func (m *machine) pop() (interface{}, error) {
	if len(m.stack) == 0 {
		return nil, fmt.Errorf("interp: stack underflow at pc=%d", m.pc)
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *machine) ensureLocal(i int) {
	for len(m.locals) <= i {
		m.locals = append(m.locals, nil)
	}
}

func (m *machine) readU16() int {
	v := binary.LittleEndian.Uint16(m.il[m.pc : m.pc+2])
	m.pc += 2
	return int(v)
}

func (m *machine) readI64() int64 {
	v := int64(binary.LittleEndian.Uint64(m.il[m.pc : m.pc+8]))
	m.pc += 8
	return v
}

func (m *machine) readF64() float64 {
	bits := binary.LittleEndian.Uint64(m.il[m.pc : m.pc+8])
	m.pc += 8
	return math.Float64frombits(bits)
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func (m *machine) run() (interface{}, error) {
	for m.pc < len(m.il) {
		op := ilasm.Op(m.il[m.pc])
		m.pc++
		switch op {
		case ilasm.OpConstInt:
			m.push(m.readI64())
		case ilasm.OpConstFloat64:
			m.push(m.readF64())
		case ilasm.OpConstPtr:
			m.push(uintptr(m.readI64()))
		case ilasm.OpConstNull:
			m.push(nil)

		case ilasm.OpUnaryNeg:
			v, err := m.pop()
			if err != nil {
				return nil, err
			}
			f, _ := asFloat(v)
			m.push(-f)

		case ilasm.OpAdd, ilasm.OpSub, ilasm.OpMul, ilasm.OpDiv:
			rhs, err := m.pop()
			if err != nil {
				return nil, err
			}
			lhs, err := m.pop()
			if err != nil {
				return nil, err
			}
			a, _ := asFloat(lhs)
			b, _ := asFloat(rhs)
			switch op {
			case ilasm.OpAdd:
				m.push(a + b)
			case ilasm.OpSub:
				m.push(a - b)
			case ilasm.OpMul:
				m.push(a * b)
			case ilasm.OpDiv:
				if b == 0 {
					return nil, fmt.Errorf("interp: division by zero")
				}
				m.push(a / b)
			}

		case ilasm.OpCmpEq, ilasm.OpCmpNe, ilasm.OpCmpLt, ilasm.OpCmpLe, ilasm.OpCmpGt, ilasm.OpCmpGe,
			ilasm.OpCmpLtUn, ilasm.OpCmpLeUn, ilasm.OpCmpGtUn, ilasm.OpCmpGeUn:
			rhs, err := m.pop()
			if err != nil {
				return nil, err
			}
			lhs, err := m.pop()
			if err != nil {
				return nil, err
			}
			a, _ := asFloat(lhs)
			b, _ := asFloat(rhs)
			var res bool
			switch op {
			case ilasm.OpCmpEq:
				res = a == b
			case ilasm.OpCmpNe:
				res = a != b
			case ilasm.OpCmpLt, ilasm.OpCmpLtUn:
				res = a < b
			case ilasm.OpCmpLe, ilasm.OpCmpLeUn:
				res = a <= b
			case ilasm.OpCmpGt, ilasm.OpCmpGtUn:
				res = a > b
			case ilasm.OpCmpGe, ilasm.OpCmpGeUn:
				res = a >= b
			}
			m.push(res)

		case ilasm.OpBitAnd:
			rhs, err := m.pop()
			if err != nil {
				return nil, err
			}
			lhs, err := m.pop()
			if err != nil {
				return nil, err
			}
			li, _ := lhs.(int64)
			ri, _ := rhs.(int64)
			m.push(li & ri)

		case ilasm.OpPop:
			if _, err := m.pop(); err != nil {
				return nil, err
			}
		case ilasm.OpDup:
			v, err := m.pop()
			if err != nil {
				return nil, err
			}
			m.push(v)
			m.push(v)

		case ilasm.OpLdLoc:
			i := m.readU16()
			m.ensureLocal(i)
			m.push(m.locals[i])
		case ilasm.OpStLoc:
			i := m.readU16()
			v, err := m.pop()
			if err != nil {
				return nil, err
			}
			m.ensureLocal(i)
			m.locals[i] = v
		case ilasm.OpLdLocAddr:
			i := m.readU16()
			m.ensureLocal(i)
			m.push(&m.locals[i])
		case ilasm.OpLdArg:
			i := m.readU16()
			if i < 0 || i >= len(m.args) {
				return nil, fmt.Errorf("interp: argument %d out of range", i)
			}
			m.push(m.args[i])

		case ilasm.OpLdIndPtr, ilasm.OpLdIndI4, ilasm.OpLdIndR8:
			v, err := m.pop()
			if err != nil {
				return nil, err
			}
			ptr, ok := v.(*interface{})
			if !ok {
				return nil, fmt.Errorf("interp: ld.ind on non-pointer")
			}
			m.push(*ptr)
		case ilasm.OpStIndPtr, ilasm.OpStIndI4, ilasm.OpStIndR8:
			val, err := m.pop()
			if err != nil {
				return nil, err
			}
			ptrv, err := m.pop()
			if err != nil {
				return nil, err
			}
			ptr, ok := ptrv.(*interface{})
			if !ok {
				return nil, fmt.Errorf("interp: st.ind on non-pointer")
			}
			*ptr = val

		case ilasm.OpBranch:
			kind := ilasm.BranchKind(m.il[m.pc])
			m.pc++
			disp := int32(binary.LittleEndian.Uint32(m.il[m.pc : m.pc+4]))
			m.pc += 4
			target := m.pc + int(disp)
			taken, err := m.branchTaken(kind)
			if err != nil {
				return nil, err
			}
			if taken {
				m.pc = target
			}

		case ilasm.OpRet:
			popCount := int(m.il[m.pc])
			m.pc++
			var result interface{}
			for k := 0; k < popCount; k++ {
				v, err := m.pop()
				if err != nil {
					return nil, err
				}
				if k == popCount-1 {
					result = v
				}
			}
			return result, nil

		case ilasm.OpBrk:
			// debugger trap: no-op in the reference interpreter.

		case ilasm.OpCall:
			id := helper.ID(m.readU16())
			popCount := int(m.il[m.pc])
			m.pc++
			returnsValue := m.il[m.pc] != 0
			m.pc++
			entry, ok := m.catalog.Lookup(id)
			if !ok {
				return nil, fmt.Errorf("interp: unregistered helper id %d", id)
			}
			callArgs := make([]interface{}, popCount)
			for k := popCount - 1; k >= 0; k-- {
				v, err := m.pop()
				if err != nil {
					return nil, err
				}
				callArgs[k] = v
			}
			result, err := entry.Fn(callArgs)
			if err != nil {
				return nil, err
			}
			if returnsValue {
				m.push(result)
			}

		case ilasm.OpNewArray:
			n := m.readU16()
			m.push(make([]interface{}, n))

		case ilasm.OpStElem:
			arrIdx := m.readU16()
			elemIdx := m.readU16()
			valIdx := m.readU16()
			m.ensureLocal(arrIdx)
			m.ensureLocal(valIdx)
			arr, ok := m.locals[arrIdx].([]interface{})
			if !ok {
				return nil, fmt.Errorf("interp: stelem on non-array local %d", arrIdx)
			}
			if elemIdx < 0 || elemIdx >= len(arr) {
				return nil, fmt.Errorf("interp: stelem index %d out of range", elemIdx)
			}
			arr[elemIdx] = m.locals[valIdx]

		case ilasm.OpLdElemPtr, ilasm.OpLdElemI4, ilasm.OpLdElemR8:
			idx := m.readU16()
			v, err := m.pop()
			if err != nil {
				return nil, err
			}
			arr, ok := v.([]interface{})
			if !ok {
				return nil, fmt.Errorf("interp: ldelem on non-array")
			}
			if idx < 0 || idx >= len(arr) {
				return nil, fmt.Errorf("interp: ldelem index %d out of range", idx)
			}
			m.push(arr[idx])

		default:
			return nil, fmt.Errorf("interp: unhandled IL opcode %d at pc=%d", op, m.pc-1)
		}
	}
	return nil, fmt.Errorf("interp: fell off the end of the IL stream without a ret")
}

func (m *machine) branchTaken(kind ilasm.BranchKind) (bool, error) {
	switch kind {
	case ilasm.BrAlways, ilasm.BrLeave:
		return true, nil
	case ilasm.BrTrue, ilasm.BrFalse:
		v, err := m.pop()
		if err != nil {
			return false, err
		}
		b, _ := v.(bool)
		if kind == ilasm.BrFalse {
			return !b, nil
		}
		return b, nil
	case ilasm.BrEqual, ilasm.BrNotEqual, ilasm.BrLessEqual:
		rhs, err := m.pop()
		if err != nil {
			return false, err
		}
		lhs, err := m.pop()
		if err != nil {
			return false, err
		}
		a, _ := asFloat(lhs)
		b, _ := asFloat(rhs)
		switch kind {
		case ilasm.BrEqual:
			return a == b, nil
		case ilasm.BrNotEqual:
			return a != b, nil
		case ilasm.BrLessEqual:
			return a <= b, nil
		}
	}
	return false, fmt.Errorf("interp: unhandled branch kind %d", kind)
}
