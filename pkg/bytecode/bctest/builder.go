// Package bctest provides a fluent bytecode.CodeObject builder for tests,
// grounded on the teacher's pkg/vm/emit helpers (free functions that append
// one instruction at a time to a growing buffer) but adapted to build
// instruction slices instead of a raw byte stream, and adapted to chain off
// the receiver the way testify's own builder-style helpers do.
package bctest

import "github.com/vmjit/tracejit/pkg/bytecode"

// Builder accumulates instructions and constants for one code object.
type Builder struct {
	name    string
	nargs   int
	nlocals int
	code    []bytecode.Instruction
	consts  []bytecode.Const
	names   []string
}

// New starts a builder for a code object named name taking nargs
// positional arguments, all of which count toward nlocals.
func New(name string, nargs, nlocals int) *Builder {
	return &Builder{name: name, nargs: nargs, nlocals: nlocals}
}

func (b *Builder) emit(op bytecode.Opcode, arg int32) *Builder {
	b.code = append(b.code, bytecode.Instruction{Offset: len(b.code), Op: op, Arg: arg})
	return b
}

// Op appends a zero-operand instruction.
func (b *Builder) Op(op bytecode.Opcode) *Builder { return b.emit(op, 0) }

// OpArg appends an instruction carrying an operand (jump targets, local
// slot indices, argument counts).
func (b *Builder) OpArg(op bytecode.Opcode, arg int32) *Builder { return b.emit(op, arg) }

// ConstInt interns an integer constant and emits LOAD_CONST for it.
func (b *Builder) ConstInt(v int64) *Builder {
	idx := b.addConst(bytecode.Const{Kind: bytecode.ConstInt, Int: v})
	return b.emit(bytecode.LOAD_CONST, idx)
}

// ConstFloat interns a float constant and emits LOAD_CONST for it.
func (b *Builder) ConstFloat(v float64) *Builder {
	idx := b.addConst(bytecode.Const{Kind: bytecode.ConstFloat, Float: v})
	return b.emit(bytecode.LOAD_CONST, idx)
}

// ConstStr interns a string constant and emits LOAD_CONST for it.
func (b *Builder) ConstStr(v string) *Builder {
	idx := b.addConst(bytecode.Const{Kind: bytecode.ConstStr, Str: v})
	return b.emit(bytecode.LOAD_CONST, idx)
}

// ConstBool interns a bool constant and emits LOAD_CONST for it.
func (b *Builder) ConstBool(v bool) *Builder {
	idx := b.addConst(bytecode.Const{Kind: bytecode.ConstBool, Bool: v})
	return b.emit(bytecode.LOAD_CONST, idx)
}

func (b *Builder) addConst(c bytecode.Const) int32 {
	b.consts = append(b.consts, c)
	return int32(len(b.consts) - 1)
}

// LoadFast/StoreFast address local slot i.
func (b *Builder) LoadFast(i int32) *Builder  { return b.emit(bytecode.LOAD_FAST, i) }
func (b *Builder) StoreFast(i int32) *Builder { return b.emit(bytecode.STORE_FAST, i) }

// Name interns a name and returns its pool index, for LOAD_GLOBAL/
// LOAD_ATTR-style instructions that index the name pool.
func (b *Builder) Name(n string) int32 {
	b.names = append(b.names, n)
	return int32(len(b.names) - 1)
}

// Return appends RETURN_VALUE.
func (b *Builder) Return() *Builder { return b.emit(bytecode.RETURN_VALUE, 0) }

// Code finalizes the builder into a bytecode.CodeObject.
func (b *Builder) Code() bytecode.CodeObject {
	return &builtCode{
		name:    b.name,
		code:    b.code,
		consts:  b.consts,
		names:   b.names,
		nargs:   b.nargs,
		nlocals: b.nlocals,
	}
}

type builtCode struct {
	name    string
	code    []bytecode.Instruction
	consts  []bytecode.Const
	names   []string
	nargs   int
	nlocals int
}

func (c *builtCode) Code() []bytecode.Instruction { return c.code }
func (c *builtCode) Consts() []bytecode.Const     { return c.consts }
func (c *builtCode) Names() []string              { return c.names }
func (c *builtCode) NLocals() int                 { return c.nlocals }
func (c *builtCode) NArgs() int                   { return c.nargs }
func (c *builtCode) NFreeVars() int               { return 0 }
func (c *builtCode) NCellVars() int               { return 0 }
func (c *builtCode) MaxStackDepth() int           { return 32 }
func (c *builtCode) Filename() string             { return "<bctest>" }
func (c *builtCode) Name() string                 { return c.name }
func (c *builtCode) FirstLine() int               { return 1 }
