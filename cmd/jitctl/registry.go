package main

import "github.com/vmjit/tracejit/pkg/bytecode"

// demoCode is a standalone, hand-built bytecode.CodeObject used to give
// jitctl something to target without a real host VM attached (tracejit
// never decodes bytecode from disk itself, per spec.md Non-goals).
type demoCode struct {
	name    string
	code    []bytecode.Instruction
	consts  []bytecode.Const
	nargs   int
	nlocals int
}

func (d *demoCode) Code() []bytecode.Instruction { return d.code }
func (d *demoCode) Consts() []bytecode.Const     { return d.consts }
func (d *demoCode) Names() []string              { return nil }
func (d *demoCode) NLocals() int                 { return d.nlocals }
func (d *demoCode) NArgs() int                   { return d.nargs }
func (d *demoCode) NFreeVars() int               { return 0 }
func (d *demoCode) NCellVars() int               { return 0 }
func (d *demoCode) MaxStackDepth() int           { return 8 }
func (d *demoCode) Filename() string             { return "<jitctl demo>" }
func (d *demoCode) Name() string                 { return d.name }
func (d *demoCode) FirstLine() int               { return 1 }

// registry is an in-memory Registry implementation (replcmd.Registry)
// seeded with a handful of demo code objects so jitctl is runnable without
// an embedding host.
type registry struct {
	byName map[string]bytecode.CodeObject
	names  []string
}

func newDemoRegistry() *registry {
	r := &registry{byName: make(map[string]bytecode.CodeObject)}
	r.add(&demoCode{
		name: "return_one",
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.LOAD_CONST, Arg: 0},
			{Offset: 1, Op: bytecode.RETURN_VALUE},
		},
		consts: []bytecode.Const{{Kind: bytecode.ConstInt, Int: 1}},
	})
	r.add(&demoCode{
		name: "add_locals",
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.LOAD_FAST, Arg: 0},
			{Offset: 1, Op: bytecode.LOAD_FAST, Arg: 1},
			{Offset: 2, Op: bytecode.BINARY_ADD},
			{Offset: 3, Op: bytecode.RETURN_VALUE},
		},
		nargs:   2,
		nlocals: 2,
	})
	return r
}

func (r *registry) add(c *demoCode) {
	r.byName[c.name] = c
	r.names = append(r.names, c.name)
}

func (r *registry) Lookup(name string) (bytecode.CodeObject, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *registry) Names() []string { return r.names }
