package helper

import "github.com/vmjit/tracejit/pkg/backend"

// descriptor is the static-table row shape, kept separate from Entry
// because the static table never carries a bound Fn — that is supplied at
// catalog-build time by the embedding host (see NewDefaultCatalog).
type descriptor struct {
	name   string
	params []Ownership
	ret    bool
	typ    backend.ValueType
	cost   Cost
}

// owned/borrowed are small readability helpers for building the table
// below; each element is one parameter's ownership.
func owned(n int) []Ownership {
	p := make([]Ownership, n)
	for i := range p {
		p[i] = Owned
	}
	return p
}

// staticTable is the closed static table, keyed by ID, populated once at
// process startup (spec §4.2), generalized from the teacher's per-category
// sorted maps (neo-go pkg/compiler/syscall.go's "binary"/"blockchain"/...
// groups) into one table grouped by the same categories the spec lists.
var staticTable = map[ID]descriptor{
	// Object model.
	BinaryOp:     {"binary_op", owned(2), true, backend.TypeObjectRef, CostCheap},
	UnaryOp:      {"unary_op", owned(1), true, backend.TypeObjectRef, CostCheap},
	RichCompare:  {"rich_compare", owned(2), true, backend.TypeObjectRef, CostCheap},
	Is:           {"is", owned(2), true, backend.TypeObjectRef, CostCheap},
	IsNot:        {"is_not", owned(2), true, backend.TypeObjectRef, CostCheap},
	Contains:     {"contains", owned(2), true, backend.TypeObjectRef, CostModerate},
	NotContains:  {"not_contains", owned(2), true, backend.TypeObjectRef, CostModerate},
	SubscrLoad:   {"subscr_load", owned(2), true, backend.TypeObjectRef, CostModerate},
	SubscrStore:  {"subscr_store", owned(3), false, backend.TypeVoid, CostModerate},
	SubscrDelete: {"subscr_delete", owned(2), false, backend.TypeVoid, CostModerate},
	AttrLoad:     {"attr_load", owned(2), true, backend.TypeObjectRef, CostModerate},
	AttrStore:    {"attr_store", owned(3), false, backend.TypeVoid, CostModerate},
	AttrDelete:   {"attr_delete", owned(2), false, backend.TypeVoid, CostModerate},
	BuildSlice:   {"build_slice", owned(3), true, backend.TypeObjectRef, CostCheap},

	// Containers.
	NewList:             {"new_list", nil, true, backend.TypeObjectRef, CostModerate},
	NewTuple:            {"new_tuple", nil, true, backend.TypeObjectRef, CostModerate},
	NewDict:             {"new_dict", nil, true, backend.TypeObjectRef, CostModerate},
	NewSet:              {"new_set", nil, true, backend.TypeObjectRef, CostModerate},
	ListAppend:          {"list_append", owned(2), false, backend.TypeVoid, CostCheap},
	SetAdd:              {"set_add", owned(2), false, backend.TypeVoid, CostCheap},
	SetUpdate:           {"set_update", owned(2), false, backend.TypeVoid, CostModerate},
	MapAdd:              {"map_add", owned(3), false, backend.TypeVoid, CostCheap},
	DictUpdate:          {"dict_update", owned(2), false, backend.TypeVoid, CostModerate},
	DictMerge:           {"dict_merge", owned(2), false, backend.TypeVoid, CostModerate},
	DictBuildFromTuples: {"dict_build_from_tuples", owned(1), true, backend.TypeObjectRef, CostModerate},
	ListExtend:          {"list_extend", owned(2), false, backend.TypeVoid, CostModerate},
	ListToTuple:         {"list_to_tuple", owned(1), true, backend.TypeObjectRef, CostModerate},

	// Name resolution.
	LoadName:       {"load_name", owned(1), true, backend.TypeObjectRef, CostModerate},
	StoreName:      {"store_name", owned(2), false, backend.TypeVoid, CostModerate},
	DeleteName:     {"delete_name", owned(1), false, backend.TypeVoid, CostModerate},
	LoadGlobal:     {"load_global", owned(1), true, backend.TypeObjectRef, CostModerate},
	StoreGlobal:    {"store_global", owned(2), false, backend.TypeVoid, CostModerate},
	DeleteGlobal:   {"delete_global", owned(1), false, backend.TypeVoid, CostModerate},
	LoadFast:       {"load_fast", owned(1), true, backend.TypeObjectRef, CostCheap},
	StoreFast:      {"store_fast", owned(2), false, backend.TypeVoid, CostCheap},
	DeleteFast:     {"delete_fast", owned(1), false, backend.TypeVoid, CostCheap},
	LoadDeref:      {"load_deref", owned(1), true, backend.TypeObjectRef, CostCheap},
	StoreDeref:     {"store_deref", owned(2), false, backend.TypeVoid, CostCheap},
	DeleteDeref:    {"delete_deref", owned(1), false, backend.TypeVoid, CostCheap},
	LoadClassDeref: {"load_classderef", owned(1), true, backend.TypeObjectRef, CostModerate},
	CellGet:        {"cell_get", owned(1), true, backend.TypeObjectRef, CostCheap},
	CellSet:        {"cell_set", owned(2), false, backend.TypeVoid, CostCheap},
	BuildClass:     {"build_class", owned(3), true, backend.TypeObjectRef, CostExpensive},

	// Control.
	IterGet:            {"iter_get", owned(1), true, backend.TypeObjectRef, CostModerate},
	IterNext:           {"iter_next", owned(1), true, backend.TypeObjectRef, CostCheap},
	Raise:              {"raise", owned(3), false, backend.TypeVoid, CostExpensive},
	Reraise:            {"reraise", nil, false, backend.TypeVoid, CostExpensive},
	PrepareException:   {"prepare_exception", nil, true, backend.TypeObjectRef, CostExpensive},
	UnwindException:    {"unwind_exception", owned(3), false, backend.TypeVoid, CostModerate},
	CompareExceptions:  {"compare_exceptions", owned(2), true, backend.TypeObjectRef, CostCheap},

	// Function construction.
	NewFunction:    {"new_function", owned(2), true, backend.TypeObjectRef, CostModerate},
	SetClosure:     {"set_closure", owned(2), false, backend.TypeVoid, CostCheap},
	SetAnnotations: {"set_annotations", owned(2), false, backend.TypeVoid, CostCheap},
	SetDefaults:    {"set_defaults", owned(2), false, backend.TypeVoid, CostCheap},
	SetKwDefaults:  {"set_kwdefaults", owned(2), false, backend.TypeVoid, CostCheap},

	// Sequence unpacking.
	UnpackSequence: {"unpack_sequence", owned(2), false, backend.TypeVoid, CostModerate},
	UnpackEx:       {"unpack_ex", owned(3), false, backend.TypeVoid, CostModerate},

	// Formatting.
	FormatValue:  {"format_value", owned(2), true, backend.TypeObjectRef, CostModerate},
	UnicodeJoin:  {"unicode_join", owned(1), true, backend.TypeObjectRef, CostModerate},
	ObjectStr:    {"object_str", owned(1), true, backend.TypeObjectRef, CostModerate},
	ObjectRepr:   {"object_repr", owned(1), true, backend.TypeObjectRef, CostModerate},
	ObjectAscii:  {"object_ascii", owned(1), true, backend.TypeObjectRef, CostModerate},
	ObjectFormat: {"object_format", owned(2), true, backend.TypeObjectRef, CostModerate},

	// Imports.
	ImportName: {"import_name", owned(3), true, backend.TypeObjectRef, CostExpensive},
	ImportFrom: {"import_from", owned(2), true, backend.TypeObjectRef, CostExpensive},
	ImportStar: {"import_star", owned(1), false, backend.TypeVoid, CostExpensive},

	// Call shapes.
	CallPositional0:   {"call0", owned(1), true, backend.TypeObjectRef, CostExpensive},
	CallPositional1:   {"call1", owned(2), true, backend.TypeObjectRef, CostExpensive},
	CallPositional2:   {"call2", owned(3), true, backend.TypeObjectRef, CostExpensive},
	CallPositional3:   {"call3", owned(4), true, backend.TypeObjectRef, CostExpensive},
	CallPositional4:   {"call4", owned(5), true, backend.TypeObjectRef, CostExpensive},
	CallPositionalN:   {"callN", owned(2), true, backend.TypeObjectRef, CostExpensive},
	CallKwN:           {"call_kwN", owned(3), true, backend.TypeObjectRef, CostExpensive},
	CallArgsOnly:      {"call_args_only", owned(2), true, backend.TypeObjectRef, CostExpensive},
	CallArgsAndKwargs: {"call_args_and_kwargs", owned(3), true, backend.TypeObjectRef, CostExpensive},
	MethodLoad:        {"method_load", owned(2), true, backend.TypeObjectRef, CostModerate},
	MethodCall0:       {"meth_call0", owned(2), true, backend.TypeObjectRef, CostExpensive},
	MethodCall1:       {"meth_call1", owned(3), true, backend.TypeObjectRef, CostExpensive},
	MethodCall2:       {"meth_call2", owned(4), true, backend.TypeObjectRef, CostExpensive},
	MethodCall3:       {"meth_call3", owned(5), true, backend.TypeObjectRef, CostExpensive},
	MethodCall4:       {"meth_call4", owned(6), true, backend.TypeObjectRef, CostExpensive},
	MethodCallN:       {"meth_callN", owned(3), true, backend.TypeObjectRef, CostExpensive},

	// Housekeeping.
	Decref:       {"decref", owned(1), false, backend.TypeVoid, CostCheap},
	PushFrame:    {"push_frame", owned(1), false, backend.TypeVoid, CostCheap},
	PopFrame:     {"pop_frame", owned(1), false, backend.TypeVoid, CostCheap},
	PeriodicWork: {"periodic_work", nil, true, backend.TypeInt64, CostModerate},
	UnboundLocal: {"unbound_local", owned(1), false, backend.TypeVoid, CostExpensive},
}

// NewDefaultCatalog builds the process-wide catalog, binding every static
// descriptor to fn (the single host dispatch function every helper call
// routes through — name-keyed, since tracejit does not know the host's
// real function-pointer ABI, only how to invoke it uniformly). Embedders
// with richer per-helper host bindings can instead build their own Catalog
// with Register.
func NewDefaultCatalog(fn func(name string, args []interface{}) (interface{}, error)) *Catalog {
	c := NewCatalog()
	for id, d := range staticTable {
		d := d
		c.Register(Entry{
			ID:   id,
			Name: d.name,
			Signature: Signature{
				Params:       d.params,
				ReturnsValue: d.ret,
				ReturnType:   d.typ,
			},
			Cost: d.cost,
			Fn: func(args []interface{}) (interface{}, error) {
				return fn(d.name, args)
			},
		})
	}
	return c
}
