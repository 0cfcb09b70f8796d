package layout

// ElemKind stands in for the richer value-type descriptor the JIT helpers
// (AppendType, ElemType, ...) reason about — just enough structure (known
// kind vs. unknown/widest) for the default-implementation contract in
// NewLayout's JITHooks to be meaningful without inventing a full type
// system this package has no use for.
type ElemKind int

const (
	KindUnknown ElemKind = iota
	KindInt
	KindStr
	KindBool
)

func (k ElemKind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindStr:
		return "Str"
	case KindBool:
		return "Bool"
	default:
		return "Unknown"
	}
}
