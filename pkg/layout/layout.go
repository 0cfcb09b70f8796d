package layout

// Layout is an immutable lattice node. Only this package can produce one —
// the unexported sealedLayout marker method means no external type can
// satisfy the interface, the same private-marker technique
// other_examples/map-protocol-map1__value.go uses to seal its Value union,
// adapted here from a closed value-kind sum type to a lattice-node
// identity guard.
type Layout interface {
	Index() LayoutIndex
	Family() FamilyTag
	Description() string
	IsConcrete() bool

	// AppendType/RemoveType/SetType return the most specific layout known
	// for the array that results from the named mutation; default
	// implementations return the lattice's Top.
	AppendType(val ElemKind) Layout
	RemoveType(key ElemKind) Layout
	SetType(key, val ElemKind) Layout

	// ElemType/FirstLastType/IterPosType return the most specific value
	// type known, plus whether its presence is statically guaranteed;
	// default implementations return (KindUnknown, false).
	ElemType(key ElemKind) (ElemKind, bool)
	FirstLastType(isFirst, isKey bool) (ElemKind, bool)
	IterPosType(pos ElemKind, isKey bool) ElemKind

	sealedLayout()
}

// JITHooks lets NewLayout supply per-layout refinements of the default JIT
// helpers. Any nil field keeps the widest-possible-layout / unknown-present
// default.
type JITHooks struct {
	AppendType    func(val ElemKind) Layout
	RemoveType    func(key ElemKind) Layout
	SetType       func(key, val ElemKind) Layout
	ElemType      func(key ElemKind) (ElemKind, bool)
	FirstLastType func(isFirst, isKey bool) (ElemKind, bool)
	IterPosType   func(pos ElemKind, isKey bool) ElemKind
}

type node struct {
	lattice     *Lattice
	index       LayoutIndex
	description string
	parents     []LayoutIndex
	children    []LayoutIndex
	vtable      *OpTable
	hooks       JITHooks

	// populated by Seal
	ancestors   map[LayoutIndex]bool
	descendants map[LayoutIndex]bool
	test        LayoutTest
}

func (n *node) sealedLayout() {}

func (n *node) Index() LayoutIndex    { return n.index }
func (n *node) Family() FamilyTag     { return n.index.family() }
func (n *node) Description() string   { return n.description }
func (n *node) IsConcrete() bool      { return n.vtable != nil }

func (n *node) AppendType(val ElemKind) Layout {
	if n.hooks.AppendType != nil {
		return n.hooks.AppendType(val)
	}
	return n.lattice.top
}

func (n *node) RemoveType(key ElemKind) Layout {
	if n.hooks.RemoveType != nil {
		return n.hooks.RemoveType(key)
	}
	return n.lattice.top
}

func (n *node) SetType(key, val ElemKind) Layout {
	if n.hooks.SetType != nil {
		return n.hooks.SetType(key, val)
	}
	return n.lattice.top
}

func (n *node) ElemType(key ElemKind) (ElemKind, bool) {
	if n.hooks.ElemType != nil {
		return n.hooks.ElemType(key)
	}
	return KindUnknown, false
}

func (n *node) FirstLastType(isFirst, isKey bool) (ElemKind, bool) {
	if n.hooks.FirstLastType != nil {
		return n.hooks.FirstLastType(isFirst, isKey)
	}
	return KindUnknown, false
}

func (n *node) IterPosType(pos ElemKind, isKey bool) ElemKind {
	if n.hooks.IterPosType != nil {
		return n.hooks.IterPosType(pos, isKey)
	}
	return KindUnknown
}
