package layout

// OpTable holds the per-family operation pointers a concrete layout's
// backing array implementation supplies, mirroring HHVM's
// LayoutFunctions: heap accounting, GC scanning, escalation back to a
// vanilla representation, release, element lookup/mutation, iteration,
// sort pre/post hooks and the legacy-array-flag toggle. Layout kinds that
// share a family tag share one OpTable slot.
type OpTable struct {
	HeapSize func(handle ArrayHandle) int
	Scan     func(handle ArrayHandle, visit func(ArrayHandle))
	Escalate func(handle ArrayHandle, reason string) ArrayHandle
	Release  func(handle ArrayHandle)

	ElemInt func(handle ArrayHandle, key int64) (ArrayHandle, bool)
	ElemStr func(handle ArrayHandle, key string) (ArrayHandle, bool)
	SetInt  func(handle ArrayHandle, key int64, val ArrayHandle) ArrayHandle
	SetStr  func(handle ArrayHandle, key string, val ArrayHandle) ArrayHandle
	RemoveInt func(handle ArrayHandle, key int64) ArrayHandle
	RemoveStr func(handle ArrayHandle, key string) ArrayHandle

	IterBegin   func(handle ArrayHandle) int
	IterEnd     func(handle ArrayHandle) int
	IterAdvance func(handle ArrayHandle, pos int) int

	PreSort          func(handle ArrayHandle) ArrayHandle
	PostSort         func(handle, sorted ArrayHandle) ArrayHandle
	SetLegacyArray   func(handle ArrayHandle, legacy bool) ArrayHandle
}

// ArrayHandle is an opaque reference to a concrete bespoke array instance
// that an OpTable's functions operate on — this package only routes calls
// to it, never interprets its contents.
type ArrayHandle struct {
	Index LayoutIndex
	Data  any
}

// debugCheck, when non-nil on a Lattice, is consulted by Dispatch before
// forwarding to the family's OpTable entry — the Go analogue of
// LayoutFunctionDispatcher's debug-build invariant check that stands in
// for a release build's bare reinterpret_cast.
type debugCheck func(handle ArrayHandle, family FamilyTag) error

// Dispatch looks up the OpTable registered for handle's family and, if a
// debug checker is installed, runs it first. Returns ErrAbstractLayout if
// the family has no concrete implementation registered.
func (t *Lattice) Dispatch(handle ArrayHandle) (*OpTable, error) {
	family := handle.Index.family()
	if t.debug != nil {
		if err := t.debug(handle, family); err != nil {
			return nil, err
		}
	}
	ops := t.vtable[family]
	if ops == nil {
		return nil, ErrAbstractLayout
	}
	return ops, nil
}

// SetDebugCheck installs or clears the per-dispatch invariant checker.
func (t *Lattice) SetDebugCheck(check func(handle ArrayHandle, family FamilyTag) error) {
	t.debug = check
}
