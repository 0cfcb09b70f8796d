package layout

import "errors"

var (
	// ErrConstructionAfterSeal is returned by NewLayout once Seal has run.
	ErrConstructionAfterSeal = errors.New("layout: new layout after seal")

	// ErrOperationOnUnsealedNonTop is returned by Subtype/Join/Meet when the
	// lattice hasn't been sealed yet and either operand isn't Top — before
	// sealing, only Top-relative operations are defined.
	ErrOperationOnUnsealedNonTop = errors.New("layout: operation on non-top layout before seal")

	// ErrDuplicateIndex is returned when (family, ordinal) collides with an
	// already-created layout.
	ErrDuplicateIndex = errors.New("layout: duplicate (family, ordinal) index")

	// ErrMissingParent is returned when a parent passed to NewLayout wasn't
	// itself produced by this lattice.
	ErrMissingParent = errors.New("layout: parent does not exist in this lattice")

	// ErrAbstractLayout is returned by VTable on a layout with no concrete
	// implementation.
	ErrAbstractLayout = errors.New("layout: abstract layout has no vtable")
)
