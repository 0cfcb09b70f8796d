// Package layout implements a sealed type lattice of array layouts: 15-bit
// indices whose upper byte is a family tag chosen so that subtyping along
// a handful of axes collapses to single masked compares, plus a per-family
// vtable for the operations concrete layouts implement. Grounded on HHVM's
// bespoke array layout lattice (bespoke/layout.h), generalized from one
// hardcoded C++ class hierarchy per family to data-driven construction.
package layout

import "fmt"

// LayoutIndex is the 15-bit identity of a layout: upper byte is the family
// tag, lower byte is an ordinal unique within that family.
type LayoutIndex uint16

// maxIndex is the largest value a 15-bit index can hold.
const maxIndex = LayoutIndex(1<<15 - 1)

// FamilyTag is the upper byte of a LayoutIndex. Bit assignments are
// bit-exact and load-bearing: JIT-generated code tests them directly.
//
//	bit 1 unset => subtype of MonotypeVec<Top>
//	bit 2 unset => subtype of MonotypeDict<Empty|Int,Top>
//	bit 3 unset => subtype of MonotypeDict<Empty|Str,Top>
type FamilyTag uint8

const (
	// FamilyTop is reserved for the lattice's own root layout, which sits
	// above every family and therefore carries none of their bits.
	FamilyTop               FamilyTag = 0b0000
	FamilyEmptyMonotypeDict FamilyTag = 0b0010
	FamilyStaticStrMonotypeDict FamilyTag = 0b0110
	FamilyStrMonotypeDict   FamilyTag = 0b0111
	FamilyEmptyMonotypeVec  FamilyTag = 0b1100
	FamilyIntMonotypeDict   FamilyTag = 0b1011
	FamilyMonotypeVec       FamilyTag = 0b1101
	FamilyLogging           FamilyTag = 0b1110
	FamilyStruct            FamilyTag = 0b1111
)

func (f FamilyTag) String() string {
	switch f {
	case FamilyTop:
		return "Top"
	case FamilyLogging:
		return "Logging"
	case FamilyMonotypeVec:
		return "MonotypeVec"
	case FamilyEmptyMonotypeVec:
		return "EmptyMonotypeVec"
	case FamilyIntMonotypeDict:
		return "IntMonotypeDict"
	case FamilyStrMonotypeDict:
		return "StrMonotypeDict"
	case FamilyStaticStrMonotypeDict:
		return "StaticStrMonotypeDict"
	case FamilyEmptyMonotypeDict:
		return "EmptyMonotypeDict"
	case FamilyStruct:
		return "Struct"
	default:
		return fmt.Sprintf("FamilyTag(%#04b)", uint8(f))
	}
}

// makeIndex combines a family tag and an ordinal (unique within that
// family) into a LayoutIndex, with the family occupying the upper byte.
func makeIndex(family FamilyTag, ordinal uint8) LayoutIndex {
	return LayoutIndex(family)<<8 | LayoutIndex(ordinal)
}

func (i LayoutIndex) family() FamilyTag { return FamilyTag(i >> 8) }

// LayoutTest is a (mask, equal) pair such that, for any index in the
// lattice it was computed over, index&Mask == Equal iff that index names a
// descendant of the layout the test was computed for.
type LayoutTest struct {
	Mask  uint16
	Equal uint16
}

// Matches reports whether idx satisfies the test.
func (t LayoutTest) Matches(idx LayoutIndex) bool {
	return uint16(idx)&t.Mask == t.Equal
}

// ExtraHi16 and ExtraLo16 split a 32-bit array-header "extra" field the way
// a bespoke array embeds its layout: the low 16 bits are private to the
// concrete layout implementation, the high 16 bits carry the LayoutIndex
// plus, in bit 31 of the full word (bit 15 of the high half), the
// bespoke/vanilla sign bit.
type Extra uint32

const bespokeSignBit = uint32(1) << 31

// NewExtra packs idx and a layout-private lo16 into an Extra, marking it
// bespoke.
func NewExtra(idx LayoutIndex, lo16 uint16) Extra {
	return Extra(bespokeSignBit | uint32(idx)<<16 | uint32(lo16))
}

// IsBespoke reports whether the sign bit marking a non-vanilla array is set.
func (e Extra) IsBespoke() bool { return uint32(e)&bespokeSignBit != 0 }

// Index extracts the LayoutIndex. Meaningless if !IsBespoke().
func (e Extra) Index() LayoutIndex { return LayoutIndex(uint32(e) >> 16 &^ uint32(1<<15)) }

// ExtraLo16 extracts the low, layout-private half.
func (e Extra) ExtraLo16() uint16 { return uint16(e) }

// ExtraHi16 extracts the high half verbatim, sign bit included.
func (e Extra) ExtraHi16() uint16 { return uint16(uint32(e) >> 16) }
