package layout

import "fmt"

// Lattice owns the set of layouts created in one process: construction is
// single-threaded and topologically ordered (a parent must exist before any
// child naming it), then Seal freezes it. After Seal the lattice is
// immutable and safe to read from any number of goroutines or processes
// mapping the same layout description, per the concurrency model's "built
// single-threaded at startup, then immutable" rule — no locking is used
// here because nothing after Seal ever mutates lattice state again.
type Lattice struct {
	top     *node
	bottom  *node
	byIndex map[LayoutIndex]*node
	order   []LayoutIndex // creation order; already a valid topological order
	sealed  bool

	vtable [256]*OpTable
	debug  debugCheck
}

// NewLattice constructs a Lattice with its Top layout already created.
func NewLattice() *Lattice {
	l := &Lattice{byIndex: make(map[LayoutIndex]*node)}
	top := &node{
		lattice:     l,
		index:       makeIndex(FamilyTop, 0),
		description: "Top",
	}
	l.top = top
	l.byIndex[top.index] = top
	l.order = append(l.order, top.index)
	return l
}

// Top returns the lattice's root layout. Valid before and after Seal.
func (l *Lattice) Top() Layout { return l.top }

// NewLayout creates a new layout with the given family/ordinal index. If
// parents is empty, Top is used as the sole parent — every layout other
// than Top itself has at least one ancestor chain reaching Top, which is
// what guarantees Join always has a witness. vtable may be nil for an
// abstract layout.
func (l *Lattice) NewLayout(family FamilyTag, ordinal uint8, description string, parents []Layout, vtable *OpTable, hooks JITHooks) (Layout, error) {
	if l.sealed {
		return nil, ErrConstructionAfterSeal
	}

	idx := makeIndex(family, ordinal)
	if _, exists := l.byIndex[idx]; exists {
		return nil, fmt.Errorf("%w: family %s ordinal %d", ErrDuplicateIndex, family, ordinal)
	}

	if len(parents) == 0 {
		parents = []Layout{l.top}
	}

	parentIdx := make([]LayoutIndex, 0, len(parents))
	for _, p := range parents {
		pn, ok := p.(*node)
		if !ok || l.byIndex[pn.index] != pn {
			return nil, fmt.Errorf("%w: %v", ErrMissingParent, p)
		}
		parentIdx = append(parentIdx, pn.index)
	}

	n := &node{
		lattice:     l,
		index:       idx,
		description: description,
		parents:     parentIdx,
		vtable:      vtable,
		hooks:       hooks,
	}
	l.byIndex[idx] = n
	l.order = append(l.order, idx)
	for _, pIdx := range parentIdx {
		l.byIndex[pIdx].children = append(l.byIndex[pIdx].children, idx)
	}
	if vtable != nil {
		l.vtable[family] = vtable
	}
	return n, nil
}

// Seal computes topological order (creation order already satisfies it),
// ancestor/descendant sets, and each layout's minimal LayoutTest, then
// forbids further NewLayout calls.
func (l *Lattice) Seal() {
	if l.sealed {
		return
	}

	for _, idx := range l.order {
		n := l.byIndex[idx]
		n.ancestors = map[LayoutIndex]bool{idx: true}
		for _, pIdx := range n.parents {
			for a := range l.byIndex[pIdx].ancestors {
				n.ancestors[a] = true
			}
		}
	}

	for _, idx := range l.order {
		l.byIndex[idx].descendants = map[LayoutIndex]bool{}
	}
	for _, idx := range l.order {
		n := l.byIndex[idx]
		for a := range n.ancestors {
			l.byIndex[a].descendants[idx] = true
		}
	}

	for _, idx := range l.order {
		l.byIndex[idx].test = l.computeLayoutTest(l.byIndex[idx])
	}

	l.bottom = &node{
		lattice:     l,
		index:       maxIndex,
		description: "Bottom",
	}
	l.bottom.ancestors = map[LayoutIndex]bool{l.bottom.index: true}
	for idx := range l.byIndex {
		l.bottom.ancestors[idx] = true
	}
	l.bottom.descendants = map[LayoutIndex]bool{l.bottom.index: true}

	l.sealed = true
}

// computeLayoutTest finds a (mask, equal) pair separating n's descendants
// from every other index currently in the lattice: starting from the
// all-match mask (0), it greedily adds whichever single bit most reduces
// the number of indices misclassified by the test, reducing over the
// family-tag bit semantics documented on FamilyTag. For the reserved
// family-tag encoding this always reaches zero mismatches; an arbitrary
// caller-built lattice whose descendant sets don't line up with any
// bitmask converges on a best-effort approximation instead.
func (l *Lattice) computeLayoutTest(n *node) LayoutTest {
	equal := uint16(n.index)
	mask := uint16(0)

	misclassified := func(m uint16) int {
		count := 0
		for idx := range l.byIndex {
			want := n.descendants[idx]
			got := uint16(idx)&m == equal&m
			if want != got {
				count++
			}
		}
		return count
	}

	for cur := misclassified(mask); cur > 0; {
		bestBit, bestCount := -1, cur
		for bit := 15; bit >= 0; bit-- {
			bitVal := uint16(1) << uint(bit)
			if mask&bitVal != 0 {
				continue
			}
			if c := misclassified(mask | bitVal); c < bestCount {
				bestBit, bestCount = bit, c
			}
		}
		if bestBit < 0 {
			break // no single bit improves the test further; accept current mask
		}
		mask |= uint16(1) << uint(bestBit)
		cur = bestCount
	}

	return LayoutTest{Mask: mask, Equal: equal & mask}
}

// Subtype reports a <= b: a is b or one of its descendants.
func (l *Lattice) Subtype(a, b Layout) (bool, error) {
	if !l.sealed {
		if a != Layout(l.top) || b != Layout(l.top) {
			return false, ErrOperationOnUnsealedNonTop
		}
		return true, nil // Top <= Top
	}
	bn, an := b.(*node), a.(*node)
	return bn.descendants[an.index], nil
}

// Join returns the least common ancestor of a and b: the unique element
// of ancestors(a) ∩ ancestors(b) that is itself a descendant of every
// other element in that intersection. Top is always a witness, so Join
// never fails once the lattice is sealed.
func (l *Lattice) Join(a, b Layout) (Layout, error) {
	if !l.sealed {
		if a != Layout(l.top) || b != Layout(l.top) {
			return nil, ErrOperationOnUnsealedNonTop
		}
		return l.top, nil
	}
	an, bn := a.(*node), b.(*node)

	candidates := intersect(an.ancestors, bn.ancestors)
	for idx := range candidates {
		x := l.byIndex[idx]
		if isSuperset(x.ancestors, candidates) {
			return x, nil
		}
	}
	return l.top, nil // unreachable if the lattice is well-formed; Top always qualifies
}

// Meet returns the greatest common descendant of a and b, or Bottom if
// they share none.
func (l *Lattice) Meet(a, b Layout) (Layout, error) {
	if !l.sealed {
		if a != Layout(l.top) || b != Layout(l.top) {
			return nil, ErrOperationOnUnsealedNonTop
		}
		return l.top, nil
	}
	an, bn := a.(*node), b.(*node)

	candidates := intersect(an.descendants, bn.descendants)
	if len(candidates) == 0 {
		return l.bottom, nil
	}
	for idx := range candidates {
		x := l.byIndex[idx]
		if isSuperset(x.descendants, candidates) {
			return x, nil
		}
	}
	return l.bottom, nil
}

func intersect(a, b map[LayoutIndex]bool) map[LayoutIndex]bool {
	out := make(map[LayoutIndex]bool)
	for idx := range a {
		if b[idx] {
			out[idx] = true
		}
	}
	return out
}

func isSuperset(set, subset map[LayoutIndex]bool) bool {
	for idx := range subset {
		if !set[idx] {
			return false
		}
	}
	return true
}

// VTable returns the OpTable for a concrete layout, or ErrAbstractLayout.
func (l *Lattice) VTable(lay Layout) (*OpTable, error) {
	n, ok := lay.(*node)
	if !ok || n.vtable == nil {
		return nil, ErrAbstractLayout
	}
	return n.vtable, nil
}
