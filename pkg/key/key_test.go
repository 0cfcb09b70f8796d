package key

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testKey string

func (k testKey) String() string { return string(k) }

func TestMakeAndMakeOldProduceDisjointDigests(t *testing.T) {
	d := NewDomain[testKey]()

	newKey := d.Make(1, testKey("ticket-42"))
	oldKey := d.MakeOld(1, testKey("ticket-42"))

	require.NotEqual(t, MD5(newKey), MD5(oldKey))
}

func TestToOldAndNewFromOldRoundTrip(t *testing.T) {
	d := NewDomain[testKey]()

	orig := d.Make(7, testKey("abc"))
	old := ToOld(orig)
	back := NewFromOld(old)

	require.Equal(t, orig, back)
}

func TestToOldMatchesMakeOld(t *testing.T) {
	d := NewDomain[testKey]()

	fromMake := ToOld(d.Make(3, testKey("x")))
	fromMakeOld := d.MakeOld(3, testKey("x"))

	require.Equal(t, fromMakeOld, fromMake)
}

func TestMakePanicsOnReservedToken(t *testing.T) {
	d := NewDomain[testKey]()

	require.Panics(t, func() {
		d.Make(1, testKey("old_something"))
	})
}

func TestMakeOldPanicsOnReservedToken(t *testing.T) {
	d := NewDomain[testKey]()

	require.Panics(t, func() {
		d.MakeOld(1, testKey("old_something"))
	})
}

func TestNewFromOldPanicsOnNonOldKey(t *testing.T) {
	d := NewDomain[testKey]()

	require.Panics(t, func() {
		NewFromOld(d.Make(1, testKey("plain")))
	})
}

func TestDifferentPrefixesProduceDifferentDigests(t *testing.T) {
	d := NewDomain[testKey]()

	a := MD5(d.Make(1, testKey("same")))
	b := MD5(d.Make(2, testKey("same")))

	require.NotEqual(t, a, b)
}
