// Package overlay implements nestable, process-local speculative change
// layers over a base store: push a frame, make changes, then either commit
// them one level down or revert them, generalizing a single
// Begin/Put/Delete/Commit/Rollback transaction to a stack of them. Each
// Stack registers its own telemetry.Sampler so push/pop/add/remove/commit
// activity is visible alongside the stores it sits on top of.
package overlay

import (
	"errors"
	"fmt"

	"github.com/heaplattice/heapstore/internal/telemetry"
	"github.com/heaplattice/heapstore/pkg/arena"
)

var (
	// ErrNoFrame is returned by a stack-relative op (Revert, Commit,
	// RevertAll, CommitAll) when no frame has been pushed.
	ErrNoFrame = errors.New("overlay: no frame pushed")

	// ErrEmptyStack is the panic value PopStack raises on an empty stack,
	// per the invariant that popping past the bottom is a programmer error.
	ErrEmptyStack = errors.New("overlay: pop_stack on an empty stack")

	// ErrNotPresent mirrors arena.ErrNotPresent for the overlay's own view.
	ErrNotPresent = errors.New("overlay: key not present")

	// ErrAlreadyPresent mirrors arena.ErrAlreadyPresent for Move's dst check.
	ErrAlreadyPresent = errors.New("overlay: destination already present")

	// ErrDoubleRemove is returned when Remove is called twice for the same
	// key within one frame without an intervening commit or revert.
	ErrDoubleRemove = errors.New("overlay: key already marked removed in this frame")
)

type action int

const (
	actionAdd action = iota
	actionReplace
	actionRemove
)

type frameEntry[V any] struct {
	action action
	value  V
}

// frame is one level of the stack. parentIdx mirrors the design note that
// frames reference their parent by index, not by pointer, so popping a
// frame can never leave a dangling reference into a frame it still needs.
type frame[V any] struct {
	parentIdx int
	entries   map[arena.Digest]frameEntry[V]
}

// Base is the store a Stack ultimately reaches when every frame is popped
// or a commit descends past the bottom frame — typically a
// *valuestore.Store, but defined narrowly here so overlay has no import
// dependency on it.
type Base[V any] interface {
	Mem(d arena.Digest) (bool, error)
	Get(d arena.Digest) (V, error)
	Add(d arena.Digest, v V) error
	Remove(d arena.Digest) error
}

// Stack is an arena (in the Go-slice sense) of frames, each holding at most
// one action per key. Stack itself is not safe for concurrent use; overlays
// are strictly thread-local to the process that owns them.
type Stack[V any] struct {
	base   Base[V]
	frames []frame[V]

	name    string
	sampler *telemetry.Sampler
}

// NewStack constructs an empty Stack over base and registers a
// telemetry.Sampler under name, the same self-registration pattern
// pkg/valuestore.Store uses. Close must be called to unregister it.
func NewStack[V any](base Base[V], name string) *Stack[V] {
	return &Stack[V]{base: base, name: name, sampler: telemetry.Register(name)}
}

// Close unregisters the stack's sampler. It does not close the underlying
// base store, which may be shared with other callers.
func (s *Stack[V]) Close() {
	telemetry.Unregister(s.name)
}

// describe reports the telemetry bucket an operation on v is recorded
// under: v's own Description() when V implements it (as every
// valuestore.Value does), otherwise a flat fallback bucket.
func describe[V any](v V) string {
	if d, ok := any(v).(interface{ Description() string }); ok {
		return d.Description()
	}
	return "overlay.value"
}

// Depth reports how many frames are currently pushed.
func (s *Stack[V]) Depth() int { return len(s.frames) }

func (s *Stack[V]) topIdx() int { return len(s.frames) - 1 }

// PushStack adds a new, empty frame on top of the stack.
func (s *Stack[V]) PushStack() {
	s.frames = append(s.frames, frame[V]{
		parentIdx: len(s.frames) - 1,
		entries:   make(map[arena.Digest]frameEntry[V]),
	})
	s.sampler.Record("overlay.push", int64(len(s.frames)))
}

// PopStack discards the top frame without committing it. Fatal on an empty
// stack, per the invariant that popping past the bottom is a programmer
// error, not a recoverable condition.
func (s *Stack[V]) PopStack() {
	if len(s.frames) == 0 {
		panic(ErrEmptyStack)
	}
	dropped := int64(len(s.frames[len(s.frames)-1].entries))
	s.frames = s.frames[:len(s.frames)-1]
	s.sampler.Record("overlay.pop", dropped)
}

// memBelow reports visibility of d looking from frameIdx downward
// (inclusive), falling through to base once every frame is exhausted.
func (s *Stack[V]) memBelow(frameIdx int, d arena.Digest) (bool, error) {
	for i := frameIdx; i >= 0; i-- {
		if e, ok := s.frames[i].entries[d]; ok {
			return e.action != actionRemove, nil
		}
	}
	return s.base.Mem(d)
}

func (s *Stack[V]) getBelow(frameIdx int, d arena.Digest) (V, bool, error) {
	for i := frameIdx; i >= 0; i-- {
		if e, ok := s.frames[i].entries[d]; ok {
			if e.action == actionRemove {
				var zero V
				return zero, false, nil
			}
			return e.value, true, nil
		}
	}

	present, err := s.base.Mem(d)
	if err != nil || !present {
		var zero V
		return zero, false, err
	}
	v, err := s.base.Get(d)
	return v, err == nil, err
}

// addAt applies "add v" to frameIdx (-1 means the base itself), following
// the per-key state machine: looking through to whatever is visible below
// frameIdx decides whether this becomes an Add or a Replace.
func (s *Stack[V]) addAt(frameIdx int, d arena.Digest, v V) error {
	if frameIdx < 0 {
		return s.base.Add(d, v)
	}

	cur, exists := s.frames[frameIdx].entries[d]
	var next action

	switch {
	case exists && cur.action == actionAdd:
		next = actionAdd
	case exists:
		next = actionReplace
	default:
		present, err := s.memBelow(frameIdx-1, d)
		if err != nil {
			return err
		}
		if present {
			next = actionReplace
		} else {
			next = actionAdd
		}
	}

	s.frames[frameIdx].entries[d] = frameEntry[V]{action: next, value: v}
	return nil
}

// removeAt applies "remove" to frameIdx (-1 means the base itself).
func (s *Stack[V]) removeAt(frameIdx int, d arena.Digest) error {
	if frameIdx < 0 {
		return s.base.Remove(d)
	}

	cur, exists := s.frames[frameIdx].entries[d]
	if exists {
		switch cur.action {
		case actionAdd:
			delete(s.frames[frameIdx].entries, d) // erase: never reaches what's below
		case actionReplace:
			s.frames[frameIdx].entries[d] = frameEntry[V]{action: actionRemove}
		case actionRemove:
			return ErrDoubleRemove
		}
		return nil
	}

	present, err := s.memBelow(frameIdx-1, d)
	if err != nil {
		return err
	}
	if !present {
		return ErrNotPresent
	}
	s.frames[frameIdx].entries[d] = frameEntry[V]{action: actionRemove}
	return nil
}

// Add applies "add v" at the current view (the top frame, or the base if
// no frame is pushed).
func (s *Stack[V]) Add(d arena.Digest, v V) error {
	if err := s.addAt(s.topIdx(), d, v); err != nil {
		return err
	}
	s.sampler.Record(describe(v), 1)
	return nil
}

// Remove applies "remove" at the current view.
func (s *Stack[V]) Remove(d arena.Digest) error {
	if err := s.removeAt(s.topIdx(), d); err != nil {
		return err
	}
	s.sampler.Record("overlay.remove", 1)
	return nil
}

// Get reads through the current view, from the top frame down to base.
func (s *Stack[V]) Get(d arena.Digest) (V, error) {
	v, ok, err := s.getBelow(s.topIdx(), d)
	if err != nil {
		var zero V
		return zero, err
	}
	if !ok {
		var zero V
		return zero, ErrNotPresent
	}
	return v, nil
}

// Mem reports presence at the current view.
func (s *Stack[V]) Mem(d arena.Digest) (bool, error) {
	return s.memBelow(s.topIdx(), d)
}

// Move relocates an entry within the current view: fetch, remove, re-add,
// same preconditions as the arena's own Move.
func (s *Stack[V]) Move(src, dst arena.Digest) error {
	present, err := s.Mem(src)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("move source: %w", ErrNotPresent)
	}
	dstPresent, err := s.Mem(dst)
	if err != nil {
		return err
	}
	if dstPresent {
		return fmt.Errorf("move destination: %w", ErrAlreadyPresent)
	}

	v, err := s.Get(src)
	if err != nil {
		return err
	}
	if err := s.Remove(src); err != nil {
		return err
	}
	return s.Add(dst, v)
}

// Revert drops the top frame's action for key, if any. No-op if key has no
// entry in the top frame.
func (s *Stack[V]) Revert(d arena.Digest) error {
	top := s.topIdx()
	if top < 0 {
		return ErrNoFrame
	}
	delete(s.frames[top].entries, d)
	s.sampler.Record("overlay.revert", 1)
	return nil
}

// Commit applies the top frame's action for key to the frame beneath (or
// the base, if the top frame is the bottom one), then clears it from the
// top frame. commit(Add v) is add(v) one level down; commit(Replace v) is
// remove then add(v); commit(Remove) is remove. A no-op if key has no entry
// in the top frame.
func (s *Stack[V]) Commit(d arena.Digest) error {
	top := s.topIdx()
	if top < 0 {
		return ErrNoFrame
	}

	entry, exists := s.frames[top].entries[d]
	if !exists {
		return nil
	}
	delete(s.frames[top].entries, d)
	below := top - 1

	var err error
	switch entry.action {
	case actionAdd:
		err = s.addAt(below, d, entry.value)
	case actionReplace:
		if rmErr := s.removeAt(below, d); rmErr != nil && !errors.Is(rmErr, ErrNotPresent) {
			return rmErr
		}
		err = s.addAt(below, d, entry.value)
	case actionRemove:
		err = s.removeAt(below, d)
	}
	if err == nil {
		s.sampler.Record("overlay.commit", 1)
	}
	return err
}

// RevertAll drops every action in the top frame.
func (s *Stack[V]) RevertAll() error {
	top := s.topIdx()
	if top < 0 {
		return ErrNoFrame
	}
	dropped := int64(len(s.frames[top].entries))
	s.frames[top].entries = make(map[arena.Digest]frameEntry[V])
	s.sampler.Record("overlay.revert_all", dropped)
	return nil
}

// CommitAll commits every key held in the top frame down one level, in no
// particular order — commits within one frame don't interact, since each
// targets a distinct key.
func (s *Stack[V]) CommitAll() error {
	top := s.topIdx()
	if top < 0 {
		return ErrNoFrame
	}

	keys := make([]arena.Digest, 0, len(s.frames[top].entries))
	for d := range s.frames[top].entries {
		keys = append(keys, d)
	}
	for _, d := range keys {
		if err := s.Commit(d); err != nil {
			return err
		}
	}
	return nil
}
