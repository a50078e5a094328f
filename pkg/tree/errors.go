package tree

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/viewtree/pkg/identity"
	"github.com/vanderheijden86/viewtree/pkg/keyed"
)

var (
	// ErrDuplicateKey means two children of one node produced the same key.
	// The node keeps its previous children.
	ErrDuplicateKey = keyed.ErrDuplicateKey

	// ErrReentrantMutation means a child collection changed while it was
	// being read. The computation is discarded and rerun on the same flush.
	ErrReentrantMutation = errors.New("tree: child collection mutated during reconciliation")

	// ErrMissingParentIdentity means a node's identity was released while it
	// still had pending work. Its subtree is torn down.
	ErrMissingParentIdentity = errors.New("tree: parent identity missing")

	// ErrNestedPass is returned when Flush or Reconcile is called from
	// inside a running pass.
	ErrNestedPass = errors.New("tree: reconciliation pass already running")

	// ErrInvalidConfig is returned by New for incomplete configs.
	ErrInvalidConfig = errors.New("tree: invalid config")
)

// SubtreeError reports a failure contained to one node's subtree.
type SubtreeError struct {
	Node  identity.ID
	Path  string // ancestry, e.g. "#1/#3/#6"
	Cause error
}

func (e *SubtreeError) Error() string {
	return fmt.Sprintf("subtree %s: %v", e.Path, e.Cause)
}

func (e *SubtreeError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failed work is rerun automatically.
func (e *SubtreeError) Retryable() bool {
	return errors.Is(e.Cause, ErrReentrantMutation)
}
