// Package identity issues process-unique node identifiers.
//
// Identifiers are allocated from a single monotonic counter, so they are
// totally ordered and never reused within the lifetime of an Allocator.
// Every identifier is allocated inside a parent scope; the allocator keeps
// the parent link of each live identifier so the tree position of a node can
// be reported for debugging (Path). Reconciliation never relies on the
// ordering of identifiers for correctness.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ID is an opaque node identifier. The zero value is Root, the implicit
// parent of every top-level allocation; it is never handed out.
type ID uint64

// Root is the scope of top-level allocations.
const Root ID = 0

// ErrUnknownScope is returned when allocating under a parent that has
// already been released.
var ErrUnknownScope = errors.New("identity: unknown parent scope")

// String formats the identifier as "#n".
func (id ID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

// IsRoot reports whether id is the root scope.
func (id ID) IsRoot() bool { return id == Root }

// Allocator hands out identifiers. It is safe for concurrent use: sibling
// reconciliation passes may interleave and still observe monotonic,
// scope-stable allocation.
type Allocator struct {
	next    atomic.Uint64
	parents *xsync.MapOf[ID, ID]
}

// NewAllocator creates an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{parents: xsync.NewMapOf[ID, ID]()}
}

// New allocates a top-level identifier.
func (a *Allocator) New() ID {
	id := ID(a.next.Add(1))
	a.parents.Store(id, Root)
	return id
}

// NewChild allocates an identifier scoped under parent. The parent must be
// Root or a live identifier.
func (a *Allocator) NewChild(parent ID) (ID, error) {
	if parent != Root {
		if _, ok := a.parents.Load(parent); !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownScope, parent)
		}
	}
	id := ID(a.next.Add(1))
	a.parents.Store(id, parent)
	return id, nil
}

// Release forgets id. Releasing an unknown identifier is a no-op. Children of
// a released identifier keep their own entries until they are released.
func (a *Allocator) Release(id ID) {
	a.parents.Delete(id)
}

// Live reports whether id has been allocated and not yet released.
func (a *Allocator) Live(id ID) bool {
	_, ok := a.parents.Load(id)
	return ok
}

// Parent returns the scope id was allocated in.
func (a *Allocator) Parent(id ID) (ID, bool) {
	return a.parents.Load(id)
}

// Path returns the chain of scopes from the top level down to id. The
// chain stops early at the first released ancestor.
func (a *Allocator) Path(id ID) []ID {
	var path []ID
	for cur := id; cur != Root; {
		path = append(path, cur)
		parent, ok := a.parents.Load(cur)
		if !ok {
			break
		}
		cur = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Describe renders Path as "#1/#4/#9".
func (a *Allocator) Describe(id ID) string {
	path := a.Path(id)
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.String()
	}
	return strings.Join(parts, "/")
}

// Len returns the number of live identifiers.
func (a *Allocator) Len() int {
	return a.parents.Size()
}

// Last returns the most recently allocated identifier (Root if none).
func (a *Allocator) Last() ID {
	return ID(a.next.Load())
}

// Scope is a handle for allocating children of one identifier.
type Scope struct {
	alloc *Allocator
	id    ID
}

// Scope returns an allocation handle for children of id.
func (a *Allocator) Scope(id ID) Scope {
	return Scope{alloc: a, id: id}
}

// ID returns the identifier the scope allocates under.
func (s Scope) ID() ID { return s.id }

// Allocator returns the underlying allocator.
func (s Scope) Allocator() *Allocator { return s.alloc }

// New allocates a child identifier in this scope.
func (s Scope) New() (ID, error) {
	if s.alloc == nil {
		return 0, fmt.Errorf("%w: nil allocator", ErrUnknownScope)
	}
	return s.alloc.NewChild(s.id)
}

// Child returns the scope for children of id.
func (s Scope) Child(id ID) Scope {
	return Scope{alloc: s.alloc, id: id}
}

// Release releases id through the scope's allocator.
func (s Scope) Release(id ID) {
	if s.alloc != nil {
		s.alloc.Release(id)
	}
}
