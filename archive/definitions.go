// Package archive implements the two-level Archive/GlobalArchive container
// that owns the definition tables (Strings, Regions, Attributes, Groups,
// Comms, Locations, LocationGroups), the per-process Thread list, and the
// Location→Archive resolution path.
package archive

import (
	"fmt"

	"github.com/pallas-trace/pallas/errs"
)

// Ref identifies a String, Region, Attribute, Group, or Comm definition.
// Refs are caller-supplied, not assigned by Pallas.
type Ref uint32

// LocationID identifies a Location or LocationGroup. Like Ref, it is
// caller-supplied.
type LocationID uint32

// Region names a source-code region by the string that describes it.
type Region struct {
	Ref       Ref
	StringRef Ref
}

// AttributeType enumerates the value kinds an Attribute definition can
// carry.
type AttributeType uint8

const (
	AttributeInt AttributeType = iota
	AttributeUint
	AttributeFloat
	AttributeString
)

// Attribute describes one named, typed key usable in an event's attribute
// list.
type Attribute struct {
	Ref         Ref
	Name        string
	Description string
	Type        AttributeType
}

// Group names a set of member Comms.
type Group struct {
	Ref     Ref
	Name    string
	Members []Ref
}

// Comm describes a communicator: a named group scoped under an optional
// parent communicator.
type Comm struct {
	Ref    Ref
	Name   string
	Group  Ref
	Parent Ref
}

// LocationGroup is a container of Locations (e.g. a process), optionally
// nested under a parent LocationGroup, with an optional "main" Location.
type LocationGroup struct {
	ID            LocationID
	Name          string
	Parent        LocationID
	HasParent     bool
	MainLocation  LocationID
	HasMain       bool
}

// Location is a leaf scheduling unit (e.g. a thread) owned by a
// LocationGroup.
type Location struct {
	ID         LocationID
	Name       string
	ParentID   LocationID
}

// StringDef pairs a caller-supplied Ref with its registered string, the
// shape the Strings table needs on export since, unlike Region/Attribute/
// Group/Comm/Location, a bare string carries no Ref of its own.
type StringDef struct {
	Ref   Ref
	Value string
}

// definitions is the mutex-serialised table set shared by Archive and
// GlobalArchive. Insertion order is preserved per table so storage can
// write them back deterministically; lookup by Ref/LocationID is via the
// index map.
type definitions struct {
	strings    orderedTable[Ref, string]
	regions    orderedTable[Ref, Region]
	attributes orderedTable[Ref, Attribute]
	groups     orderedTable[Ref, Group]
	comms      orderedTable[Ref, Comm]

	locations      orderedTable[LocationID, Location]
	locationGroups orderedTable[LocationID, LocationGroup]

	collisions int
}

func newDefinitions() *definitions {
	return &definitions{
		strings:        newOrderedTable[Ref, string](),
		regions:        newOrderedTable[Ref, Region](),
		attributes:     newOrderedTable[Ref, Attribute](),
		groups:         newOrderedTable[Ref, Group](),
		comms:          newOrderedTable[Ref, Comm](),
		locations:      newOrderedTable[LocationID, Location](),
		locationGroups: newOrderedTable[LocationID, LocationGroup](),
	}
}

// orderedTable is a small insertion-order-preserving map: values are kept
// in a slice for deterministic iteration (storage write-back) while a
// side index map gives O(1) ref lookup. Not safe for concurrent use on
// its own; callers (Archive/GlobalArchive) wrap it with a mutex.
type orderedTable[K comparable, V any] struct {
	index  map[K]int
	keys   []K
	values []V
}

func newOrderedTable[K comparable, V any]() orderedTable[K, V] {
	return orderedTable[K, V]{index: make(map[K]int)}
}

// add inserts a new entry under key, returning errs.ErrDuplicateDefinition
// if key is already present. The caller is responsible for counting
// duplicate attempts (see definitions.collisions); add itself only
// reports the error.
func (t *orderedTable[K, V]) add(key K, value V) error {
	if _, ok := t.index[key]; ok {
		return fmt.Errorf("%w: %v", errs.ErrDuplicateDefinition, key)
	}

	t.index[key] = len(t.values)
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)

	return nil
}

// get returns the value for key and whether it was present.
func (t *orderedTable[K, V]) get(key K) (V, bool) {
	i, ok := t.index[key]
	if !ok {
		var zero V
		return zero, false
	}

	return t.values[i], true
}

// all returns every value in insertion order. The returned slice aliases
// the table's backing array and must not be mutated by the caller.
func (t *orderedTable[K, V]) all() []V { return t.values }

// allKeys returns every key in the same insertion order as all().
func (t *orderedTable[K, V]) allKeys() []K { return t.keys }

func (t *orderedTable[K, V]) len() int { return len(t.values) }
