package archive

import (
	"container/list"
	"log/slog"
	"sync"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/thread"
)

// defaultThreadCacheSize bounds how many Thread values an Archive keeps
// resident before evicting the least-recently-used one.
const defaultThreadCacheSize = 64

// GlobalArchive is the one-per-trace root container: it owns the global
// definition tables, the Location/LocationGroup namespace, and the set of
// per-process Archives loaded for this trace.
type GlobalArchive struct {
	defs *definitions

	mu       sync.Mutex
	archives map[uint32]*Archive
	order    []uint32

	log *slog.Logger
}

// NewGlobalArchive creates an empty GlobalArchive. log defaults to
// slog.Default() if nil.
func NewGlobalArchive(log *slog.Logger) *GlobalArchive {
	if log == nil {
		log = slog.Default()
	}

	return &GlobalArchive{
		defs:     newDefinitions(),
		archives: make(map[uint32]*Archive),
		log:      log,
	}
}

// AddString registers a String definition under ref.
func (g *GlobalArchive) AddString(ref Ref, s string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.countDuplicateLocked(g.defs.strings.add(ref, s))
}

// AddRegion registers a Region definition under ref.
func (g *GlobalArchive) AddRegion(ref Ref, r Region) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.countDuplicateLocked(g.defs.regions.add(ref, r))
}

// AddAttribute registers an Attribute definition under ref.
func (g *GlobalArchive) AddAttribute(ref Ref, a Attribute) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.countDuplicateLocked(g.defs.attributes.add(ref, a))
}

// AddGroup registers a Group definition under ref.
func (g *GlobalArchive) AddGroup(ref Ref, grp Group) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.countDuplicateLocked(g.defs.groups.add(ref, grp))
}

// AddComm registers a Comm definition under ref.
func (g *GlobalArchive) AddComm(ref Ref, c Comm) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.countDuplicateLocked(g.defs.comms.add(ref, c))
}

// countDuplicateLocked bumps the collision counter whenever add reported a
// duplicate definition, then returns the error unchanged: duplicate
// attempts are both reported to the caller and counted for diagnostics.
func (g *GlobalArchive) countDuplicateLocked(err error) error {
	if err != nil {
		g.defs.collisions++
	}

	return err
}

// DefineLocationGroup registers a LocationGroup, optionally nested under
// parent.
func (g *GlobalArchive) DefineLocationGroup(id LocationID, name string, parent LocationID, hasParent bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.locationGroups.add(id, LocationGroup{ID: id, Name: name, Parent: parent, HasParent: hasParent})
}

// DefineLocation registers a Location under a LocationGroup.
func (g *GlobalArchive) DefineLocation(id LocationID, name string, parentGroup LocationID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.locations.add(id, Location{ID: id, Name: name, ParentID: parentGroup})
}

// GetString looks up a String definition, nullable (ok=false on miss).
func (g *GlobalArchive) GetString(ref Ref) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.strings.get(ref)
}

// GetRegion looks up a Region definition.
func (g *GlobalArchive) GetRegion(ref Ref) (Region, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.regions.get(ref)
}

// GetAttribute looks up an Attribute definition.
func (g *GlobalArchive) GetAttribute(ref Ref) (Attribute, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.attributes.get(ref)
}

// GetGroup looks up a Group definition.
func (g *GlobalArchive) GetGroup(ref Ref) (Group, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.groups.get(ref)
}

// GetComm looks up a Comm definition.
func (g *GlobalArchive) GetComm(ref Ref) (Comm, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.comms.get(ref)
}

// GetLocation looks up a Location.
func (g *GlobalArchive) GetLocation(id LocationID) (Location, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.locations.get(id)
}

// GetLocationGroup looks up a LocationGroup.
func (g *GlobalArchive) GetLocationGroup(id LocationID) (LocationGroup, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.locationGroups.get(id)
}

// Strings returns every registered global String definition, paired with
// its Ref, in insertion order. Used by the storage engine to serialize
// string.dat.
func (g *GlobalArchive) Strings() []StringDef {
	g.mu.Lock()
	defer g.mu.Unlock()

	refs := g.defs.strings.allKeys()
	vals := g.defs.strings.all()
	out := make([]StringDef, len(vals))
	for i := range vals {
		out[i] = StringDef{Ref: refs[i], Value: vals[i]}
	}

	return out
}

// Regions returns every registered global Region definition in insertion order.
func (g *GlobalArchive) Regions() []Region { g.mu.Lock(); defer g.mu.Unlock(); return g.defs.regions.all() }

// Attributes returns every registered global Attribute definition in insertion order.
func (g *GlobalArchive) Attributes() []Attribute {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.attributes.all()
}

// Groups returns every registered global Group definition in insertion order.
func (g *GlobalArchive) Groups() []Group { g.mu.Lock(); defer g.mu.Unlock(); return g.defs.groups.all() }

// Comms returns every registered global Comm definition in insertion order.
func (g *GlobalArchive) Comms() []Comm { g.mu.Lock(); defer g.mu.Unlock(); return g.defs.comms.all() }

// Locations returns every registered Location in insertion order.
func (g *GlobalArchive) Locations() []Location {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.locations.all()
}

// LocationGroups returns every registered LocationGroup in insertion order.
func (g *GlobalArchive) LocationGroups() []LocationGroup {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.locationGroups.all()
}

// NewArchive creates and registers a new per-process Archive under
// groupID, falling through to g for definition lookups it cannot resolve
// locally.
func (g *GlobalArchive) NewArchive(groupID uint32) *Archive {
	a := newArchive(groupID, g, g.log)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.archives[groupID] = a
	g.order = append(g.order, groupID)

	return a
}

// Archives returns every registered per-process Archive in the order they
// were created.
func (g *GlobalArchive) Archives() []*Archive {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Archive, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.archives[id])
	}

	return out
}

// ArchiveForLocation resolves a Location to its owning Archive: it walks
// the Location's parent LocationGroup chain until it reaches the
// outermost (parentless) LocationGroup, whose id is the process-level
// group id an Archive was created with.
func (g *GlobalArchive) ArchiveForLocation(id LocationID) (*Archive, error) {
	loc, ok := g.GetLocation(id)
	if !ok {
		return nil, errs.ErrDefinitionNotFound
	}

	groupID := loc.ParentID
	for {
		grp, ok := g.GetLocationGroup(groupID)
		if !ok {
			break
		}
		if !grp.HasParent {
			break
		}
		groupID = grp.Parent
	}

	g.mu.Lock()
	a, ok := g.archives[uint32(groupID)]
	g.mu.Unlock()
	if !ok {
		return nil, errs.ErrArchiveNotFound
	}

	return a, nil
}

// CollisionCount returns the number of duplicate-definition attempts this
// GlobalArchive has counted (each one was also returned to its caller as
// errs.ErrDuplicateDefinition).
func (g *GlobalArchive) CollisionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs.collisions
}

// Archive is the one-per-process container: a local definitions table
// that falls through to its GlobalArchive on miss, and the set of Threads
// this process recorded.
type Archive struct {
	GroupID uint32

	global *GlobalArchive
	defs   *definitions
	log    *slog.Logger

	mu      sync.Mutex
	threads map[thread.ID]*thread.Thread
	order   []thread.ID
	closed  bool

	cacheSize int
	lru       *list.List
	lruNode   map[thread.ID]*list.Element
}

func newArchive(groupID uint32, global *GlobalArchive, log *slog.Logger) *Archive {
	return &Archive{
		GroupID:   groupID,
		global:    global,
		defs:      newDefinitions(),
		log:       log,
		threads:   make(map[thread.ID]*thread.Thread),
		cacheSize: defaultThreadCacheSize,
		lru:       list.New(),
		lruNode:   make(map[thread.ID]*list.Element),
	}
}

// AddString registers a process-local String definition.
func (a *Archive) AddString(ref Ref, s string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.countDuplicateLocked(a.defs.strings.add(ref, s))
}

// AddRegion registers a process-local Region definition.
func (a *Archive) AddRegion(ref Ref, r Region) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.countDuplicateLocked(a.defs.regions.add(ref, r))
}

// AddAttribute registers a process-local Attribute definition.
func (a *Archive) AddAttribute(ref Ref, at Attribute) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.countDuplicateLocked(a.defs.attributes.add(ref, at))
}

// AddGroup registers a process-local Group definition.
func (a *Archive) AddGroup(ref Ref, grp Group) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.countDuplicateLocked(a.defs.groups.add(ref, grp))
}

// AddComm registers a process-local Comm definition.
func (a *Archive) AddComm(ref Ref, c Comm) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.countDuplicateLocked(a.defs.comms.add(ref, c))
}

func (a *Archive) countDuplicateLocked(err error) error {
	if err != nil {
		a.defs.collisions++
	}

	return err
}

// CollisionCount returns the number of duplicate-definition attempts this
// Archive has counted (each one was also returned to its caller as
// errs.ErrDuplicateDefinition).
func (a *Archive) CollisionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.defs.collisions
}

// GetString resolves ref against the process-local table, falling through
// to the GlobalArchive on miss.
func (a *Archive) GetString(ref Ref) (string, bool) {
	a.mu.Lock()
	v, ok := a.defs.strings.get(ref)
	a.mu.Unlock()
	if ok {
		return v, true
	}

	return a.global.GetString(ref)
}

// GetRegion resolves ref, falling through to global.
func (a *Archive) GetRegion(ref Ref) (Region, bool) {
	a.mu.Lock()
	v, ok := a.defs.regions.get(ref)
	a.mu.Unlock()
	if ok {
		return v, true
	}

	return a.global.GetRegion(ref)
}

// GetAttribute resolves ref, falling through to global.
func (a *Archive) GetAttribute(ref Ref) (Attribute, bool) {
	a.mu.Lock()
	v, ok := a.defs.attributes.get(ref)
	a.mu.Unlock()
	if ok {
		return v, true
	}

	return a.global.GetAttribute(ref)
}

// GetGroup resolves ref, falling through to global.
func (a *Archive) GetGroup(ref Ref) (Group, bool) {
	a.mu.Lock()
	v, ok := a.defs.groups.get(ref)
	a.mu.Unlock()
	if ok {
		return v, true
	}

	return a.global.GetGroup(ref)
}

// GetComm resolves ref, falling through to global.
func (a *Archive) GetComm(ref Ref) (Comm, bool) {
	a.mu.Lock()
	v, ok := a.defs.comms.get(ref)
	a.mu.Unlock()
	if ok {
		return v, true
	}

	return a.global.GetComm(ref)
}

// Strings returns every process-local String definition, paired with its
// Ref, in insertion order (the process-local table only; it does not
// include anything resolved from the GlobalArchive fallback).
func (a *Archive) Strings() []StringDef {
	a.mu.Lock()
	defer a.mu.Unlock()

	refs := a.defs.strings.allKeys()
	vals := a.defs.strings.all()
	out := make([]StringDef, len(vals))
	for i := range vals {
		out[i] = StringDef{Ref: refs[i], Value: vals[i]}
	}

	return out
}

// Regions returns every process-local Region definition in insertion order.
func (a *Archive) Regions() []Region { a.mu.Lock(); defer a.mu.Unlock(); return a.defs.regions.all() }

// Attributes returns every process-local Attribute definition in insertion order.
func (a *Archive) Attributes() []Attribute {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.defs.attributes.all()
}

// Groups returns every process-local Group definition in insertion order.
func (a *Archive) Groups() []Group { a.mu.Lock(); defer a.mu.Unlock(); return a.defs.groups.all() }

// Comms returns every process-local Comm definition in insertion order.
func (a *Archive) Comms() []Comm { a.mu.Lock(); defer a.mu.Unlock(); return a.defs.comms.all() }

// NewThread creates, registers, and returns a new Thread owned by this
// Archive.
func (a *Archive) NewThread(id thread.ID, log *slog.Logger) *thread.Thread {
	t := thread.New(id, log)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.threads[id] = t
	a.order = append(a.order, id)
	a.touchLocked(id)

	return t
}

// AdoptThread registers an already-constructed Thread (e.g. one the
// storage engine just reloaded from disk) under its own ID, without
// going through NewThread's fresh-allocation path.
func (a *Archive) AdoptThread(t *thread.Thread) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.threads[t.ID] = t
	a.order = append(a.order, t.ID)
	a.touchLocked(t.ID)
}

// GetThread returns a previously registered Thread.
func (a *Archive) GetThread(id thread.ID) (*thread.Thread, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.threads[id]
	if !ok {
		return nil, errs.ErrThreadNotFound
	}
	a.touchLocked(id)

	return t, nil
}

// Threads returns every registered Thread in creation order.
func (a *Archive) Threads() []*thread.Thread {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*thread.Thread, 0, len(a.threads))
	for _, id := range a.order {
		if t, ok := a.threads[id]; ok {
			out = append(out, t)
		}
	}

	return out
}

// touchLocked marks id as most-recently-used and evicts the
// least-recently-used Thread past the cache bound. Eviction only drops
// the in-memory reference: GetThread then returns errs.ErrThreadNotFound
// for that id, and nothing in this package or in storage reloads it.
func (a *Archive) touchLocked(id thread.ID) {
	if el, ok := a.lruNode[id]; ok {
		a.lru.MoveToFront(el)
		return
	}

	a.lruNode[id] = a.lru.PushFront(id)
	if a.lru.Len() <= a.cacheSize {
		return
	}

	oldest := a.lru.Back()
	if oldest == nil {
		return
	}

	evictID := oldest.Value.(thread.ID)
	a.lru.Remove(oldest)
	delete(a.lruNode, evictID)

	if evictID != id {
		delete(a.threads, evictID)
		a.log.Debug("pallas: evicted thread from archive cache", "thread", evictID)
	}
}

// EvictThread drops id's in-memory Thread value, if loaded, so its
// duration payloads can be released. A later GetThread for id returns
// errs.ErrThreadNotFound; the Thread is not reloaded from disk.
func (a *Archive) EvictThread(id thread.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if el, ok := a.lruNode[id]; ok {
		a.lru.Remove(el)
		delete(a.lruNode, id)
	}
	delete(a.threads, id)
}

// Close marks the Archive closed; subsequent Add*/Get* calls still work
// (definition tables don't need an open archive), but callers coordinating
// with storage should check Closed before attempting further writes.
func (a *Archive) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

// Closed reports whether Close has been called.
func (a *Archive) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
