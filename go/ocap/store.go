package ocap

import "sync"

// Clock supplies a monotonic wall-clock timestamp source, in milliseconds
// since epoch. It is an external collaborator per spec §1; the engine
// never reads the system clock directly so permission dates are
// deterministic and injectable under test.
type Clock interface {
	NowMillis() int64
}

// IDGenerator supplies opaque unique identifiers for permission records and
// pending-request metadata. It is an external collaborator per spec §1.
type IDGenerator interface {
	NewID() string
}

// ChangeObserver is notified with an immutable snapshot of the engine state
// after every store mutation (spec §4.A: "Emits an opaque snapshot on every
// mutation"). Implementations MUST NOT mutate the snapshot they receive;
// MUST NOT block the caller for long, since notification happens inline
// with the mutating call (spec §5: single-threaded cooperative scheduling).
type ChangeObserver interface {
	OnStateChange(EngineState)
}

// ChangeObserverFunc adapts a function to a ChangeObserver.
type ChangeObserverFunc func(EngineState)

// OnStateChange implements ChangeObserver.
func (f ChangeObserverFunc) OnStateChange(s EngineState) { f(s) }

// store is the in-memory, observable permission store (spec §4.A). All
// mutations go through it; a single mutex serializes writes, matching
// spec §5's "implementers on a truly multi-threaded runtime must serialize
// writes to the store" guidance (the teacher's net/http PermissionMiddleware
// took the same bounded-mutex-map approach for its read-through cache; here
// the store itself, not a cache in front of a DB, is the source of truth).
type store struct {
	mu        sync.Mutex
	state     EngineState
	observers []ChangeObserver
}

func newStore(initial EngineState) *store {
	if initial.Domains == nil {
		initial.Domains = map[string]DomainEntry{}
	}
	return &store{state: cloneState(initial)}
}

// subscribe registers an observer notified after every mutation. Not
// part of the spec's §4.A method list by name, but implements the "change-
// notification hook for external persistence" the section describes.
func (s *store) subscribe(o ChangeObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// notifyLocked must be called with s.mu held; it snapshots state and fans
// it out to observers without holding the lock during observer calls, so a
// slow observer cannot deadlock a re-entrant store call.
func (s *store) notifyLocked() {
	snapshot := cloneState(s.state)
	observers := append([]ChangeObserver(nil), s.observers...)
	s.mu.Unlock()
	for _, o := range observers {
		o.OnStateChange(snapshot)
	}
	s.mu.Lock()
}

// getDomains returns a snapshot of every domain's permissions.
func (s *store) getDomains() map[string]DomainEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]DomainEntry, len(s.state.Domains))
	for d, e := range s.state.Domains {
		perms := make([]Permission, len(e.Permissions))
		copy(perms, e.Permissions)
		out[d] = DomainEntry{Permissions: perms}
	}
	return out
}

// setDomains replaces the entire domain map in one mutation and notifies
// observers. Construction-time rehydration from InitState does not go
// through it: newStore copies the initial state directly.
func (s *store) setDomains(domains map[string]DomainEntry) {
	s.mu.Lock()
	s.state.Domains = cloneState(EngineState{Domains: domains}).Domains
	s.notifyLocked()
	s.mu.Unlock()
}

// getDomainSettings is a pure read: it lazily materializes an empty entry
// for domains that have never been granted anything, but does not commit
// that empty entry until a subsequent setDomain call (spec §4.A).
func (s *store) getDomainSettings(domain string) DomainEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.state.Domains[domain]
	if !ok {
		return DomainEntry{}
	}
	perms := make([]Permission, len(entry.Permissions))
	copy(perms, entry.Permissions)
	return DomainEntry{Permissions: perms}
}

// setDomain commits one domain's entry and notifies observers.
func (s *store) setDomain(domain string, entry DomainEntry) {
	s.mu.Lock()
	perms := make([]Permission, len(entry.Permissions))
	copy(perms, entry.Permissions)
	if s.state.Domains == nil {
		s.state.Domains = map[string]DomainEntry{}
	}
	s.state.Domains[domain] = DomainEntry{Permissions: perms}
	s.notifyLocked()
	s.mu.Unlock()
}

// getPermissions returns the domain's permission list, possibly empty.
func (s *store) getPermissions(domain string) []Permission {
	return s.getDomainSettings(domain).Permissions
}

// snapshot returns an immutable copy of the entire engine state.
func (s *store) snapshot() EngineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

// addPendingRequest appends a PermissionsRequest and notifies observers.
func (s *store) addPendingRequest(req PermissionsRequest) {
	s.mu.Lock()
	s.state.PermissionsRequests = append(s.state.PermissionsRequests, req)
	s.notifyLocked()
	s.mu.Unlock()
}

// removePendingRequest deletes the ticket with the given metadata id, if
// present, and notifies observers.
func (s *store) removePendingRequest(id string) {
	s.mu.Lock()
	filtered := s.state.PermissionsRequests[:0:0]
	for _, r := range s.state.PermissionsRequests {
		if r.Metadata.ID != id {
			filtered = append(filtered, r)
		}
	}
	s.state.PermissionsRequests = filtered
	s.notifyLocked()
	s.mu.Unlock()
}

// setPermissionsDescriptions sets the immutable-after-construction
// descriptions array (spec §3).
func (s *store) setPermissionsDescriptions(descriptions []MethodDescription) {
	s.mu.Lock()
	s.state.PermissionsDescriptions = append([]MethodDescription(nil), descriptions...)
	s.mu.Unlock()
}
