package ocap

// RequestedPermission is one entry of grantPermissions' second positional
// parameter (spec §4.G): the method being delegated. Caveats are never
// taken from the request — they are copied verbatim from the granter's own
// resolved permission (spec §4.G step 2, and §9's caveat-inheritance note).
type RequestedPermission struct {
	Method string
}

// RevokeTarget is one entry of revokePermissions' second positional
// parameter. It normalizes spec §4.G's "either a method-name string or a
// permission-shaped object with at least `method`" into a single Go type at
// the boundary (spec §9 "Mixed-type revocation parameter").
type RevokeTarget struct {
	Method string
}

// RevokeTargetFromMethod builds a RevokeTarget from a bare method name.
func RevokeTargetFromMethod(method string) RevokeTarget { return RevokeTarget{Method: method} }

// RevokeTargetFromPermission builds a RevokeTarget from a permission-shaped
// value, extracting only its Method (spec §9 normalization note).
func RevokeTargetFromPermission(p Permission) RevokeTarget { return RevokeTarget{Method: p.Method} }

// grantRevokeEngine implements spec §4.G: upsert-by-natural-key mutation of
// the store, plus the grantPermissions/revokePermissions meta methods.
type grantRevokeEngine struct {
	store    *store
	resolver *resolver
	ids      IDGenerator
	clock    Clock
}

func newGrantRevokeEngine(s *store, r *resolver, ids IDGenerator, clock Clock) *grantRevokeEngine {
	return &grantRevokeEngine{store: s, resolver: r, ids: ids, clock: clock}
}

// addPermissionsFor upserts newPermissions into domain's entry by natural
// key (method, granter): spec §4.G steps 1–4. Permissions lacking an ID are
// assigned a fresh one and stamped with the current time; the returned
// slice reflects the permissions as actually stored (ids/dates filled in).
func (g *grantRevokeEngine) addPermissionsFor(domain string, newPermissions []Permission) []Permission {
	existing := g.store.getDomainSettings(domain).Permissions

	incomingKeys := make(map[naturalKey]struct{}, len(newPermissions))
	for _, p := range newPermissions {
		incomingKeys[p.naturalKey()] = struct{}{}
	}

	kept := make([]Permission, 0, len(existing))
	for _, p := range existing {
		if _, shadowed := incomingKeys[p.naturalKey()]; !shadowed {
			kept = append(kept, p)
		}
	}

	staged := make([]Permission, len(newPermissions))
	for i, p := range newPermissions {
		if p.ID == "" {
			p.ID = g.ids.NewID()
			p.Date = g.clock.NowMillis()
		}
		staged[i] = p
	}

	g.store.setDomain(domain, DomainEntry{Permissions: append(kept, staged...)})
	metricsSingleton().grantsTotal.Add(float64(len(staged)))
	return staged
}

// removePermissionsFor filters out every permission in toRemove by natural
// key (spec §4.G). Returns nothing: callers already hold the staged list
// they asked to remove.
func (g *grantRevokeEngine) removePermissionsFor(domain string, toRemove []Permission) {
	removeKeys := make(map[naturalKey]struct{}, len(toRemove))
	for _, p := range toRemove {
		removeKeys[p.naturalKey()] = struct{}{}
	}

	existing := g.store.getDomainSettings(domain).Permissions
	kept := make([]Permission, 0, len(existing))
	for _, p := range existing {
		if _, removed := removeKeys[p.naturalKey()]; !removed {
			kept = append(kept, p)
		}
	}
	g.store.setDomain(domain, DomainEntry{Permissions: kept})
	metricsSingleton().revocationsTotal.Add(float64(len(toRemove)))
}

// handleGrantPermissions implements the grantPermissions meta method (spec
// §4.G): callerDomain peer-delegates requestedPerms to grantee, provided
// callerDomain itself currently holds each requested method.
func (g *grantRevokeEngine) handleGrantPermissions(callerDomain string, grantee string, requested []RequestedPermission) ([]Permission, *Error) {
	deduped := dedupeByMethod(requested)

	staged := make([]Permission, 0, len(deduped))
	for _, reqPerm := range deduped {
		granterPerm, found, err := g.resolver.getPermission(callerDomain, reqPerm.Method)
		if err != nil {
			return nil, ResolverError(err)
		}
		if !found {
			return nil, Unauthorized(reqPerm)
		}
		staged = append(staged, Permission{
			Method:  reqPerm.Method,
			Granter: callerDomain,
			Caveats: append([]Caveat(nil), granterPerm.Caveats...),
		})
	}

	return g.addPermissionsFor(grantee, staged), nil
}

func dedupeByMethod(requested []RequestedPermission) []RequestedPermission {
	seen := make(map[string]struct{}, len(requested))
	out := make([]RequestedPermission, 0, len(requested))
	for _, r := range requested {
		if _, ok := seen[r.Method]; ok {
			continue
		}
		seen[r.Method] = struct{}{}
		out = append(out, r)
	}
	return out
}

// handleRevokePermissions implements the revokePermissions meta method
// (spec §4.G): callerDomain may revoke a permission held by assignedDomain
// if callerDomain granted it, or if assignedDomain is revoking its own.
func (g *grantRevokeEngine) handleRevokePermissions(callerDomain string, assignedDomain string, targets []RevokeTarget) ([]Permission, *Error) {
	staged := make([]Permission, 0, len(targets))
	for _, target := range targets {
		perm, found := g.resolver.getPermissionUnTraversed(assignedDomain, target.Method, callerDomain)
		if !found {
			return nil, Unauthorized(target)
		}
		authorized := perm.Granter == callerDomain || assignedDomain == callerDomain
		if !authorized {
			return nil, Unauthorized(target)
		}
		staged = append(staged, perm)
	}

	g.removePermissionsFor(assignedDomain, staged)
	metricsSingleton().revocationsTotal.Add(float64(len(staged)))
	return staged, nil
}
