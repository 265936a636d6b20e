package ocap

import "errors"

// maxChainDepth bounds delegation-chain traversal. Spec §9 recommends a
// depth limit so a malformed or adversarially-constructed state cannot hang
// the resolver; well-formed states (grants only issued by current holders,
// per §4.G) always terminate in far fewer hops than this.
const maxChainDepth = 64

// ErrChainTooDeep is returned by the resolver when a delegation chain
// exceeds maxChainDepth without reaching a root permission.
var ErrChainTooDeep = errors.New("delegation chain exceeds maximum depth")

// resolver implements spec §4.B: given (domain, method), walk the granter
// chain to the root permission, or report "none".
type resolver struct {
	store *store
}

func newResolver(s *store) *resolver {
	return &resolver{store: s}
}

// getPermission implements the algorithm of spec §4.B steps 1–5: it chases
// only the first matching permission at each hop (stable FIFO order on the
// domain's insertion-ordered permission list) and never follows more than
// maxChainDepth hops.
func (r *resolver) getPermission(domain, method string) (Permission, bool, error) {
	currentDomain := domain
	for hop := 0; hop < maxChainDepth; hop++ {
		perms := r.store.getPermissions(currentDomain)
		match, found := firstMatchingMethod(perms, method)
		if !found {
			return Permission{}, false, nil
		}
		if match.IsRoot() {
			return match, true, nil
		}
		currentDomain = match.Granter
	}
	return Permission{}, false, ErrChainTooDeep
}

func firstMatchingMethod(perms []Permission, method string) (Permission, bool) {
	for _, p := range perms {
		if p.Method == method {
			return p, true
		}
	}
	return Permission{}, false
}

// getPermissionUnTraversed implements spec §4.B's revocation lookup: the
// first permission of domain matching method where "matching granter" means
// P.Granter == "user" when granter == domain (a self-root), otherwise
// P.Granter == granter. Used by revokePermissions to locate grants issued
// by the revoker.
func (r *resolver) getPermissionUnTraversed(domain, method, granter string) (Permission, bool) {
	for _, p := range r.store.getPermissions(domain) {
		if p.Method != method {
			continue
		}
		if granter == domain {
			if p.IsRoot() {
				return p, true
			}
			continue
		}
		if p.Granter == granter {
			return p, true
		}
	}
	return Permission{}, false
}
