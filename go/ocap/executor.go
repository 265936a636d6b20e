package ocap

import "context"

// executor implements spec §4.E: given a restricted method the router has
// already decided to dispatch, resolve the caller's permission, apply any
// static caveat short-circuit, and otherwise invoke the registered handler.
type executor struct {
	registry *registry
	resolver *resolver
}

func newExecutor(reg *registry, res *resolver) *executor {
	return &executor{registry: reg, resolver: res}
}

// handle implements spec §4.D step 3 / §4.E: the caller's permission is
// resolved first, and only once one resolves does the executor consult
// the registry — a method-not-found outcome can only arise for a caller
// that already holds a permission referencing a since-deregistered method.
func (ex *executor) handle(ctx context.Context, domain string, req *Request, res *Response, next NextFunc, end EndFunc) {
	perm, found, err := ex.resolver.getPermission(domain, req.Method)
	if err != nil {
		terminate(res, end, ResolverError(err))
		return
	}
	recordResolverOutcome(found)
	if !found {
		terminate(res, end, Unauthorized(req))
		return
	}

	method, found := ex.registry.lookup(req.Method)
	if !found {
		terminate(res, end, MethodNotFound())
		return
	}

	if caveat, ok := perm.staticCaveat(); ok {
		succeed(res, end, caveat.Value)
		return
	}

	method.Handler(ctx, domain, req, res, next, end)
}
