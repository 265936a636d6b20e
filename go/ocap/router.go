package ocap

import (
	"context"
	"strings"
)

// metaMethod names the four built-in meta methods (spec §4.H, §4.F, §4.G).
// They are matched after stripping the engine's configured MethodPrefix.
type metaMethod string

const (
	metaGetPermissions     metaMethod = "getPermissions"
	metaRequestPermissions metaMethod = "requestPermissions"
	metaGrantPermissions   metaMethod = "grantPermissions"
	metaRevokePermissions  metaMethod = "revokePermissions"
)

// classification is the outcome of router.classify (spec §4.D step 1): every
// incoming method is exactly one of safe, meta, or restricted-or-unknown.
type classification int

const (
	classSafe classification = iota
	classMeta
	classRestricted
)

// router implements spec §4.D: it classifies each request and dispatches it
// to the safe passthrough, one of the four meta handlers, or the executor.
type router struct {
	safeMethods  map[string]struct{}
	methodPrefix string
	registry     *registry
	resolver     *resolver
	executor     *executor
	approval     *approvalCoordinator
	grantRevoke  *grantRevokeEngine
	descriptions func() []MethodDescription
}

func newRouter(
	safeMethods map[string]struct{},
	methodPrefix string,
	reg *registry,
	res *resolver,
	exec *executor,
	approval *approvalCoordinator,
	grantRevoke *grantRevokeEngine,
	descriptions func() []MethodDescription,
) *router {
	return &router{
		safeMethods:  safeMethods,
		methodPrefix: methodPrefix,
		registry:     reg,
		resolver:     res,
		executor:     exec,
		approval:     approval,
		grantRevoke:  grantRevoke,
		descriptions: descriptions,
	}
}

// classify implements spec §4.D step 1: a method is meta if, after removing
// the configured prefix, it exactly matches one of the four reserved names;
// otherwise it is safe if explicitly allow-listed, else restricted.
func (rt *router) classify(method string) (classification, metaMethod) {
	if strings.HasPrefix(method, rt.methodPrefix) {
		unprefixed := strings.TrimPrefix(method, rt.methodPrefix)
		switch metaMethod(unprefixed) {
		case metaGetPermissions, metaRequestPermissions, metaGrantPermissions, metaRevokePermissions:
			return classMeta, metaMethod(unprefixed)
		}
	}
	if _, ok := rt.safeMethods[method]; ok {
		return classSafe, ""
	}
	return classRestricted, ""
}

// Handle is the engine's single middleware entrypoint (spec §4.D–§5):
// exactly one of next or end is invoked before Handle returns, except for
// requestPermissions, whose end is invoked later from the approval
// coordinator's goroutine once a decision arrives.
func (rt *router) Handle(ctx context.Context, domain string, req *Request, res *Response, next NextFunc, end EndFunc) {
	ctx = withLogContext(ctx, domain, req.Method)

	// "user" is reserved for root-granted permissions (spec §3, §9) and must
	// never be accepted as the identity of an actual calling domain.
	if domain == RootGranter {
		terminate(res, end, Errorf(CodeUnauthorized, "domain %q is a reserved identifier", RootGranter))
		return
	}

	class, meta := rt.classify(req.Method)
	recordClassification(class)

	switch class {
	case classSafe:
		next()
		return
	case classMeta:
		rt.dispatchMeta(ctx, meta, domain, req, res, end)
		return
	default:
		rt.executor.handle(ctx, domain, req, res, next, end)
	}
}

// dispatchMeta implements spec §4.F–§4.H: positional-parameter parsing for
// each of the four meta methods, and delegation to the matching component.
func (rt *router) dispatchMeta(ctx context.Context, meta metaMethod, domain string, req *Request, res *Response, end EndFunc) {
	switch meta {
	case metaGetPermissions:
		succeed(res, end, rt.resolver.store.snapshot())

	case metaRequestPermissions:
		options, metadata := parseRequestPermissionsParams(req.Params)
		if metadata == nil {
			metadata = req.Metadata
		}
		rt.approval.handleRequestPermissions(ctx, domain, options, metadata, res, end)

	case metaGrantPermissions:
		grantee, requested, perr := parseGrantPermissionsParams(req.Params)
		if perr != nil {
			terminate(res, end, perr)
			return
		}
		granted, perr := rt.grantRevoke.handleGrantPermissions(domain, grantee, requested)
		if perr != nil {
			terminate(res, end, perr)
			return
		}
		succeed(res, end, granted)

	case metaRevokePermissions:
		assignedDomain, targets, perr := parseRevokePermissionsParams(req.Params)
		if perr != nil {
			terminate(res, end, perr)
			return
		}
		revoked, perr := rt.grantRevoke.handleRevokePermissions(domain, assignedDomain, targets)
		if perr != nil {
			terminate(res, end, perr)
			return
		}
		succeed(res, end, revoked)
	}
}

// parseRequestPermissionsParams reads requestPermissions' positional
// parameters: a map of method name to PermissionOptions (spec §4.F step 1),
// then an optional *RequestMetadata.
func parseRequestPermissionsParams(params []any) (map[string]PermissionOptions, *RequestMetadata) {
	options := map[string]PermissionOptions{}
	if len(params) > 0 {
		if m, ok := params[0].(map[string]PermissionOptions); ok {
			options = m
		}
	}
	var metadata *RequestMetadata
	if len(params) > 1 {
		if md, ok := params[1].(*RequestMetadata); ok {
			metadata = md
		}
	}
	return options, metadata
}

// parseGrantPermissionsParams reads grantPermissions' two positional
// parameters: the grantee domain, then the requested permissions (spec
// §4.G).
func parseGrantPermissionsParams(params []any) (string, []RequestedPermission, *Error) {
	if len(params) < 2 {
		return "", nil, Errorf(CodeUnauthorized, "grantPermissions requires (grantee, requestedPermissions)")
	}
	grantee, ok := params[0].(string)
	if !ok {
		return "", nil, Errorf(CodeUnauthorized, "grantPermissions: grantee must be a string")
	}
	requested, ok := params[1].([]RequestedPermission)
	if !ok {
		return "", nil, Errorf(CodeUnauthorized, "grantPermissions: requested permissions must be []RequestedPermission")
	}
	return grantee, requested, nil
}

// parseRevokePermissionsParams reads revokePermissions' two positional
// parameters: the assigned domain, then the revocation targets (spec §4.G,
// §9's mixed-type revocation parameter already normalized to RevokeTarget by
// the caller).
func parseRevokePermissionsParams(params []any) (string, []RevokeTarget, *Error) {
	if len(params) < 2 {
		return "", nil, Errorf(CodeUnauthorized, "revokePermissions requires (assignedDomain, targets)")
	}
	assignedDomain, ok := params[0].(string)
	if !ok {
		return "", nil, Errorf(CodeUnauthorized, "revokePermissions: assignedDomain must be a string")
	}
	targets, ok := params[1].([]RevokeTarget)
	if !ok {
		return "", nil, Errorf(CodeUnauthorized, "revokePermissions: targets must be []RevokeTarget")
	}
	return assignedDomain, targets, nil
}
