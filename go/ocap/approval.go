package ocap

import (
	"context"
	"log/slog"
)

// Approver is the external, asynchronous oracle that decides which
// requested permissions the user grants (spec §6:
// "requestUserApproval: (PermissionsRequest) → eventually IRequestedPermissions").
// It is invoked on its own goroutine by the approval coordinator; an empty,
// non-nil map means the user rejected every requested permission. The
// approver MAY return a different set of methods/caveats than requested
// (user-customization) — the coordinator trusts whatever it returns.
type Approver func(ctx context.Context, request PermissionsRequest) (map[string]PermissionOptions, error)

// approvalCoordinator implements spec §4.F: requestPermissions bridges the
// synchronous (domain,req,res,next,end) middleware contract across an
// asynchronous human-approval step.
type approvalCoordinator struct {
	store       *store
	grantRevoke *grantRevokeEngine
	approve     Approver
	ids         IDGenerator
	log         *slog.Logger
}

func newApprovalCoordinator(s *store, g *grantRevokeEngine, approve Approver, ids IDGenerator, log *slog.Logger) *approvalCoordinator {
	return &approvalCoordinator{store: s, grantRevoke: g, approve: approve, ids: ids, log: log}
}

// handleRequestPermissions implements spec §4.F steps 1–6. It returns
// immediately after scheduling the asynchronous approval; end is called
// later, from the goroutine running the approver, once a decision arrives.
func (a *approvalCoordinator) handleRequestPermissions(
	ctx context.Context,
	domain string,
	requested map[string]PermissionOptions,
	metadata *RequestMetadata,
	res *Response,
	end EndFunc,
) {
	if metadata == nil {
		metadata = &RequestMetadata{}
	}
	if metadata.Origin == "" {
		metadata.Origin = domain
	}
	if metadata.SiteTitle == "" {
		metadata.SiteTitle = domain
	}
	if metadata.ID == "" {
		metadata.ID = a.ids.NewID()
	}

	ticket := PermissionsRequest{
		Origin:   domain,
		Metadata: *metadata,
		Options:  requested,
	}
	a.store.addPendingRequest(ticket)

	go a.awaitApproval(ctx, domain, ticket, res, end)
}

// awaitApproval runs the (possibly slow, human-mediated) approver and
// materializes its decision. It recovers from a panicking approver the same
// way a supervised background routine would (go/routine's idiom), so a
// broken approver implementation cannot leave a request hanging forever
// without at least surfacing an error.
func (a *approvalCoordinator) awaitApproval(ctx context.Context, domain string, ticket PermissionsRequest, res *Response, end EndFunc) {
	defer func() {
		if r := recover(); r != nil {
			a.log.ErrorContext(ctx, "approver panicked", "domain", domain, "panic", r)
			a.store.removePendingRequest(ticket.Metadata.ID)
			terminate(res, end, Errorf(CodeUnauthorized, "approver panicked: %v", r))
		}
	}()

	approved, err := a.approve(ctx, ticket)
	if err != nil {
		a.log.WarnContext(ctx, "approver rejected request", "domain", domain, "error", err)
		a.store.removePendingRequest(ticket.Metadata.ID)
		metricsSingleton().approvalsRejected.Inc()
		terminate(res, end, Errorf(CodeUserRejected, "%s", err.Error()))
		return
	}

	if len(approved) == 0 {
		a.log.InfoContext(ctx, "user rejected permissions request", "domain", domain)
		a.store.removePendingRequest(ticket.Metadata.ID)
		metricsSingleton().approvalsRejected.Inc()
		terminate(res, end, UserRejected())
		return
	}

	a.store.removePendingRequest(ticket.Metadata.ID)

	staged := make([]Permission, 0, len(approved))
	for method, opts := range approved {
		staged = append(staged, Permission{
			Method:  method,
			Granter: RootGranter,
			Caveats: opts.Caveats,
		})
	}
	a.grantRevoke.addPermissionsFor(domain, staged)

	a.log.InfoContext(ctx, "granted root permissions", "domain", domain, "count", len(staged))
	succeed(res, end, a.grantRevoke.store.getPermissions(domain))
}
