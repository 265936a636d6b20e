package ocap

import (
	"context"
	"log/slog"

	"github.com/domaincap/ocap-engine/go/routine"
)

// SweeperConfig configures the orphaned-delegation sweeper.
type SweeperConfig struct {
	// IntervalSeconds is how often the sweeper walks every domain. Defaults
	// to 300 (five minutes) when zero.
	IntervalSeconds int
	// BackoffSeconds is applied between sweep attempts after an error.
	// Defaults to 30 when zero.
	BackoffSeconds int
}

// sweeper periodically walks every domain's permissions and revokes any
// delegated permission whose granter chain does not terminate at a root
// permission within maxChainDepth hops. This is the engine's answer to
// spec §9's open question about dangling delegations left behind when a
// revocation is not cascaded: rather than cascading synchronously at
// revoke-time, orphaned grants are reaped on a schedule.
type sweeper struct {
	store       *store
	resolver    *resolver
	grantRevoke *grantRevokeEngine
	log         *slog.Logger
	cfg         SweeperConfig
	routine     *routine.Routine
}

func newSweeper(s *store, r *resolver, g *grantRevokeEngine, log *slog.Logger, cfg SweeperConfig) *sweeper {
	if cfg.IntervalSeconds == 0 {
		cfg.IntervalSeconds = 300
	}
	if cfg.BackoffSeconds == 0 {
		cfg.BackoffSeconds = 30
	}
	return &sweeper{store: s, resolver: r, grantRevoke: g, log: log, cfg: cfg}
}

// Start launches the sweeper's background routine. Non-blocking.
func (sw *sweeper) Start(ctx context.Context) {
	sw.routine = routine.New("ocap-orphan-sweeper", sw.sweepOnce, func(err error) {
		sw.log.ErrorContext(ctx, "orphan sweeper exited permanently", "error", err)
	}).
		WithLogger(sw.log).
		WithTickerS(sw.cfg.IntervalSeconds).
		WithConstantBackOff(sw.cfg.BackoffSeconds).
		WithErrorCounter("ocap_sweeper_errors_total").
		Start(ctx)
}

// Close stops the sweeper and blocks until its goroutine has exited.
func (sw *sweeper) Close() {
	if sw.routine != nil {
		sw.routine.Close()
	}
}

func (sw *sweeper) sweepOnce(ctx context.Context) error {
	for domain, entry := range sw.store.getDomains() {
		var orphaned []Permission
		for _, perm := range entry.Permissions {
			if perm.IsRoot() {
				continue
			}
			if _, found, err := sw.resolver.getPermission(perm.Granter, perm.Method); err != nil || !found {
				orphaned = append(orphaned, perm)
			}
		}
		if len(orphaned) == 0 {
			continue
		}
		sw.log.InfoContext(ctx, "revoking orphaned delegations", "domain", domain, "count", len(orphaned))
		sw.grantRevoke.removePermissionsFor(domain, orphaned)
		metricsSingleton().sweeperRevocations.Add(float64(len(orphaned)))
	}
	return nil
}
