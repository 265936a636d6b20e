package ocap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/domaincap/ocap-engine/go/uuid"
)

// Config wires together every external collaborator and policy knob the
// engine needs (spec §1, §7). RestrictedMethods and Approve are the two
// fields whose absence is a fatal construction error; everything else has a
// safe default.
type Config struct {
	// SafeMethods is the allow-list of methods the engine passes straight
	// through to next() without consulting the permission store (spec §4.D).
	SafeMethods []string
	// RestrictedMethods is the registry of gated methods (spec §4.C).
	// Required: an engine with no restricted methods has nothing to mediate.
	RestrictedMethods map[string]RestrictedMethod
	// MethodPrefix is stripped from an incoming method name before matching
	// it against the four reserved meta-method names (spec §4.D step 1).
	MethodPrefix string
	// Approve is the external, asynchronous user-approval oracle (spec §4.F).
	// Required.
	Approve Approver
	// InitState rehydrates the engine from a previously emitted snapshot
	// (spec §4.A). Zero value starts the engine with no domains.
	InitState EngineState
	// IDs generates permission ids and pending-request ids. Defaults to a
	// UUIDv7-backed generator.
	IDs IDGenerator
	// Clock supplies permission grant timestamps. Defaults to the system
	// clock.
	Clock Clock
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// Sweeper configures the background orphaned-delegation sweeper. Zero
	// value uses its defaults; the sweeper always runs once Start is called.
	Sweeper SweeperConfig
}

// Engine is the assembled permission engine: the single RPC middleware an
// embedding server installs in its request pipeline (spec §1, §5).
type Engine struct {
	store    *store
	resolver *resolver
	registry *registry
	router   *router
	sweeper  *sweeper
	log      *slog.Logger
}

// New validates cfg and assembles an Engine. Per spec §7, a missing
// approver or an empty restricted-method registry is a fatal configuration
// error; both, plus any other validation failure, are aggregated into one
// returned error so operators see every problem at once.
func New(cfg Config) (*Engine, error) {
	var errs *multierror.Error

	if cfg.Approve == nil {
		errs = multierror.Append(errs, Errorf(CodeUnauthorized, "Config.Approve is required"))
	}
	if len(cfg.RestrictedMethods) == 0 {
		errs = multierror.Append(errs, Errorf(CodeUnauthorized, "Config.RestrictedMethods must not be empty"))
	}
	for name := range cfg.RestrictedMethods {
		if name == "" {
			errs = multierror.Append(errs, Errorf(CodeUnauthorized, "Config.RestrictedMethods has an empty method name"))
		}
	}
	if errs.ErrorOrNil() != nil {
		return nil, errs.ErrorOrNil()
	}

	ids := cfg.IDs
	if ids == nil {
		ids = defaultIDGenerator{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := newStore(cfg.InitState)

	reg := newRegistry(cfg.RestrictedMethods)
	st.setPermissionsDescriptions(reg.descriptions())

	res := newResolver(st)
	exec := newExecutor(reg, res)
	grantRevoke := newGrantRevokeEngine(st, res, ids, clock)
	approval := newApprovalCoordinator(st, grantRevoke, cfg.Approve, ids, logger)

	safeMethods := make(map[string]struct{}, len(cfg.SafeMethods))
	for _, m := range cfg.SafeMethods {
		safeMethods[m] = struct{}{}
	}

	rt := newRouter(safeMethods, cfg.MethodPrefix, reg, res, exec, approval, grantRevoke, reg.descriptions)
	sw := newSweeper(st, res, grantRevoke, logger, cfg.Sweeper)

	return &Engine{store: st, resolver: res, registry: reg, router: rt, sweeper: sw, log: logger}, nil
}

// Start launches the engine's background orphaned-delegation sweeper.
// Non-blocking; call Close to stop it.
func (e *Engine) Start(ctx context.Context) {
	e.sweeper.Start(ctx)
}

// Close stops the engine's background sweeper and blocks until it exits.
func (e *Engine) Close() {
	e.sweeper.Close()
}

// Middleware returns the engine's single RPC middleware entrypoint, ready to
// install in an embedding server's handler chain (spec §5).
func (e *Engine) Middleware() HandlerFunc {
	return e.router.Handle
}

// Subscribe registers an observer notified with a full state snapshot after
// every mutation (spec §4.A's change-notification hook).
func (e *Engine) Subscribe(o ChangeObserver) {
	e.store.subscribe(o)
}

// Snapshot returns the engine's current state, suitable for persistence and
// later rehydration via Config.InitState.
func (e *Engine) Snapshot() EngineState {
	return e.store.snapshot()
}

// Handle is a convenience wrapper for callers that want to invoke the
// engine directly with a context-carrying request, outside of an embedding
// RPC framework's own middleware chain.
func (e *Engine) Handle(ctx context.Context, domain string, req *Request) *Response {
	res := &Response{}
	done := make(chan struct{})
	var once sync.Once
	end := func() { once.Do(func() { close(done) }) }
	next := end
	e.router.Handle(ctx, domain, req, res, next, end)
	<-done
	return res
}

type defaultIDGenerator struct{}

func (defaultIDGenerator) NewID() string { return uuid.MustNewV7().String() }

type systemClock struct{}

func (systemClock) NowMillis() int64 { return time.Now().UnixMilli() }
