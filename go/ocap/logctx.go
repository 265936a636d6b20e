package ocap

import "context"

type logCtxKey struct{}

type logFields struct {
	domain string
	method string
}

// withLogContext attaches the domain and method of the request currently
// being mediated, so a logging.ContextHandler further down the handler
// chain can annotate every log line without every call site repeating
// "domain"/"method" attrs by hand.
func withLogContext(ctx context.Context, domain, method string) context.Context {
	return context.WithValue(ctx, logCtxKey{}, logFields{domain: domain, method: method})
}

// ContextLogFields extracts the domain/method pair set by withLogContext, in
// the []any key-value form logging.ContextHandler expects. It is exported so
// an embedding binary can wire it into its own logger's handler chain.
func ContextLogFields(ctx context.Context) []any {
	fields, ok := ctx.Value(logCtxKey{}).(logFields)
	if !ok {
		return nil
	}
	return []any{"domain", fields.domain, "method", fields.method}
}
