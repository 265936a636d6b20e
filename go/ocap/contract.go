package ocap

import "context"

// Request is one incoming RPC call, as handed to the engine's middleware.
type Request struct {
	// Method is the RPC method name, e.g. "eth_sendTransaction" or, with a
	// configured MethodPrefix, "wallet_requestPermissions".
	Method string
	// Params is positional, JSON-RPC-2 style (the meta methods document
	// their expected shape in spec §4.F–H).
	Params []any
	// Metadata carries the caller-supplied requestPermissions ticket
	// metadata (origin/siteTitle/id); nil for any other method.
	Metadata *RequestMetadata
}

// Response is mutated by the engine as it processes a Request. Per spec
// §5, within a single request lifetime Result/Error is set at most once.
type Response struct {
	Result any
	Error  *Error
}

// NextFunc forwards the request to the next middleware in the host's
// chain, leaving Response untouched (spec §4.D, safe methods).
type NextFunc func()

// EndFunc terminates the request with the current Response. Per spec §5,
// it is called exactly once per request whenever Next is not chosen.
type EndFunc func()

// HandlerFunc is a restricted method's implementation. It MUST invoke
// exactly one of next or end before returning, per the RPC middleware
// contract (spec §6).
type HandlerFunc func(ctx context.Context, domain string, req *Request, res *Response, next NextFunc, end EndFunc)

// terminate is a small helper so internal callers don't forget to set an error
// before calling EndFunc; it keeps "res.error implies end(error)" (spec §5)
// true by construction.
func terminate(res *Response, end EndFunc, err *Error) {
	res.Error = err
	end()
}

func succeed(res *Response, end EndFunc, result any) {
	res.Result = result
	res.Error = nil
	end()
}
