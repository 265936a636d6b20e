package ocap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutorMethodNotFound(t *testing.T) {
	// A permission for "eth_sign" survived a registry reload that dropped
	// the method (spec §4.E step 1: "can only arise if state was loaded
	// from a snapshot referencing a method no longer registered").
	s := newStore(EngineState{})
	s.setDomain("alice", DomainEntry{Permissions: []Permission{{Method: "eth_sign", Granter: RootGranter}}})
	reg := newRegistry(map[string]RestrictedMethod{})
	ex := newExecutor(reg, newResolver(s))

	res := &Response{}
	ended := false
	ex.handle(context.Background(), "alice", &Request{Method: "eth_sign"}, res, nil, func() { ended = true })

	require.True(t, ended)
	require.NotNil(t, res.Error)
	require.Equal(t, CodeMethodNotFound, res.Error.Code)
}

func TestExecutorUnauthorizedBeforeMethodNotFound(t *testing.T) {
	// A call to a method that is neither registered nor permissioned must
	// fail as UNAUTHORIZED, not METHOD_NOT_FOUND: the resolver is consulted
	// before the registry (spec §4.D step 3 / §4.E).
	s := newStore(EngineState{})
	reg := newRegistry(map[string]RestrictedMethod{})
	ex := newExecutor(reg, newResolver(s))

	res := &Response{}
	ended := false
	ex.handle(context.Background(), "alice", &Request{Method: "eth_sign"}, res, nil, func() { ended = true })

	require.True(t, ended)
	require.NotNil(t, res.Error)
	require.Equal(t, CodeUnauthorized, res.Error.Code)
}

func TestExecutorUnauthorizedWithoutPermission(t *testing.T) {
	s := newStore(EngineState{})
	reg := newRegistry(map[string]RestrictedMethod{"eth_sign": {Handler: func(ctx context.Context, domain string, req *Request, res *Response, next NextFunc, end EndFunc) {
		end()
	}}})
	ex := newExecutor(reg, newResolver(s))

	res := &Response{}
	ended := false
	ex.handle(context.Background(), "alice", &Request{Method: "eth_sign"}, res, nil, func() { ended = true })

	require.True(t, ended)
	require.NotNil(t, res.Error)
	require.Equal(t, CodeUnauthorized, res.Error.Code)
}

func TestExecutorStaticCaveatShortCircuitsHandler(t *testing.T) {
	s := newStore(EngineState{})
	s.setDomain("alice", DomainEntry{Permissions: []Permission{{
		Method:  "eth_sign",
		Granter: RootGranter,
		Caveats: []Caveat{{Type: CaveatTypeStatic, Value: "0xdead"}},
	}}})
	handlerCalled := false
	reg := newRegistry(map[string]RestrictedMethod{"eth_sign": {Handler: func(ctx context.Context, domain string, req *Request, res *Response, next NextFunc, end EndFunc) {
		handlerCalled = true
		end()
	}}})
	ex := newExecutor(reg, newResolver(s))

	res := &Response{}
	ended := false
	ex.handle(context.Background(), "alice", &Request{Method: "eth_sign"}, res, nil, func() { ended = true })

	require.True(t, ended)
	require.False(t, handlerCalled)
	require.Nil(t, res.Error)
	require.Equal(t, "0xdead", res.Result)
}

func TestExecutorInvokesHandlerWhenAuthorized(t *testing.T) {
	s := newStore(EngineState{})
	s.setDomain("alice", DomainEntry{Permissions: []Permission{{Method: "eth_sign", Granter: RootGranter}}})
	reg := newRegistry(map[string]RestrictedMethod{"eth_sign": {Handler: func(ctx context.Context, domain string, req *Request, res *Response, next NextFunc, end EndFunc) {
		res.Result = "signed"
		end()
	}}})
	ex := newExecutor(reg, newResolver(s))

	res := &Response{}
	ended := false
	ex.handle(context.Background(), "alice", &Request{Method: "eth_sign"}, res, nil, func() { ended = true })

	require.True(t, ended)
	require.Nil(t, res.Error)
	require.Equal(t, "signed", res.Result)
}
