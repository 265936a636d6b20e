package ocap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func autoApproveEverything(ctx context.Context, req PermissionsRequest) (map[string]PermissionOptions, error) {
	approved := make(map[string]PermissionOptions, len(req.Options))
	for method, opts := range req.Options {
		approved[method] = opts
	}
	return approved, nil
}

func TestNewRequiresApprove(t *testing.T) {
	_, err := New(Config{
		RestrictedMethods: map[string]RestrictedMethod{"eth_sign": {}},
	})
	require.Error(t, err)
}

func TestNewRequiresRestrictedMethods(t *testing.T) {
	_, err := New(Config{Approve: autoApproveEverything})
	require.Error(t, err)
}

func TestNewAggregatesMultipleErrors(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Approve")
	require.Contains(t, err.Error(), "RestrictedMethods")
}

func TestEngineEndToEndRequestGrantAndCall(t *testing.T) {
	var handlerResult any
	engine, err := New(Config{
		SafeMethods: []string{"ping"},
		RestrictedMethods: map[string]RestrictedMethod{
			"eth_sign": {Handler: func(ctx context.Context, domain string, req *Request, res *Response, next NextFunc, end EndFunc) {
				handlerResult = "signed:" + domain
				res.Result = handlerResult
				end()
			}},
		},
		MethodPrefix: "wallet_",
		Approve:      autoApproveEverything,
	})
	require.NoError(t, err)

	denied := engine.Handle(context.Background(), "alice", &Request{Method: "eth_sign"})
	require.NotNil(t, denied.Error)
	require.Equal(t, CodeUnauthorized, denied.Error.Code)

	granted := engine.Handle(context.Background(), "alice", &Request{
		Method: "wallet_requestPermissions",
		Params: []any{map[string]PermissionOptions{"eth_sign": {}}},
	})
	require.Nil(t, granted.Error)

	allowed := engine.Handle(context.Background(), "alice", &Request{Method: "eth_sign"})
	require.Nil(t, allowed.Error)
	require.Equal(t, "signed:alice", allowed.Result)
	require.Equal(t, "signed:alice", handlerResult)
}

func TestEngineGetPermissionsReturnsSnapshot(t *testing.T) {
	engine, err := New(Config{
		RestrictedMethods: map[string]RestrictedMethod{"eth_sign": {}},
		MethodPrefix:      "wallet_",
		Approve:           autoApproveEverything,
		InitState: EngineState{
			Domains: map[string]DomainEntry{
				"alice": {Permissions: []Permission{{Method: "eth_sign", Granter: RootGranter}}},
			},
		},
	})
	require.NoError(t, err)

	res := engine.Handle(context.Background(), "alice", &Request{Method: "wallet_getPermissions"})
	require.Nil(t, res.Error)
	state, ok := res.Result.(EngineState)
	require.True(t, ok)
	require.Contains(t, state.Domains, "alice")
}

func TestEngineGrantAndRevokeBetweenPeers(t *testing.T) {
	engine, err := New(Config{
		RestrictedMethods: map[string]RestrictedMethod{"eth_sign": {Handler: func(ctx context.Context, domain string, req *Request, res *Response, next NextFunc, end EndFunc) {
			end()
		}}},
		MethodPrefix: "wallet_",
		Approve:      autoApproveEverything,
		InitState: EngineState{
			Domains: map[string]DomainEntry{
				"alice": {Permissions: []Permission{{Method: "eth_sign", Granter: RootGranter}}},
			},
		},
	})
	require.NoError(t, err)

	grantRes := engine.Handle(context.Background(), "alice", &Request{
		Method: "wallet_grantPermissions",
		Params: []any{"bob", []RequestedPermission{{Method: "eth_sign"}}},
	})
	require.Nil(t, grantRes.Error)

	bobCall := engine.Handle(context.Background(), "bob", &Request{Method: "eth_sign"})
	require.Nil(t, bobCall.Error)

	revokeRes := engine.Handle(context.Background(), "alice", &Request{
		Method: "wallet_revokePermissions",
		Params: []any{"bob", []RevokeTarget{RevokeTargetFromMethod("eth_sign")}},
	})
	require.Nil(t, revokeRes.Error)

	bobCallAgain := engine.Handle(context.Background(), "bob", &Request{Method: "eth_sign"})
	require.NotNil(t, bobCallAgain.Error)
	require.Equal(t, CodeUnauthorized, bobCallAgain.Error.Code)
}
