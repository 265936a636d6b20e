package ocap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermissionIsRoot(t *testing.T) {
	tests := []struct {
		granter string
		root    bool
	}{
		{RootGranter, true},
		{"user", true},
		{"some-domain", false},
		{"", false},
	}
	for _, test := range tests {
		t.Run(test.granter, func(t *testing.T) {
			p := Permission{Granter: test.granter}
			require.Equal(t, test.root, p.IsRoot())
		})
	}
}

func TestPermissionNaturalKey(t *testing.T) {
	p1 := Permission{Method: "eth_sign", Granter: "user"}
	p2 := Permission{Method: "eth_sign", Granter: "user", ID: "different-id"}
	p3 := Permission{Method: "eth_sign", Granter: "other-domain"}
	require.Equal(t, p1.naturalKey(), p2.naturalKey())
	require.NotEqual(t, p1.naturalKey(), p3.naturalKey())
}

func TestStaticCaveatSelectsLastMatch(t *testing.T) {
	p := Permission{
		Caveats: []Caveat{
			{Type: "filter", Value: "ignored"},
			{Type: CaveatTypeStatic, Value: "first"},
			{Type: "filter", Value: "ignored-too"},
			{Type: CaveatTypeStatic, Value: "second"},
		},
	}
	caveat, ok := p.staticCaveat()
	require.True(t, ok)
	require.Equal(t, "second", caveat.Value)
}

func TestStaticCaveatAbsent(t *testing.T) {
	p := Permission{Caveats: []Caveat{{Type: "filter", Value: "x"}}}
	_, ok := p.staticCaveat()
	require.False(t, ok)
}

func TestCloneStateIsDeep(t *testing.T) {
	original := EngineState{
		Domains: map[string]DomainEntry{
			"alice": {Permissions: []Permission{{Method: "eth_sign", Granter: "user"}}},
		},
		PermissionsRequests: []PermissionsRequest{{Origin: "alice"}},
	}
	clone := cloneState(original)

	clone.Domains["alice"].Permissions[0].Method = "mutated"
	clone.PermissionsRequests[0].Origin = "mutated"
	clone.Domains["bob"] = DomainEntry{}

	require.Equal(t, "eth_sign", original.Domains["alice"].Permissions[0].Method)
	require.Equal(t, "alice", original.PermissionsRequests[0].Origin)
	require.NotContains(t, original.Domains, "bob")
}
