package ocap

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestApprovalCoordinator(s *store, approve Approver) *approvalCoordinator {
	g := newTestGrantRevoke(s, &fixedIDs{next: []string{"root-1", "root-2", "root-3"}})
	return newApprovalCoordinator(s, g, approve, &fixedIDs{next: []string{"req-1", "req-2", "req-3"}}, slog.Default())
}

func waitForEnd(t *testing.T, end <-chan struct{}) {
	t.Helper()
	select {
	case <-end:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for end() to be called")
	}
}

func TestHandleRequestPermissionsGrantsOnApproval(t *testing.T) {
	s := newStore(EngineState{})
	release := make(chan struct{})
	approve := func(ctx context.Context, req PermissionsRequest) (map[string]PermissionOptions, error) {
		<-release
		return map[string]PermissionOptions{"eth_sign": {}}, nil
	}
	a := newTestApprovalCoordinator(s, approve)

	res := &Response{}
	done := make(chan struct{})
	end := func() { close(done) }

	a.handleRequestPermissions(context.Background(), "alice", map[string]PermissionOptions{"eth_sign": {}}, nil, res, end)

	// The ticket must be visible as pending before the approver resolves.
	require.Len(t, s.snapshot().PermissionsRequests, 1)
	close(release)

	waitForEnd(t, done)
	require.Nil(t, res.Error)
	require.Empty(t, s.snapshot().PermissionsRequests)

	perms := s.getPermissions("alice")
	require.Len(t, perms, 1)
	require.True(t, perms[0].IsRoot())
	require.Equal(t, "eth_sign", perms[0].Method)
}

func TestHandleRequestPermissionsRejectedOnEmptyApproval(t *testing.T) {
	s := newStore(EngineState{})
	approve := func(ctx context.Context, req PermissionsRequest) (map[string]PermissionOptions, error) {
		return map[string]PermissionOptions{}, nil
	}
	a := newTestApprovalCoordinator(s, approve)

	res := &Response{}
	done := make(chan struct{})
	end := func() { close(done) }

	a.handleRequestPermissions(context.Background(), "alice", map[string]PermissionOptions{"eth_sign": {}}, nil, res, end)
	waitForEnd(t, done)

	require.NotNil(t, res.Error)
	require.Equal(t, CodeUserRejected, res.Error.Code)
	require.Empty(t, s.snapshot().PermissionsRequests)
	require.Empty(t, s.getPermissions("alice"))
}

func TestHandleRequestPermissionsRemovesTicketOnApproverError(t *testing.T) {
	s := newStore(EngineState{})
	approve := func(ctx context.Context, req PermissionsRequest) (map[string]PermissionOptions, error) {
		return nil, errors.New("user closed the approval dialog")
	}
	a := newTestApprovalCoordinator(s, approve)

	res := &Response{}
	done := make(chan struct{})
	end := func() { close(done) }

	a.handleRequestPermissions(context.Background(), "alice", map[string]PermissionOptions{"eth_sign": {}}, nil, res, end)
	waitForEnd(t, done)

	require.NotNil(t, res.Error)
	require.Empty(t, s.snapshot().PermissionsRequests)
}

func TestHandleRequestPermissionsFillsMetadataDefaults(t *testing.T) {
	s := newStore(EngineState{})
	var captured PermissionsRequest
	approve := func(ctx context.Context, req PermissionsRequest) (map[string]PermissionOptions, error) {
		captured = req
		return map[string]PermissionOptions{}, nil
	}
	a := newTestApprovalCoordinator(s, approve)

	res := &Response{}
	done := make(chan struct{})
	end := func() { close(done) }
	a.handleRequestPermissions(context.Background(), "alice", map[string]PermissionOptions{}, nil, res, end)
	waitForEnd(t, done)

	require.Equal(t, "alice", captured.Metadata.Origin)
	require.NotEmpty(t, captured.Metadata.ID)
}
