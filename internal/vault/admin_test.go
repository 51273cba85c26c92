package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAdminSink struct {
	ownerChanges  [][2]string
	oracleUpdates []string
}

func (s *recordingAdminSink) OwnerChanged(ctx context.Context, oldOwner, newOwner string) {
	s.ownerChanges = append(s.ownerChanges, [2]string{oldOwner, newOwner})
}

func (s *recordingAdminSink) OracleUpdated(ctx context.Context, address string) {
	s.oracleUpdates = append(s.oracleUpdates, address)
}

func TestChangeOwner(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject non-owner callers", func(t *testing.T) {
		r := NewAdminRegistry("alice", "http://oracle", nil)

		err := r.ChangeOwner(ctx, "mallory", "mallory")

		var authErr *NotAuthorizedError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "mallory", authErr.Caller)
		assert.Equal(t, "alice", r.Owner())
	})

	t.Run("should reassign and use the new owner afterwards", func(t *testing.T) {
		sink := &recordingAdminSink{}
		r := NewAdminRegistry("alice", "http://oracle", sink)

		require.NoError(t, r.ChangeOwner(ctx, "alice", "bob"))
		assert.Equal(t, "bob", r.Owner())

		// The old owner is no longer authorized.
		var authErr *NotAuthorizedError
		assert.ErrorAs(t, r.ChangeOwner(ctx, "alice", "alice"), &authErr)

		// The new owner is.
		require.NoError(t, r.ChangeOwner(ctx, "bob", "carol"))
		assert.Equal(t, "carol", r.Owner())

		require.Len(t, sink.ownerChanges, 2)
		assert.Equal(t, [2]string{"alice", "bob"}, sink.ownerChanges[0])
	})
}

func TestUpdateOracleAddress(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject non-owner callers", func(t *testing.T) {
		r := NewAdminRegistry("alice", "http://oracle", nil)

		var authErr *NotAuthorizedError
		assert.ErrorAs(t, r.UpdateOracleAddress(ctx, "bob", "http://evil"), &authErr)
		assert.Equal(t, "http://oracle", r.OracleAddress())
	})

	t.Run("should repoint the oracle for the owner", func(t *testing.T) {
		sink := &recordingAdminSink{}
		r := NewAdminRegistry("alice", "http://oracle", sink)

		require.NoError(t, r.UpdateOracleAddress(ctx, "alice", "http://feed2"))
		assert.Equal(t, "http://feed2", r.OracleAddress())
		require.Len(t, sink.oracleUpdates, 1)
		assert.Equal(t, "http://feed2", sink.oracleUpdates[0])
	})
}
