package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/config"
)

func TestUserFilterEscapesValue(t *testing.T) {
	got := userFilter("(|(mail=%[1]s)(uid=%[1]s))", "ana*)(uid=*")
	assert.Equal(t, `(|(mail=ana\2a\29\28uid=\2a)(uid=ana\2a\29\28uid=\2a))`, got)
}

func TestSimulatedDirectoryAlwaysSucceeds(t *testing.T) {
	dir := SimulatedDirectory{}
	require.NoError(t, dir.ResetPassword(context.Background(), DirectorySubject{Email: "a@example.com"}))
	require.NoError(t, dir.UnlockAccount(context.Background(), DirectorySubject{Username: "a"}))
}

func TestLDAPDirectoryRequiresSubject(t *testing.T) {
	dir := NewLDAPDirectory(config.LDAPConfig{URL: "ldap://127.0.0.1:1", TimeoutSeconds: 1})
	err := dir.ResetPassword(context.Background(), DirectorySubject{})
	require.Error(t, err)
}

func TestLDAPDirectoryHonoursCancelledContext(t *testing.T) {
	dir := NewLDAPDirectory(config.LDAPConfig{URL: "ldap://127.0.0.1:1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, dir.UnlockAccount(ctx, DirectorySubject{Email: "a@example.com"}), context.Canceled)
}
