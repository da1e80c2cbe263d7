package notifier

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePIDFileAndSignalRoundTrip(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "gateway.pid")
	require.NoError(t, WritePIDFile(pidFile))

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	n := NewSignalNotifier(pidFile, RoleBoth)
	defer n.Close()

	ch, err := n.Watch()
	require.NoError(t, err)

	require.NoError(t, n.Notify(nil))

	select {
	case cfg := <-ch:
		assert.Nil(t, cfg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SIGHUP-triggered reload")
	}
}

func TestSignalNotifierWrongRole(t *testing.T) {
	sendOnly := NewSignalNotifier("/nonexistent", RoleSender)
	_, err := sendOnly.Watch()
	assert.Error(t, err)

	recvOnly := NewSignalNotifier("/nonexistent", RoleReceiver)
	defer recvOnly.Close()
	err = recvOnly.Notify(nil)
	assert.Error(t, err)
}
