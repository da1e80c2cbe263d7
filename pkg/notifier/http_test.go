package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-runner/mcp-gateway/pkg/config"
)

func TestHTTPNotifierNotifyAndWatch(t *testing.T) {
	receiver := NewHTTPNotifier(18391, "", RoleReceiver)
	defer receiver.Close()

	ch, err := receiver.Watch()
	require.NoError(t, err)

	sender := NewHTTPNotifier(0, "http://127.0.0.1:18391", RoleSender)
	defer sender.Close()

	require.Eventually(t, func() bool {
		return sender.Notify(&config.Config{Name: "pushed"}) == nil
	}, 2*time.Second, 20*time.Millisecond)

	select {
	case cfg := <-ch:
		require.NotNil(t, cfg)
		assert.Equal(t, "pushed", cfg.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload notification")
	}
}

func TestHTTPNotifierNotifyNilIsReloadSignal(t *testing.T) {
	receiver := NewHTTPNotifier(18392, "", RoleReceiver)
	defer receiver.Close()

	ch, err := receiver.Watch()
	require.NoError(t, err)

	sender := NewHTTPNotifier(0, "http://127.0.0.1:18392", RoleSender)
	defer sender.Close()

	require.Eventually(t, func() bool {
		return sender.Notify(nil) == nil
	}, 2*time.Second, 20*time.Millisecond)

	select {
	case cfg := <-ch:
		assert.Nil(t, cfg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload signal")
	}
}

func TestHTTPNotifierWrongRole(t *testing.T) {
	sendOnly := NewHTTPNotifier(0, "http://127.0.0.1:1", RoleSender)
	_, err := sendOnly.Watch()
	assert.Error(t, err)

	recvOnly := NewHTTPNotifier(18393, "", RoleReceiver)
	defer recvOnly.Close()
	err = recvOnly.Notify(nil)
	assert.Error(t, err)
}
