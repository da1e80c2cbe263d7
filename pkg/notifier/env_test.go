package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvUnsetReturnsNil(t *testing.T) {
	t.Setenv(EnvType, "")
	n, err := FromEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestFromEnvSignal(t *testing.T) {
	t.Setenv(EnvType, "signal")
	t.Setenv(EnvSignalPIDFile, "/tmp/does-not-need-to-exist.pid")
	n, err := FromEnv(nil)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.True(t, n.CanSend())
	assert.True(t, n.CanReceive())
}

func TestFromEnvSignalRequiresPIDFile(t *testing.T) {
	t.Setenv(EnvType, "signal")
	t.Setenv(EnvSignalPIDFile, "")
	_, err := FromEnv(nil)
	assert.Error(t, err)
}

func TestFromEnvAPI(t *testing.T) {
	t.Setenv(EnvType, "api")
	t.Setenv(EnvAPIPort, "19001")
	t.Setenv(EnvAPITargetURL, "http://127.0.0.1:19002")
	n, err := FromEnv(nil)
	require.NoError(t, err)
	require.NotNil(t, n)
	n.Close()
}

func TestFromEnvUnknownType(t *testing.T) {
	t.Setenv(EnvType, "carrier-pigeon")
	_, err := FromEnv(nil)
	assert.Error(t, err)
}

func TestFromEnvRedisRequiresAddr(t *testing.T) {
	t.Setenv(EnvType, "redis")
	t.Setenv(EnvRedisAddr, "")
	_, err := FromEnv(nil)
	assert.Error(t, err)
}
