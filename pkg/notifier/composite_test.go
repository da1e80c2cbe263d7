package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-runner/mcp-gateway/pkg/config"
)

type fakeNotifier struct {
	role      Role
	notified  []*config.Config
	notifyErr error
	watchCh   chan *config.Config
	closed    bool
}

func newFakeNotifier(role Role) *fakeNotifier {
	return &fakeNotifier{role: role, watchCh: make(chan *config.Config, 10)}
}

func (f *fakeNotifier) CanSend() bool    { return f.role.CanSend() }
func (f *fakeNotifier) CanReceive() bool { return f.role.CanReceive() }

func (f *fakeNotifier) Notify(cfg *config.Config) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notified = append(f.notified, cfg)
	return nil
}

func (f *fakeNotifier) Watch() (<-chan *config.Config, error) { return f.watchCh, nil }

func (f *fakeNotifier) Close() error {
	f.closed = true
	close(f.watchCh)
	return nil
}

func TestCompositeNotifySucceedsIfOneChildSucceeds(t *testing.T) {
	a := newFakeNotifier(RoleSender)
	a.notifyErr = assert.AnError
	b := newFakeNotifier(RoleSender)

	c := NewComposite(a, b)
	require.True(t, c.CanSend())
	require.NoError(t, c.Notify(&config.Config{Name: "x"}))
	assert.Len(t, b.notified, 1)
}

func TestCompositeNotifyFailsIfAllChildrenFail(t *testing.T) {
	a := newFakeNotifier(RoleSender)
	a.notifyErr = assert.AnError
	b := newFakeNotifier(RoleSender)
	b.notifyErr = assert.AnError

	c := NewComposite(a, b)
	err := c.Notify(&config.Config{Name: "x"})
	assert.Error(t, err)
}

func TestCompositeWatchForwardsFromEveryReceivingChild(t *testing.T) {
	a := newFakeNotifier(RoleReceiver)
	b := newFakeNotifier(RoleReceiver)
	sendOnly := newFakeNotifier(RoleSender)

	c := NewComposite(a, b, sendOnly)
	require.True(t, c.CanReceive())

	ch, err := c.Watch()
	require.NoError(t, err)

	a.watchCh <- &config.Config{Name: "from-a"}
	b.watchCh <- &config.Config{Name: "from-b"}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case cfg := <-ch:
			seen[cfg.Name] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for forwarded config")
		}
	}
	assert.True(t, seen["from-a"])
	assert.True(t, seen["from-b"])
}

func TestCompositeCloseClosesChildrenAndWatchers(t *testing.T) {
	a := newFakeNotifier(RoleBoth)
	c := NewComposite(a)

	ch, err := c.Watch()
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.True(t, a.closed)

	_, ok := <-ch
	assert.False(t, ok)
}
