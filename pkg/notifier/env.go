package notifier

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Environment variables recognized when building a Notifier from the
// process environment (spec §6).
const (
	EnvType             = "NOTIFIER_TYPE"
	EnvRole             = "NOTIFIER_ROLE"
	EnvRedisAddr        = "NOTIFIER_REDIS_ADDR"
	EnvRedisClusterType = "NOTIFIER_REDIS_CLUSTER_TYPE"
	EnvRedisTopic       = "NOTIFIER_REDIS_TOPIC"
	EnvAPIPort          = "NOTIFIER_API_PORT"
	EnvAPITargetURL     = "NOTIFIER_API_TARGET_URL"
	EnvSignalPIDFile    = "NOTIFIER_SIGNAL_PID_FILE"
)

// FromEnv builds a single Notifier backend from the process
// environment. Returns nil, nil when NOTIFIER_TYPE is unset (no
// fan-out configured — single-instance deployment).
func FromEnv(redisClient *redis.Client) (Notifier, error) {
	typ := os.Getenv(EnvType)
	if typ == "" {
		return nil, nil
	}
	role := Role(os.Getenv(EnvRole))
	if role == "" {
		role = RoleBoth
	}

	switch typ {
	case "redis":
		topic := os.Getenv(EnvRedisTopic)
		if topic == "" {
			topic = "mcp_config_updates"
		}
		if redisClient == nil {
			addr := os.Getenv(EnvRedisAddr)
			if addr == "" {
				return nil, fmt.Errorf("notifier: %s is required for type=redis", EnvRedisAddr)
			}
			var err error
			redisClient, err = newRedisClient(addr, os.Getenv(EnvRedisClusterType))
			if err != nil {
				return nil, err
			}
		}
		return NewRedisNotifier(redisClient, topic, role), nil

	case "api":
		port, _ := strconv.Atoi(os.Getenv(EnvAPIPort))
		if port == 0 {
			port = 9999
		}
		return NewHTTPNotifier(port, os.Getenv(EnvAPITargetURL), role), nil

	case "signal":
		pidFile := os.Getenv(EnvSignalPIDFile)
		if pidFile == "" {
			return nil, fmt.Errorf("notifier: %s is required for type=signal", EnvSignalPIDFile)
		}
		return NewSignalNotifier(pidFile, role), nil

	default:
		return nil, fmt.Errorf("notifier: unknown %s %q", EnvType, typ)
	}
}

// newRedisClient builds a client for single or sentinel deployments;
// addr is `;`- or `,`-separated for sentinel. Cluster-mode addressing
// is not wired: NOTIFIER_REDIS_CLUSTER_TYPE=cluster falls back to
// treating the first address in addr as a single endpoint.
func newRedisClient(addr, clusterType string) (*redis.Client, error) {
	addrs := splitAddrs(addr)
	if clusterType != "sentinel" {
		return redis.NewClient(&redis.Options{Addr: addrs[0]}), nil
	}
	if len(addrs) < 2 {
		return nil, fmt.Errorf("notifier: sentinel mode requires master name and sentinel addrs in %s", EnvRedisAddr)
	}
	return redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    addrs[0],
		SentinelAddrs: addrs[1:],
	}), nil
}

func splitAddrs(addr string) []string {
	return strings.FieldsFunc(addr, func(r rune) bool { return r == ';' || r == ',' })
}
