package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/receiptq/config"
)

// RedisClientFactory returns a fresh, unconnected client per call so the broker
// can redial after losing its connection.
type RedisClientFactory func() redis.UniversalClient

// NewRedisClientFactory validates the Redis settings and returns a factory along
// with a credential-free description of the target for logs.
func NewRedisClientFactory(cfg DatabaseConfig) (RedisClientFactory, string, error) {
	rc, timeout := cfg.RedisConfig, cfg.DialTimeout

	var (
		factory RedisClientFactory
		target  string
		err     error
	)
	switch {
	case rc.UseCluster:
		factory, target, err = clusterFactory(rc, timeout)
	case rc.UseSentinel:
		factory, target, err = sentinelFactory(rc, timeout)
	default:
		factory, target, err = singleNodeFactory(rc, timeout)
	}
	if err != nil {
		return nil, "", err
	}
	return factory, redactAddr(target), nil
}

func clusterFactory(rc config.RedisConfig, timeout time.Duration) (RedisClientFactory, string, error) {
	opts := &redis.ClusterOptions{
		Addrs:       trimmedNonEmpty(rc.ClusterNodes),
		Password:    rc.Password,
		DialTimeout: timeout,
	}
	// Without explicit nodes, REDIS_URI names a single seed node.
	if len(opts.Addrs) == 0 {
		if err := seedClusterFromURI(opts, rc.URI); err != nil {
			return nil, "", err
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, "", errors.New("redis cluster configuration requires at least one address")
	}

	return func() redis.UniversalClient {
		o := *opts
		return redis.NewClusterClient(&o)
	}, "cluster:" + strings.Join(opts.Addrs, ","), nil
}

func seedClusterFromURI(opts *redis.ClusterOptions, uri string) error {
	uri = strings.TrimSpace(uri)
	switch {
	case uri == "":
		return nil
	case !isRedisURL(uri):
		opts.Addrs = []string{uri}
		return nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis cluster url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	opts.TLSConfig = parsed.TLSConfig
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	return nil
}

func sentinelFactory(rc config.RedisConfig, timeout time.Duration) (RedisClientFactory, string, error) {
	nodes := trimmedNonEmpty(rc.SentinelNodes)
	if len(nodes) == 0 {
		return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
	}
	return func() redis.UniversalClient {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       rc.SentinelMasterName,
			SentinelAddrs:    nodes,
			Password:         rc.Password,
			SentinelPassword: rc.SentinelPassword,
			DialTimeout:      timeout,
		})
	}, "sentinel:" + rc.SentinelMasterName, nil
}

// singleNodeFactory accepts either a redis:// or rediss:// URL or a bare host:port.
func singleNodeFactory(rc config.RedisConfig, timeout time.Duration) (RedisClientFactory, string, error) {
	uri := strings.TrimSpace(rc.URI)
	if uri == "" {
		return nil, "", errors.New("redis direct configuration requires a URI")
	}

	opts := &redis.Options{Addr: uri, Password: rc.Password}
	if isRedisURL(uri) {
		parsed, err := redis.ParseURL(uri)
		if err != nil {
			return nil, "", fmt.Errorf("parse redis url: %w", err)
		}
		if parsed.Password == "" {
			parsed.Password = rc.Password
		}
		opts = parsed
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
	}

	return func() redis.UniversalClient {
		o := *opts
		return redis.NewClient(&o)
	}, opts.Addr, nil
}

// redactAddr strips credentials from a URL or user@host target.
func redactAddr(target string) string {
	if u, err := url.Parse(target); err == nil && u.User != nil {
		u.User = url.User("*")
		return u.Redacted()
	}
	if at := strings.LastIndex(target, "@"); at >= 0 {
		return target[at+1:]
	}
	return target
}

func trimmedNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isRedisURL(v string) bool {
	return strings.HasPrefix(v, "redis://") || strings.HasPrefix(v, "rediss://")
}
