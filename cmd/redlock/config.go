package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/git-hulk/go-redlock/redlock"
	"github.com/git-hulk/go-redlock/redlock/node"
	"github.com/git-hulk/go-redlock/redlock/node/store"
)

const (
	backendRedis     = "redis"
	backendEtcd      = "etcd"
	backendK8s       = "k8s"
	backendAerospike = "aerospike"
)

// initConfig loads .env files and binds REDLOCK_* environment variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("redlock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setupNodeFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("nodes", "redis://localhost:6379", "Comma-separated node addresses: redis URLs, etcd endpoints, kubeconfig paths or aerospike host:port")
	flags.String("backend", backendRedis, "Node backend (redis, etcd, k8s, aerospike)")
	flags.String("namespace", "default", "Namespace of the lease objects (k8s) or records (aerospike)")
	flags.Int("retry-count", redlock.DefaultRetryCount, "Retries after the first attempt, -1 disables retries")
	flags.Duration("retry-delay", redlock.DefaultRetryDelay, "Upper bound of the random delay between attempts")
	flags.Float64("drift-factor", redlock.DefaultDriftFactor, "Clock drift allowance as a fraction of the ttl")
	flags.Duration("drift-floor", redlock.DefaultDriftFloor, "Clock drift allowance added to every lock")
	flags.Duration("node-timeout", redlock.DefaultNodeTimeout, "Timeout of a single node call")
	flags.Duration("dial-timeout", 5*time.Second, "Timeout for connecting to the nodes")
	flags.Bool("trace", false, "Print trace spans to stdout")
}

func bindFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func dialNodes(ctx context.Context) ([]node.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, viper.GetDuration("dial-timeout"))
	defer cancel()

	addrs := splitList(viper.GetString("nodes"))
	switch backend := viper.GetString("backend"); backend {
	case backendRedis:
		return store.DialRedis(ctx, addrs)
	case backendEtcd:
		return store.DialEtcd(ctx, addrs)
	case backendK8s:
		return store.DialK8s(ctx, addrs, viper.GetString("namespace"))
	case backendAerospike:
		return store.DialAerospike(ctx, addrs, viper.GetString("namespace"))
	default:
		return nil, fmt.Errorf("unknown backend %q (expected one of: redis, etcd, k8s, aerospike)", backend)
	}
}

func managerOptions() *redlock.Options {
	return &redlock.Options{
		RetryCount:  viper.GetInt("retry-count"),
		RetryDelay:  viper.GetDuration("retry-delay"),
		DriftFactor: viper.GetFloat64("drift-factor"),
		DriftFloor:  viper.GetDuration("drift-floor"),
		NodeTimeout: viper.GetDuration("node-timeout"),
	}
}
