package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/git-hulk/go-redlock/internal"
	"github.com/git-hulk/go-redlock/metrics"
	"github.com/git-hulk/go-redlock/redlock"
	"github.com/git-hulk/go-redlock/redlock/node"
	"github.com/git-hulk/go-redlock/redlock/node/store"
)

const Version = "0.1.0"

var (
	manager  *redlock.Manager
	nodes    []node.Node
	provider *sdktrace.TracerProvider

	rootCmd = &cobra.Command{
		Use:   "redlock",
		Short: "Distributed lock over independent nodes",
		Long: fmt.Sprintf(`redlock (v%s)

Acquire and release locks on a majority of independent Redis, etcd or
Kubernetes nodes. Flags can be set through environment variables named
REDLOCK_<flag> (e.g. REDLOCK_RETRY_COUNT=5), .env files are loaded too.`, Version),
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of redlock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("redlock v%s\n", Version)
		},
	}

	acquireCmd = &cobra.Command{
		Use:               "acquire [resource]",
		Short:             "Acquire a lock and print its token",
		Long:              "Acquire a lock and print its token, release it later with the release command.",
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: setupManager,
		PersistentPostRun: teardown,
		RunE:              runAcquire,
	}

	releaseCmd = &cobra.Command{
		Use:               "release [resource] [token]",
		Short:             "Release a lock by its token",
		Args:              cobra.ExactArgs(2),
		PersistentPreRunE: setupManager,
		PersistentPostRun: teardown,
		RunE:              runRelease,
	}

	runCmd = &cobra.Command{
		Use:               "run [resource] -- [command...]",
		Short:             "Run a command while holding a lock",
		Long:              "Run a command while holding a lock. The command is killed when the lock validity ends.",
		Args:              cobra.MinimumNArgs(2),
		PersistentPreRunE: setupManager,
		PersistentPostRun: teardown,
		RunE:              runWithLock,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(acquireCmd, releaseCmd, runCmd, versionCmd)
	setupNodeFlags(rootCmd)

	acquireCmd.Flags().Duration("ttl", 30*time.Second, "Lock ttl")
	runCmd.Flags().Duration("ttl", 30*time.Second, "Lock ttl")
	runCmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address while the command runs")
}

func setupManager(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}

	opts := managerOptions()
	if viper.GetBool("trace") {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		provider = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		opts.TracerProvider = provider
	}

	var err error
	nodes, err = dialNodes(cmd.Context())
	if err != nil {
		return err
	}
	manager, err = redlock.New(nodes, opts)
	return err
}

func teardown(cmd *cobra.Command, _ []string) {
	if err := store.CloseAll(nodes); err != nil {
		internal.GetLogger().Printf("Failed to close nodes, err: %v", err)
	}
	if provider != nil {
		_ = provider.Shutdown(context.WithoutCancel(cmd.Context()))
	}
}

func runAcquire(cmd *cobra.Command, args []string) error {
	lock, err := manager.Acquire(cmd.Context(), args[0], viper.GetDuration("ttl"))
	if err != nil {
		return err
	}
	fmt.Printf("token: %s\nvalidity: %s\n", lock.Token(), lock.Validity())
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	if err := manager.ReleaseToken(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("released")
	return nil
}

func runWithLock(cmd *cobra.Command, args []string) error {
	if addr := viper.GetString("metrics-addr"); addr != "" {
		reg := metrics.NewRegistry()
		metrics.Register(reg)
		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				internal.GetLogger().Printf("Failed to serve metrics on %s, err: %v", addr, err)
			}
		}()
		defer srv.Close()
	}

	return manager.WithLock(cmd.Context(), args[0], viper.GetDuration("ttl"), func(ctx context.Context) error {
		c := exec.CommandContext(ctx, args[1], args[2:]...)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	})
}

// Execute runs the root command, it is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
