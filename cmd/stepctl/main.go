// Command stepctl operates stepchain pipelines: it triggers steps by hand,
// inspects and cancels scheduled deliveries, validates pipeline files and
// runs a delivery relay that forwards due deliveries to Lambda functions.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are the connection settings shared by every subcommand.
type globalFlags struct {
	backend        string
	redisURL       string
	redisPrefix    string
	postgresDSN    string
	queueURL       string
	functionPrefix string
	logLevel       string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "stepctl",
		Short: "Operate stepchain pipelines",
		Long: `stepctl triggers pipeline steps, inspects scheduled deliveries and
relays due deliveries to the functions hosting each step.

Connection settings default to the STEPCHAIN_* environment variables.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.backend, "backend", envOr("STEPCHAIN_BACKEND", backendMemory),
		"delivery backend: memory, redis, postgres, sqs or lambda")
	pf.StringVar(&g.redisURL, "redis-url", envOr("STEPCHAIN_REDIS_URL", "redis://localhost:6379/0"), "redis connection URL")
	pf.StringVar(&g.redisPrefix, "redis-prefix", envOr("STEPCHAIN_REDIS_PREFIX", ""), "redis key prefix")
	pf.StringVar(&g.postgresDSN, "postgres-dsn", os.Getenv("STEPCHAIN_POSTGRES_DSN"), "postgres connection string")
	pf.StringVar(&g.queueURL, "queue-url", os.Getenv("STEPCHAIN_QUEUE_URL"), "SQS wait queue URL")
	pf.StringVar(&g.functionPrefix, "function-prefix", os.Getenv("STEPCHAIN_FUNCTION_PREFIX"),
		"prefix prepended to step names to form Lambda function names")
	pf.StringVar(&g.logLevel, "log-level", envOr("STEPCHAIN_LOG_LEVEL", "info"), "log level: debug, info, warn or error")

	root.AddCommand(invokeCmd(g))
	root.AddCommand(pendingCmd(g))
	root.AddCommand(cancelCmd(g))
	root.AddCommand(validateCmd())
	root.AddCommand(runCmd(g))
	return root
}

func (g *globalFlags) logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
