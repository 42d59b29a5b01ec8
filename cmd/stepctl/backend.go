package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/stepchain/invoke"
	lambdainvoker "github.com/xraph/stepchain/invoke/lambda"
	sqsinvoker "github.com/xraph/stepchain/invoke/sqs"
	"github.com/xraph/stepchain/store"
	"github.com/xraph/stepchain/store/memory"
	"github.com/xraph/stepchain/store/postgres"
	redisstore "github.com/xraph/stepchain/store/redis"
)

const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendPostgres = "postgres"
	backendSQS      = "sqs"
	backendLambda   = "lambda"
)

// openStore connects to the delivery store named by --backend. The caller
// closes it.
func (g *globalFlags) openStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	switch g.backend {
	case backendMemory:
		return memory.New(), nil

	case backendRedis:
		opts, err := redis.ParseURL(g.redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		storeOpts := []redisstore.Option{redisstore.WithLogger(logger), redisstore.WithOwnedClient()}
		if g.redisPrefix != "" {
			storeOpts = append(storeOpts, redisstore.WithPrefix(g.redisPrefix))
		}
		return redisstore.New(redis.NewClient(opts), storeOpts...), nil

	case backendPostgres:
		if g.postgresDSN == "" {
			return nil, fmt.Errorf("--postgres-dsn is required for the %s backend", backendPostgres)
		}
		s, err := postgres.New(ctx, g.postgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("backend %q does not hold deliveries, use %s, %s or %s",
			g.backend, backendMemory, backendRedis, backendPostgres)
	}
}

// openInvoker returns an invoker for --backend. Store backends schedule
// deliveries; sqs and lambda call AWS directly. The returned close function
// is never nil.
func (g *globalFlags) openInvoker(ctx context.Context, logger *slog.Logger) (invoke.Invoker, func() error, error) {
	switch g.backend {
	case backendSQS:
		if g.queueURL == "" {
			return nil, nil, fmt.Errorf("--queue-url is required for the %s backend", backendSQS)
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		inv := sqsinvoker.New(awssqs.NewFromConfig(cfg), g.queueURL, sqsinvoker.WithLogger(logger))
		return inv, noClose, nil

	case backendLambda:
		inv, err := g.lambdaInvoker(ctx, logger)
		if err != nil {
			return nil, nil, err
		}
		return inv, noClose, nil

	default:
		s, err := g.openStore(ctx, logger)
		if err != nil {
			return nil, nil, err
		}
		return invoke.NewStoreInvoker(s, invoke.WithLogger(logger)), s.Close, nil
	}
}

func (g *globalFlags) lambdaInvoker(ctx context.Context, logger *slog.Logger) (*lambdainvoker.Invoker, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return lambdainvoker.New(awslambda.NewFromConfig(cfg),
		lambdainvoker.WithFunctionPrefix(g.functionPrefix),
		lambdainvoker.WithLogger(logger),
	), nil
}

func noClose() error { return nil }
