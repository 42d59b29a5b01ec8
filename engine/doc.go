// Package engine wires the stepchain subsystems together and provides the
// application-level API for registering steps and triggering pipelines.
//
// # Building an Engine
//
//	eng, err := engine.New(
//	    engine.WithStore(redisstore.New(client)),
//	    engine.WithConcurrency(8),
//	    engine.WithExtension(myExtension),
//	    engine.WithStepLimits(queue.Config{Step: "wait_created", RateLimit: 5}),
//	)
//
// # Registering Steps
//
//	eng.Register(step.NewDefinition("create_volume", createVolume,
//	    step.WithNext("wait_created"),
//	))
//	eng.Register(step.NewDefinition("wait_created", waitCreated,
//	    step.WithNext("attach_volume"),
//	    step.WithMaxIterations(10),
//	    step.WithRepeatDelay(30*time.Second),
//	))
//
// # Running
//
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(context.Background())
//
//	eng.Trigger(ctx, "create_volume", event.Event{"size_gb": 100})
//
// Without a store the engine only hosts runners; a Lambda function calls
// [Engine.Execute] (or the awslambda package) for each trigger and the
// configured invoker hands the next step to AWS.
//
// # Options
//
//   - [WithStore] - delivery store and self-hosted worker pool
//   - [WithInvoker] - external invoker (Lambda, SQS, Split)
//   - [WithExtension] - register a lifecycle extension
//   - [WithMiddleware] - add a middleware to every runner
//   - [WithRepeatStrategy] - SleepThenInvoke or DelayedTrigger
//   - [WithStepLimits] - per-step rate limits and concurrency
//   - [WithTracerProvider], [WithMeterProvider] - OpenTelemetry providers
package engine
