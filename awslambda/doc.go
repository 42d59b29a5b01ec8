// Package awslambda runs a step as an AWS Lambda function.
//
// Handler serves direct asynchronous invocations, whose payload is the event
// itself. SQSHandler serves a Lambda subscribed to the wait queue: each record
// carries a target step and payload, and records addressed to other steps are
// skipped so several steps can share one queue.
//
//	r := runner.New(cfg, h, lambdainvoker.New(lambdaClient))
//	awslambda.Start(r)
package awslambda
