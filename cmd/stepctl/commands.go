package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/stepchain"
	audithook "github.com/xraph/stepchain/audit_hook"
	"github.com/xraph/stepchain/engine"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/id"
	"github.com/xraph/stepchain/invoke"
	"github.com/xraph/stepchain/step"
)

// ─── invoke ───────────────────────────────────────────────────────────────────

func invokeCmd(g *globalFlags) *cobra.Command {
	var (
		payload string
		delay   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "invoke <step>",
		Short: "Trigger a step with a payload",
		Long: `Trigger a step with a payload, immediately or after --delay.

Use it to resume a pipeline from the last payload a step received.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evt, err := parsePayload(payload)
			if err != nil {
				return err
			}
			if delay < 0 {
				return stepchain.NewConfigError(args[0], stepchain.ErrNegativeDelay)
			}

			logger := g.logger()
			inv, closeFn, err := g.openInvoker(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer closeFn()

			return triggerStep(cmd.Context(), cmd.OutOrStdout(), inv, args[0], evt, delay)
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "{}", "event payload as a JSON object")
	cmd.Flags().DurationVar(&delay, "delay", 0, "wait before the step runs")
	return cmd
}

// triggerStep hands evt to inv. Store invokers report the scheduled delivery.
func triggerStep(ctx context.Context, w io.Writer, inv invoke.Invoker, name string, evt event.Event, delay time.Duration) error {
	if si, ok := inv.(*invoke.StoreInvoker); ok {
		d, err := si.Schedule(ctx, name, evt, delay)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "scheduled %s for %s at %s\n", d.ID, d.Step, d.RunAt.Format(time.RFC3339))
		return nil
	}

	var err error
	if delay > 0 {
		err = inv.InvokeDelayed(ctx, name, evt, delay)
	} else {
		err = inv.InvokeAsync(ctx, name, evt)
	}
	if err != nil {
		return &stepchain.InvocationError{Target: name, Delay: delay, Err: err}
	}
	fmt.Fprintf(w, "invoked %s\n", name)
	return nil
}

func parsePayload(s string) (event.Event, error) {
	evt, err := event.JSONCodec{}.Decode([]byte(s))
	if err != nil {
		return nil, &stepchain.SerializationError{Err: fmt.Errorf("--payload: %w", err)}
	}
	if _, err := evt.IterationCount(); err != nil {
		return nil, &stepchain.SerializationError{Err: fmt.Errorf("--payload: %w", err)}
	}
	return evt, nil
}

// ─── pending ──────────────────────────────────────────────────────────────────

func pendingCmd(g *globalFlags) *cobra.Command {
	var (
		stepName string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List scheduled deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.openStore(cmd.Context(), g.logger())
			if err != nil {
				return err
			}
			defer s.Close()

			ds, err := s.Pending(cmd.Context(), step.ListOpts{Step: stepName, Limit: limit})
			if err != nil {
				return err
			}
			return writeDeliveries(cmd.OutOrStdout(), ds)
		},
	}

	cmd.Flags().StringVar(&stepName, "step", "", "only list deliveries for this step")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of deliveries to list (0 for all)")
	return cmd
}

func writeDeliveries(w io.Writer, ds []*step.Delivery) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTEP\tRUN AT\tATTEMPT\tPAYLOAD")
	for _, d := range ds {
		payload := string(d.Payload)
		if evt, err := d.Event(); err == nil {
			if data, err := (event.JSONCodec{}).Encode(evt); err == nil {
				payload = string(data)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			d.ID, d.Step, d.RunAt.Format(time.RFC3339), d.Attempt, truncate(payload, 60))
	}
	return tw.Flush()
}

// truncate shortens s to at most n runes, never splitting a character.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// ─── cancel ───────────────────────────────────────────────────────────────────

func cancelCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <delivery-id>",
		Short: "Cancel a scheduled delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deliveryID, err := id.ParseDeliveryID(args[0])
			if err != nil {
				return fmt.Errorf("parse delivery id: %w", err)
			}

			s, err := g.openStore(cmd.Context(), g.logger())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Cancel(cmd.Context(), deliveryID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", deliveryID)
			return nil
		},
	}
}

// ─── validate ─────────────────────────────────────────────────────────────────

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Validate a pipeline file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := step.LoadConfigFile(args[0])
			if err != nil {
				return err
			}
			writeChain(cmd.OutOrStdout(), cfgs)
			return nil
		},
	}
}

func writeChain(w io.Writer, cfgs []step.Config) {
	fmt.Fprintf(w, "OK: %d steps\n", len(cfgs))
	for _, c := range cfgs {
		var b strings.Builder
		b.WriteString(c.Name)
		if c.Next != "" {
			b.WriteString(" -> " + c.Next)
		}
		if c.MaxIterations == step.Unbounded {
			b.WriteString(" (repeats unbounded")
		} else {
			fmt.Fprintf(&b, " (repeats <= %d", c.MaxIterations)
		}
		fmt.Fprintf(&b, ", every %s)", c.RepeatDelay)
		fmt.Fprintln(w, "  "+b.String())
	}
}

// ─── run ──────────────────────────────────────────────────────────────────────

func runCmd(g *globalFlags) *cobra.Command {
	var (
		pipelinePath string
		concurrency  int
		poll         time.Duration
		report       time.Duration
		audit        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Relay due deliveries to Lambda",
		Long: `Poll the delivery store and invoke the Lambda function of each due
delivery's step. Steps hosted on Lambda use the store for repeat delays
longer than the SQS wait queue allows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pipelinePath == "" {
				return errors.New("--pipeline is required")
			}
			cfgs, err := step.LoadConfigFile(pipelinePath)
			if err != nil {
				return err
			}

			logger := g.logger()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := g.openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			target, err := g.lambdaInvoker(ctx, logger)
			if err != nil {
				return err
			}

			opts := []engine.Option{
				engine.WithStore(s),
				engine.WithLogger(logger),
				engine.WithConcurrency(concurrency),
				engine.WithPollInterval(poll),
			}
			if audit {
				opts = append(opts, engine.WithExtension(auditLog(logger)))
			}
			eng, err := engine.New(opts...)
			if err != nil {
				return err
			}
			for _, def := range relayDefinitions(cfgs, target) {
				if err := eng.Register(def); err != nil {
					return err
				}
			}

			grp, gctx := errgroup.WithContext(ctx)
			grp.Go(func() error {
				if err := eng.Start(gctx); err != nil {
					return err
				}
				<-gctx.Done()
				return eng.Stop(context.WithoutCancel(gctx))
			})
			if report > 0 {
				grp.Go(func() error { return reportPending(gctx, eng, logger, report) })
			}
			return grp.Wait()
		},
	}

	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "pipeline file naming the relayed steps")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of relay workers")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "store poll interval")
	cmd.Flags().DurationVar(&report, "report", time.Minute, "interval between pending-depth log lines (0 disables)")
	cmd.Flags().BoolVar(&audit, "audit", false, "log an audit line for every relayed step event")
	return cmd
}

// auditLog returns an audit extension that writes events to logger.
func auditLog(logger *slog.Logger) *audithook.Extension {
	return audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("severity", evt.Severity),
			slog.Any("metadata", evt.Metadata),
		}
		level := slog.LevelInfo
		if evt.Outcome == audithook.OutcomeFailure {
			level = slog.LevelWarn
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	}), audithook.WithLogger(logger))
}

// relayDefinitions returns one definition per step whose handler forwards
// the event to inv and terminates. The hosted step applies its own action.
func relayDefinitions(cfgs []step.Config, inv invoke.Invoker) []*step.Definition {
	defs := make([]*step.Definition, 0, len(cfgs))
	for _, c := range cfgs {
		name := c.Name
		defs = append(defs, step.NewDefinition(name, func(ctx context.Context, evt event.Event) (step.Result, error) {
			if err := inv.InvokeAsync(ctx, name, evt); err != nil {
				return step.Result{}, err
			}
			return step.Done(), nil
		}, step.WithConfig(c)))
	}
	return defs
}

func reportPending(ctx context.Context, eng *engine.Engine, logger *slog.Logger, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ds, err := eng.Pending(ctx, step.ListOpts{})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			logger.Info("relay pending deliveries", slog.Int("count", len(ds)))
		}
	}
}
