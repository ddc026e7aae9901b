package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/abelmarnk/zero-fun/client"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/abelmarnk/zero-fun/service/nats"
	"github.com/abelmarnk/zero-fun/service/solana"
)

func invokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "invoke",
		Usage:     "Invoke a program method through the service",
		ArgsUsage: "METHOD",
		Description: `Submit a method invocation to the service and wait for the outcome.

Args are given in declaration order with repeated --arg flags; enum args use
the form "variant" or "variant:kind=value,...". Accounts are given in
declaration order with repeated --account flags.

Example:
  zerofun invoke record_action \
    --network devnet \
    --payer 7Np41oeYqPefeNQEHSv1UDhYrehxin3NStELsSKCT4K2 \
    --arg 3 \
    --account 7Np41oeYqPefeNQEHSv1UDhYrehxin3NStELsSKCT4K2 \
    --account GLoB...state --account GaMe...session`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Target network (mainnet or devnet)",
				Value:   "devnet",
			},
			&cli.StringSliceFlag{
				Name:    "arg",
				Aliases: []string{"a"},
				Usage:   "Method argument, repeated in declaration order",
			},
			&cli.StringSliceFlag{
				Name:  "account",
				Usage: "Account address, repeated in declaration order",
			},
			&cli.StringFlag{
				Name:    "payer",
				Aliases: []string{"p"},
				Usage:   "Fee payer public key (base58)",
			},
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "Keypair file to derive the payer from (alternative to --payer; the worker must hold the same key to sign)",
			},
			&cli.BoolFlag{
				Name:  "async",
				Usage: "Return as soon as the workflow is enqueued instead of waiting for the outcome",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "How long to wait for a synchronous outcome",
				Value:   5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: method name")
			}

			method := c.Args().First()
			payer := c.String("payer")
			if keypairPath := c.String("keypair"); keypairPath != "" {
				signer, err := solana.LoadKeypairSigner(keypairPath)
				if err != nil {
					return fmt.Errorf("failed to load keypair: %w", err)
				}
				payer = signer.PublicKey().String()
			}
			if payer == "" {
				return fmt.Errorf("--payer or --keypair is required")
			}

			cl := getClient(c)

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			result, err := cl.Invoke(ctx, client.InvokeRequest{
				Method:   method,
				Network:  c.String("network"),
				Args:     c.StringSlice("arg"),
				Accounts: c.StringSlice("account"),
				Payer:    payer,
				Async:    c.Bool("async"),
			})
			if err != nil {
				return fmt.Errorf("invocation failed: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(result)
			}

			if c.Bool("async") {
				fmt.Printf("Invocation enqueued\n")
				fmt.Printf("  Workflow ID: %s\n", result.WorkflowID)
				fmt.Printf("  Run ID:      %s\n", result.RunID)
				fmt.Printf("\nCheck the outcome with: zerofun status <signature> once journaled,\n")
				fmt.Printf("or stream events with:   zerofun await --method %s\n", method)
				return nil
			}

			fmt.Printf("Invocation %s\n", result.Status)
			fmt.Printf("  Signature:   %s\n", result.Signature)
			fmt.Printf("  Slot:        %d\n", result.Slot)
			fmt.Printf("  Workflow ID: %s\n", result.WorkflowID)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Get the journaled status of an invocation",
		ArgsUsage: "SIGNATURE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Poll until the invocation reaches a terminal status",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Polling interval when --wait is set",
				Value: 2 * time.Second,
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "How long to wait when --wait is set",
				Value:   5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}

			signature := c.Args().First()
			cl := getClient(c)

			var inv *client.Invocation
			var err error
			if c.Bool("wait") {
				ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
				defer cancel()
				inv, err = cl.Await(ctx, signature, c.Duration("poll-interval"))
			} else {
				inv, err = cl.Get(context.Background(), signature)
			}
			if err != nil {
				return fmt.Errorf("failed to get invocation: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(inv)
			}

			printInvocation(inv)
			return nil
		},
	}
}

func awaitCommand() *cli.Command {
	return &cli.Command{
		Name:  "await",
		Usage: "Block until an invocation event matching criteria arrives",
		Description: `Subscribe to the NATS invocation event stream and block until an event
matching the given criteria arrives.

Events are published to the subject invocations.{method}. Filters combine
with AND: --signature matches the exact transaction signature, --status
matches the terminal status, and each --must-jq expression is a jq program
evaluated against the event JSON that must return a truthy value.

Example:
  zerofun await --method withdraw --must-jq '.status == "finalized"' \
    --must-jq '.slot > 250000000'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "method",
				Aliases: []string{"m"},
				Usage:   "Method name to subscribe to (all methods if omitted)",
			},
			&cli.StringFlag{
				Name:  "signature",
				Usage: "Filter by exact transaction signature",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by terminal status (finalized, failed, not-found)",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Aliases: []string{"jq"},
				Usage:   "jq expression that must evaluate to true (repeatable, all must match)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "How long to wait for a matching event",
				Value:   5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			method := c.String("method")
			signature := c.String("signature")
			status := c.String("status")
			jqFilters := c.StringSlice("must-jq")
			timeout := c.Duration("timeout")
			jsonOutput := c.Bool("json")

			// Require at least one filter
			if method == "" && signature == "" && status == "" && len(jqFilters) == 0 {
				return fmt.Errorf("must specify at least one filter: --method, --signature, --status, or --must-jq")
			}

			matcher, err := buildEventMatcher(signature, status, jqFilters)
			if err != nil {
				return err
			}

			subject := "invocations.*"
			if method != "" {
				subject = fmt.Sprintf("invocations.%s", method)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Waiting for invocation event on %s...\n", subject)
				if signature != "" {
					fmt.Fprintf(os.Stderr, "  Signature: %s\n", signature)
				}
				if status != "" {
					fmt.Fprintf(os.Stderr, "  Status: %s\n", status)
				}
				for _, filter := range jqFilters {
					fmt.Fprintf(os.Stderr, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", timeout)
			}

			// Connect to NATS
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			msgChan := make(chan jetstream.Msg, 10)
			go func() {
				_, _ = cons.Consume(func(msg jetstream.Msg) {
					msgChan <- msg
				})
			}()

			for {
				select {
				case msg := <-msgChan:
					var event natspkg.InvocationEvent
					if err := json.Unmarshal(msg.Data(), &event); err != nil {
						fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
						msg.Ack()
						continue
					}
					msg.Ack()

					if !matcher(&event) {
						continue
					}

					if jsonOutput {
						return outputJSON(event)
					}
					printInvocationEvent(&event, 0)
					return nil

				case <-ctx.Done():
					return fmt.Errorf("timed out after %v waiting for a matching event", timeout)
				}
			}
		},
	}
}

// buildEventMatcher compiles the await filters into a single predicate.
// All filters must match; jq expressions run against the event JSON.
func buildEventMatcher(signature, status string, jqFilters []string) (func(*natspkg.InvocationEvent) bool, error) {
	compiled := make([]*gojq.Code, len(jqFilters))
	for i, filter := range jqFilters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}

	return func(event *natspkg.InvocationEvent) bool {
		if signature != "" && event.Signature != signature {
			return false
		}
		if status != "" && event.Status != status {
			return false
		}

		if len(compiled) > 0 {
			// Round-trip through JSON so jq sees the wire representation.
			data, err := json.Marshal(event)
			if err != nil {
				return false
			}
			var eventJSON interface{}
			if err := json.Unmarshal(data, &eventJSON); err != nil {
				return false
			}

			for _, code := range compiled {
				iter := code.Run(eventJSON)
				v, ok := iter.Next()
				if !ok {
					return false
				}
				if _, isErr := v.(error); isErr {
					return false
				}
				if !isTruthy(v) {
					return false
				}
			}
		}

		return true
	}, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// getClient builds an HTTP client for the invocation service from global flags.
func getClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func printInvocation(inv *client.Invocation) {
	fmt.Printf("Signature:   %s\n", inv.Signature)
	fmt.Printf("Method:      %s\n", inv.Method)
	fmt.Printf("Program:     %s\n", inv.ProgramAddress)
	fmt.Printf("Network:     %s\n", inv.Network)
	fmt.Printf("Payer:       %s\n", inv.Payer)
	fmt.Printf("Status:      %s\n", inv.Status)
	if inv.Error != nil {
		fmt.Printf("Error:       %s\n", *inv.Error)
	}
	if inv.Slot != nil {
		fmt.Printf("Slot:        %d\n", *inv.Slot)
	}
	if inv.WorkflowID != nil {
		fmt.Printf("Workflow ID: %s\n", *inv.WorkflowID)
	}
	fmt.Printf("Created:     %s\n", inv.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:     %s\n", inv.UpdatedAt.Format(time.RFC3339))
}

func printInvocationEvent(event *natspkg.InvocationEvent, count int) {
	fmt.Printf("─────────────────────────────────────────────────────\n")
	if count > 0 {
		fmt.Printf("Invocation #%d\n", count)
		fmt.Printf("─────────────────────────────────────────────────────\n")
	}
	fmt.Printf("Signature:  %s\n", event.Signature)
	fmt.Printf("Method:     %s\n", event.Method)
	fmt.Printf("Network:    %s\n", event.Network)
	fmt.Printf("Payer:      %s\n", event.Payer)
	fmt.Printf("Status:     %s\n", event.Status)
	if event.Error != "" {
		fmt.Printf("Error:      %s\n", event.Error)
	}
	if event.Slot != 0 {
		fmt.Printf("Slot:       %d\n", event.Slot)
	}
	fmt.Printf("Published:  %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Printf("\n")
}
