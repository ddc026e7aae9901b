package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/abelmarnk/zero-fun/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listInvocationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List journaled invocations",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "method",
				Aliases: []string{"m"},
				Usage:   "Filter by method name",
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "Filter by network (mainnet, devnet)",
			},
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (pending, finalized, failed, not-found)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of invocations",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of invocations to skip",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			invocations, err := store.ListInvocations(context.Background(), db.ListInvocationsParams{
				Method:  c.String("method"),
				Network: c.String("network"),
				Status:  c.String("status"),
				Limit:   int32(c.Int("limit")),
				Offset:  int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list invocations: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(invocations)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNATURE\tMETHOD\tNETWORK\tSTATUS\tSLOT\tCREATED")
			for _, inv := range invocations {
				slot := "-"
				if inv.Slot != nil {
					slot = fmt.Sprintf("%d", *inv.Slot)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					truncateSignature(inv.Signature),
					inv.Method,
					inv.Network,
					inv.Status,
					slot,
					inv.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d invocations\n", len(invocations))
			return nil
		},
	}
}

func getInvocationCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get invocation details",
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}

			signature := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			inv, err := store.GetInvocation(context.Background(), signature)
			if err != nil {
				return fmt.Errorf("failed to get invocation: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(inv)
			}

			// Pretty output
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

			return nil
		},
	}
}

func invocationStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show invocation counts grouped by status",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			counts, err := store.CountInvocationsByStatus(context.Background())
			if err != nil {
				return fmt.Errorf("failed to count invocations: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(counts)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STATUS\tCOUNT")
			for status, count := range counts {
				fmt.Fprintf(w, "%s\t%d\n", status, count)
			}
			w.Flush()
			return nil
		},
	}
}

func setupSchemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the invocation journal schema if it does not exist",
		Action: func(c *cli.Context) error {
			dbURL := c.String("database-url")
			if dbURL == "" {
				return fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
			}

			pool, err := pgxpool.New(context.Background(), dbURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			if err := db.EnsureSchema(context.Background(), pool); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}

			fmt.Println("Schema applied")
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncateSignature shortens a signature for table display.
func truncateSignature(sig string) string {
	if len(sig) <= 20 {
		return sig
	}
	return sig[:8] + "..." + sig[len(sig)-8:]
}
