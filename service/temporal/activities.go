package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abelmarnk/zero-fun/service/db"
	"github.com/abelmarnk/zero-fun/service/metrics"
	natspkg "github.com/abelmarnk/zero-fun/service/nats"
	"github.com/abelmarnk/zero-fun/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// InvokeMethodInput contains the input parameters for a durable invocation.
// Everything is wire-friendly: argument values are strings parsed against the
// method's schema, accounts are base58 addresses in schema order.
type InvokeMethodInput struct {
	Method   string   `json:"method"`
	Network  string   `json:"network"` // "mainnet" or "devnet"
	Args     []string `json:"args"`
	Accounts []string `json:"accounts"`
	Payer    string   `json:"payer"`
}

// InvokeMethodResult contains the terminal outcome of an invocation.
type InvokeMethodResult struct {
	Signature string  `json:"signature"`
	Slot      int64   `json:"slot,omitempty"`
	Status    string  `json:"status"`
	Error     *string `json:"error,omitempty"`
}

// WriteJournalInput contains parameters for the WriteJournal activity.
type WriteJournalInput struct {
	Signature      string  `json:"signature"`
	Method         string  `json:"method"`
	ProgramAddress string  `json:"program_address"`
	Network        string  `json:"network"`
	Payer          string  `json:"payer"`
	Status         string  `json:"status"`
	Error          *string `json:"error,omitempty"`
	Slot           *int64  `json:"slot,omitempty"`
	WorkflowID     *string `json:"workflow_id,omitempty"`
}

// WriteJournalResult contains the result of journaling an invocation.
type WriteJournalResult struct {
	Created bool `json:"created"` // false when the signature was already journaled
}

// PublishEventInput contains parameters for the PublishEvent activity.
type PublishEventInput struct {
	Signature string `json:"signature"`
}

// Error types the workflow must not retry: the same input will fail the same
// way (bad arguments, missing signer) or the chain has already decided (the
// program rejected the transaction).
const (
	ErrTypeEncoding       = "EncodingError"
	ErrTypeSigning        = "SigningError"
	ErrTypeOnChainFailure = "OnChainFailure"
)

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	CreateInvocation(ctx context.Context, params db.CreateInvocationParams) (*db.Invocation, bool, error)
	UpdateInvocationStatus(ctx context.Context, signature, status string, errReason *string, slot *int64) (*db.Invocation, error)
	GetInvocation(ctx context.Context, signature string) (*db.Invocation, error)
}

// PipelineInterface defines the invocation pipeline operations needed by
// activities. This allows for easy mocking in tests.
type PipelineInterface interface {
	Invoke(ctx context.Context, call solana.MethodCall, signers ...solana.Signer) (*solana.SubmissionResult, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishInvocation(ctx context.Context, event *natspkg.InvocationEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// All dependencies are explicit.
type Activities struct {
	store           StoreInterface
	program         *solana.Program
	mainnetPipeline PipelineInterface
	devnetPipeline  PipelineInterface
	signers         []solana.Signer
	publisher       PublisherInterface
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// The signers are the worker's configured keypairs; the pipeline matches the
// ones a method requires by public key. If m is nil, no metrics are recorded.
func NewActivities(
	store StoreInterface,
	program *solana.Program,
	mainnetPipeline PipelineInterface,
	devnetPipeline PipelineInterface,
	signers []solana.Signer,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:           store,
		program:         program,
		mainnetPipeline: mainnetPipeline,
		devnetPipeline:  devnetPipeline,
		signers:         signers,
		publisher:       publisher,
		metrics:         m,
		logger:          logger,
	}
}

// InvokeMethod runs the invocation pipeline end to end.
//
// Retry semantics, mapped onto the pipeline's error taxonomy: encoding and
// signing errors are non-retryable (nothing was sent and the same input will
// fail again); an on-chain failure is non-retryable (the cluster processed and
// rejected the transaction); submission errors and timeouts are retryable — in
// both cases no inclusion was observed and the blockhash from the failed
// attempt is dead or dying, so the retry's fresh transaction cannot race it.
func (a *Activities) InvokeMethod(ctx context.Context, input InvokeMethodInput) (*InvokeMethodResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("InvokeMethod", input.Method, time.Since(start).Seconds())
		}
	}()

	a.logger.DebugContext(ctx, "invoking method",
		"method", input.Method,
		"network", input.Network,
		"payer", input.Payer,
	)

	call, err := a.buildCall(input)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeEncoding, err)
	}

	pipeline, err := a.pipelineFor(input.Network)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeEncoding, err)
	}

	result, err := pipeline.Invoke(ctx, *call, a.signers...)
	if err != nil {
		var encodingErr *solana.EncodingError
		var signingErr *solana.SigningError
		var onChainErr *solana.OnChainFailure

		switch {
		case errors.As(err, &encodingErr):
			return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeEncoding, err)

		case errors.As(err, &signingErr):
			return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeSigning, err)

		case errors.As(err, &onChainErr):
			// Terminal but journal-worthy: the transaction has a signature and
			// a decoded rejection reason. Surface both through the result so
			// the workflow can record them before failing.
			reason := onChainErr.Reason
			return &InvokeMethodResult{
				Signature: onChainErr.Signature.String(),
				Status:    string(solana.StatusFailed),
				Error:     &reason,
			}, nil

		default:
			// SubmissionError, TimeoutError, cancellation: retryable at the
			// activity level.
			a.logger.WarnContext(ctx, "invocation attempt failed",
				"method", input.Method,
				"error", err,
			)
			return nil, fmt.Errorf("invocation failed: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "invocation confirmed",
		"method", input.Method,
		"signature", result.Signature.String(),
		"slot", result.Slot,
		"status", result.Status,
	)

	return &InvokeMethodResult{
		Signature: result.Signature.String(),
		Slot:      int64(result.Slot),
		Status:    string(result.Status),
	}, nil
}

// buildCall parses wire-format input into a typed method call.
func (a *Activities) buildCall(input InvokeMethodInput) (*solana.MethodCall, error) {
	desc, err := a.program.Method(input.Method)
	if err != nil {
		return nil, err
	}

	args, err := solana.ParseArgs(desc, input.Args)
	if err != nil {
		return nil, err
	}

	accounts, err := solana.ParseAccounts(desc, input.Accounts)
	if err != nil {
		return nil, err
	}

	payer, err := solanago.PublicKeyFromBase58(input.Payer)
	if err != nil {
		return nil, fmt.Errorf("invalid payer %q: %w", input.Payer, err)
	}

	return &solana.MethodCall{
		Method:   input.Method,
		Args:     args,
		Accounts: accounts,
		Payer:    payer,
	}, nil
}

func (a *Activities) pipelineFor(network string) (PipelineInterface, error) {
	switch network {
	case "mainnet":
		return a.mainnetPipeline, nil
	case "devnet":
		return a.devnetPipeline, nil
	default:
		return nil, fmt.Errorf("invalid network: %s (must be mainnet or devnet)", network)
	}
}

// WriteJournal records the invocation outcome in the journal. Inserting an
// already-journaled signature updates its status instead, so resubmissions and
// workflow replays converge on one row.
func (a *Activities) WriteJournal(ctx context.Context, input WriteJournalInput) (*WriteJournalResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("WriteJournal", input.Method, time.Since(start).Seconds())
		}
	}()

	_, created, err := a.store.CreateInvocation(ctx, db.CreateInvocationParams{
		Signature:      input.Signature,
		Method:         input.Method,
		ProgramAddress: input.ProgramAddress,
		Network:        input.Network,
		Payer:          input.Payer,
		Status:         input.Status,
		WorkflowID:     input.WorkflowID,
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to journal invocation",
			"signature", input.Signature,
			"error", err,
		)
		return nil, fmt.Errorf("failed to journal invocation: %w", err)
	}

	if created {
		if a.metrics != nil {
			a.metrics.RecordInvocationWritten(input.Method)
		}
	} else if a.metrics != nil {
		a.metrics.RecordInvocationSkipped(input.Method, "duplicate")
	}

	// The terminal status, error, and slot land via update so a replayed
	// journal write converges with the first one.
	if _, err := a.store.UpdateInvocationStatus(ctx, input.Signature, input.Status, input.Error, input.Slot); err != nil {
		return nil, fmt.Errorf("failed to update invocation status: %w", err)
	}

	a.logger.DebugContext(ctx, "journaled invocation",
		"signature", input.Signature,
		"status", input.Status,
		"created", created,
	)

	return &WriteJournalResult{Created: created}, nil
}

// PublishEvent publishes the journaled invocation to NATS.
func (a *Activities) PublishEvent(ctx context.Context, input PublishEventInput) error {
	start := time.Now()

	inv, err := a.store.GetInvocation(ctx, input.Signature)
	if err != nil {
		return fmt.Errorf("failed to load invocation for publishing: %w", err)
	}

	event := natspkg.FromDBInvocation(inv)
	err = a.publisher.PublishInvocation(ctx, event)

	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordNATSPublish("invocations."+inv.Method, status, time.Since(start).Seconds())
	}

	if err != nil {
		a.logger.ErrorContext(ctx, "failed to publish invocation event",
			"signature", input.Signature,
			"error", err,
		)
		return fmt.Errorf("failed to publish invocation event: %w", err)
	}

	a.logger.DebugContext(ctx, "published invocation event",
		"signature", input.Signature,
		"method", inv.Method,
		"status", inv.Status,
	)

	return nil
}
