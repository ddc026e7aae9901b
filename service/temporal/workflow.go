package temporal

import (
	"errors"
	"fmt"
	"time"

	"github.com/abelmarnk/zero-fun/service/solana"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// InvokeMethodWorkflow is the Temporal workflow that drives one durable
// program method invocation.
//
// The workflow performs these steps:
// 1. Run the invocation pipeline (InvokeMethod activity)
// 2. Journal the terminal outcome (WriteJournal activity)
// 3. Publish the outcome to NATS (PublishEvent activity)
//
// An on-chain rejection still journals and publishes before the workflow
// fails: the transaction was processed, so its outcome is part of the record.
func InvokeMethodWorkflow(ctx workflow.Context, input InvokeMethodInput) (*InvokeMethodResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("InvokeMethodWorkflow started",
		"method", input.Method,
		"network", input.Network,
	)

	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID

	// Each InvokeMethod attempt builds a fresh transaction, and the activity
	// marks errors that cannot succeed on retry as non-retryable itself.
	invokeOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}

	var result *InvokeMethodResult
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, invokeOptions),
		a.InvokeMethod, input,
	).Get(ctx, &result)
	if err != nil {
		logger.Error("invocation failed before any outcome was recorded",
			"method", input.Method,
			"error", err,
		)
		return nil, fmt.Errorf("invocation failed: %w", err)
	}

	// Journaling and publishing are local, idempotent side effects; retry
	// them harder than the invocation itself.
	recordOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	}
	recordCtx := workflow.WithActivityOptions(ctx, recordOptions)

	journalInput := WriteJournalInput{
		Signature:      result.Signature,
		Method:         input.Method,
		ProgramAddress: ZeroFunProgramAddress,
		Network:        input.Network,
		Payer:          input.Payer,
		Status:         result.Status,
		Error:          result.Error,
		WorkflowID:     &workflowID,
	}
	if result.Slot > 0 {
		slot := result.Slot
		journalInput.Slot = &slot
	}

	var journalResult *WriteJournalResult
	if err := workflow.ExecuteActivity(recordCtx, a.WriteJournal, journalInput).Get(ctx, &journalResult); err != nil {
		logger.Error("failed to journal invocation",
			"signature", result.Signature,
			"error", err,
		)
		return result, fmt.Errorf("failed to journal invocation: %w", err)
	}

	if err := workflow.ExecuteActivity(recordCtx, a.PublishEvent, PublishEventInput{Signature: result.Signature}).Get(ctx, nil); err != nil {
		logger.Error("failed to publish invocation event",
			"signature", result.Signature,
			"error", err,
		)
		return result, fmt.Errorf("failed to publish invocation event: %w", err)
	}

	if result.Status == string(solana.StatusFailed) {
		reason := "program rejected transaction"
		if result.Error != nil {
			reason = *result.Error
		}
		logger.Info("InvokeMethodWorkflow completed with on-chain failure",
			"method", input.Method,
			"signature", result.Signature,
			"reason", reason,
		)
		return result, temporalsdk.NewNonRetryableApplicationError(reason, ErrTypeOnChainFailure, errors.New(reason))
	}

	logger.Info("InvokeMethodWorkflow completed successfully",
		"method", input.Method,
		"signature", result.Signature,
		"status", result.Status,
	)

	return result, nil
}

// ZeroFunProgramAddress is the deployed program's address in base58, used when
// journaling. Kept as a string so workflow code stays deterministic and free
// of key parsing.
var ZeroFunProgramAddress = solana.ZeroFunProgramID.String()
