package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abelmarnk/zero-fun/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// InvokeOptions bounds the pipeline's retry and confirmation behavior. All
// policy is explicit here; the pipeline never reads ambient configuration.
type InvokeOptions struct {
	// MaxSubmitAttempts caps how many times a transient submission failure is
	// retried before the invocation fails with a SubmissionError.
	MaxSubmitAttempts int

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration

	// ConfirmPollInterval is how often the confirmation status is polled.
	ConfirmPollInterval time.Duration

	// Finality is the confirmation level that counts as success.
	Finality ConfirmationStatus
}

// DefaultInvokeOptions are conservative enough for public RPC endpoints.
func DefaultInvokeOptions() InvokeOptions {
	return InvokeOptions{
		MaxSubmitAttempts:   5,
		RetryBaseDelay:      500 * time.Millisecond,
		ConfirmPollInterval: 2 * time.Second,
		Finality:            StatusFinalized,
	}
}

// Pipeline turns a MethodCall into a submitted, confirmed transaction.
//
// One invocation runs build, sign, submit, confirm in order. Submit retries
// transient transport failures with bounded exponential backoff; confirm polls
// until the target finality, an on-chain rejection, or blockhash expiry. The
// pipeline owns the transaction for the duration of one invocation; the
// transport and signers are shared, long-lived collaborators, and multiple
// invocations may run concurrently against the same Pipeline.
type Pipeline struct {
	program   *Program
	transport Transport
	opts      InvokeOptions
	metrics   *metrics.Metrics
	endpoint  string // endpoint label for metrics (e.g. "mainnet", "devnet")
	logger    *slog.Logger
}

// NewPipeline creates an invocation pipeline for one program.
// If m is nil, no metrics are recorded.
func NewPipeline(program *Program, transport Transport, opts InvokeOptions, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		program:   program,
		transport: transport,
		opts:      opts,
		metrics:   m,
		endpoint:  endpoint,
		logger:    logger,
	}
}

// Invoke executes one method call end to end and returns once the transaction
// reaches the configured finality.
//
// Error taxonomy: *EncodingError and *SigningError mean nothing was sent;
// *SubmissionError means no node ever acknowledged the transaction;
// *TimeoutError means the outcome is unknown (the blockhash expired before a
// terminal status was observed); *OnChainFailure means the program rejected
// the processed transaction. Cancelling ctx stops local waiting only — it
// never recalls a transaction that was already broadcast.
func (p *Pipeline) Invoke(ctx context.Context, call MethodCall, signers ...Signer) (*SubmissionResult, error) {
	start := time.Now()

	tx, lastValid, err := p.build(ctx, call, signers)
	if err != nil {
		p.recordInvocation(call.Method, outcomeOf(err), start)
		return nil, err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		p.recordInvocation(call.Method, "encoding_error", start)
		return nil, &EncodingError{Method: call.Method, Reason: fmt.Sprintf("serializing transaction: %v", err)}
	}

	// The first signature is the transaction identifier. It is a function of
	// the signed bytes, so resubmitting the same bytes yields the same ID.
	id := tx.Signatures[0]

	p.logger.DebugContext(ctx, "built transaction",
		"method", call.Method,
		"signature", id.String(),
		"last_valid_block_height", lastValid,
	)

	if err := p.submit(ctx, call.Method, raw, id); err != nil {
		p.recordInvocation(call.Method, outcomeOf(err), start)
		return nil, err
	}

	result, err := p.confirm(ctx, call.Method, id, lastValid)
	p.recordInvocation(call.Method, outcomeOf(err), start)
	return result, err
}

// build resolves the descriptor, encodes the instruction, attaches a fresh
// blockhash, and collects one signature per required signer.
func (p *Pipeline) build(ctx context.Context, call MethodCall, signers []Signer) (*solana.Transaction, uint64, error) {
	desc, err := p.program.Method(call.Method)
	if err != nil {
		return nil, 0, &EncodingError{Method: call.Method, Reason: err.Error()}
	}

	if len(call.Accounts) != len(desc.Accounts) {
		return nil, 0, &EncodingError{
			Method: call.Method,
			Reason: fmt.Sprintf("expected %d account(s), got %d", len(desc.Accounts), len(call.Accounts)),
		}
	}

	data, err := encodeInstructionData(desc, call.Args)
	if err != nil {
		return nil, 0, err
	}

	blockhash, lastValid, err := p.latestBlockhash(ctx)
	if err != nil {
		return nil, 0, err
	}

	ix := solana.NewInstruction(p.program.ID, call.Accounts, data)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(call.Payer),
	)
	if err != nil {
		return nil, 0, &EncodingError{Method: call.Method, Reason: fmt.Sprintf("building transaction: %v", err)}
	}

	if err := p.sign(tx, signers); err != nil {
		return nil, 0, err
	}

	return tx, lastValid, nil
}

// latestBlockhash fetches the freshness token, retrying transient failures
// within the same backoff budget as submission.
func (p *Pipeline) latestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	var lastErr error
	delay := p.opts.RetryBaseDelay

	for attempt := 0; attempt < p.opts.MaxSubmitAttempts; attempt++ {
		rpcStart := time.Now()
		blockhash, lastValid, err := p.transport.LatestBlockhash(ctx)
		p.recordRPCCall("GetLatestBlockhash", err, rpcStart)
		if err == nil {
			return blockhash, lastValid, nil
		}
		if !isTransientSendError(err) {
			return solana.Hash{}, 0, &SubmissionError{Attempts: attempt + 1, Err: err}
		}

		lastErr = err
		p.logger.WarnContext(ctx, "failed to fetch blockhash, backing off",
			"attempt", attempt+1,
			"backoff", delay,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.RecordRPCRetry("GetLatestBlockhash", "transient")
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return solana.Hash{}, 0, err
		}
		delay *= 2
	}

	return solana.Hash{}, 0, &SubmissionError{Attempts: p.opts.MaxSubmitAttempts, Err: lastErr}
}

// sign collects a signature per required signer, in message order. The set of
// required signers is determined by the compiled message header, so it always
// matches what nodes will verify.
func (p *Pipeline) sign(tx *solana.Transaction, signers []Signer) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return &SigningError{Err: fmt.Errorf("serializing message: %w", err)}
	}

	byKey := make(map[solana.PublicKey]Signer, len(signers))
	for _, s := range signers {
		byKey[s.PublicKey()] = s
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	tx.Signatures = make([]solana.Signature, 0, required)
	for _, key := range tx.Message.AccountKeys[:required] {
		signer, ok := byKey[key]
		if !ok {
			return &SigningError{Signer: key}
		}
		sig, err := signer.Sign(msg)
		if err != nil {
			return &SigningError{Signer: key, Err: err}
		}
		tx.Signatures = append(tx.Signatures, sig)
	}

	return nil
}

// submit sends the signed bytes, retrying transient failures with bounded
// exponential backoff. A node reporting the transaction as already processed
// is treated as a successful submission: the identifier is deterministic, so
// the duplicate is ours.
func (p *Pipeline) submit(ctx context.Context, method string, raw []byte, id solana.Signature) error {
	var lastErr error
	delay := p.opts.RetryBaseDelay

	for attempt := 0; attempt < p.opts.MaxSubmitAttempts; attempt++ {
		rpcStart := time.Now()
		_, err := p.transport.SendRawTransaction(ctx, raw)
		p.recordRPCCall("SendTransaction", err, rpcStart)

		if err == nil {
			p.logger.DebugContext(ctx, "transaction submitted",
				"method", method,
				"signature", id.String(),
				"attempt", attempt+1,
			)
			return nil
		}

		if isAlreadyProcessed(err) {
			p.logger.DebugContext(ctx, "transaction already known to cluster, treating as submitted",
				"method", method,
				"signature", id.String(),
			)
			return nil
		}

		if !isTransientSendError(err) {
			return &SubmissionError{Attempts: attempt + 1, Err: err}
		}

		lastErr = err
		p.logger.WarnContext(ctx, "transient submission failure, backing off",
			"method", method,
			"signature", id.String(),
			"attempt", attempt+1,
			"backoff", delay,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.RecordRPCRetry("SendTransaction", "transient")
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	return &SubmissionError{Attempts: p.opts.MaxSubmitAttempts, Err: lastErr}
}

// confirm polls the signature status until it reaches the configured
// finality, the program rejects the transaction, or the blockhash expires
// with no observed inclusion.
func (p *Pipeline) confirm(ctx context.Context, method string, id solana.Signature, lastValid uint64) (*SubmissionResult, error) {
	for {
		rpcStart := time.Now()
		status, err := p.transport.SignatureStatus(ctx, id)
		p.recordRPCCall("GetSignatureStatuses", err, rpcStart)

		switch {
		case err != nil:
			// Status queries are read-only; transient failures just mean we
			// poll again within the timeout budget.
			p.logger.WarnContext(ctx, "status poll failed, will retry",
				"method", method,
				"signature", id.String(),
				"error", err,
			)

		case status == nil:
			// Not yet observed. If the blockhash has expired the transaction
			// can never land and the outcome is known to be "not found".
			expired, hErr := p.blockhashExpired(ctx, lastValid)
			if hErr != nil {
				p.logger.WarnContext(ctx, "block height check failed, will retry",
					"method", method,
					"error", hErr,
				)
			} else if expired {
				p.logger.InfoContext(ctx, "blockhash expired before inclusion was observed",
					"method", method,
					"signature", id.String(),
					"last_valid_block_height", lastValid,
				)
				return nil, &TimeoutError{Signature: id, LastValidBlockHeight: lastValid}
			}

		case status.Err != nil:
			reason := decodeTransactionError(status.Err)
			p.logger.InfoContext(ctx, "transaction rejected on-chain",
				"method", method,
				"signature", id.String(),
				"reason", reason,
			)
			return nil, &OnChainFailure{Signature: id, Reason: reason}

		default:
			current := fromRPCConfirmation(status.ConfirmationStatus)
			p.logger.DebugContext(ctx, "transaction status",
				"method", method,
				"signature", id.String(),
				"status", current,
			)
			if confirmationReached(current, p.opts.Finality) {
				return &SubmissionResult{
					Signature: id,
					Slot:      status.Slot,
					Status:    current,
				}, nil
			}
			// Included but not yet final; expiry no longer applies, keep
			// polling until finality or cancellation.
		}

		if err := sleepCtx(ctx, p.opts.ConfirmPollInterval); err != nil {
			return nil, err
		}
	}
}

// blockhashExpired reports whether the cluster has moved past the last block
// height at which the freshness token is valid.
func (p *Pipeline) blockhashExpired(ctx context.Context, lastValid uint64) (bool, error) {
	rpcStart := time.Now()
	height, err := p.transport.BlockHeight(ctx)
	p.recordRPCCall("GetBlockHeight", err, rpcStart)
	if err != nil {
		return false, err
	}
	return height > lastValid, nil
}

func fromRPCConfirmation(s rpc.ConfirmationStatusType) ConfirmationStatus {
	switch s {
	case rpc.ConfirmationStatusProcessed:
		return StatusProcessed
	case rpc.ConfirmationStatusConfirmed:
		return StatusConfirmed
	case rpc.ConfirmationStatusFinalized:
		return StatusFinalized
	default:
		return StatusPending
	}
}

// confirmationReached reports whether current satisfies the target finality.
func confirmationReached(current, target ConfirmationStatus) bool {
	rank := map[ConfirmationStatus]int{
		StatusPending:   0,
		StatusProcessed: 1,
		StatusConfirmed: 2,
		StatusFinalized: 3,
	}
	return rank[current] >= rank[target]
}

// outcomeOf maps an invocation error to a metrics label.
func outcomeOf(err error) string {
	switch err.(type) {
	case nil:
		return "success"
	case *EncodingError:
		return "encoding_error"
	case *SigningError:
		return "signing_error"
	case *SubmissionError:
		return "submission_error"
	case *TimeoutError:
		return "timeout"
	case *OnChainFailure:
		return "on_chain_failure"
	default:
		return "canceled"
	}
}

func (p *Pipeline) recordInvocation(method, outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordInvocation(method, outcome, time.Since(start).Seconds())
	}
}

func (p *Pipeline) recordRPCCall(rpcMethod string, err error, start time.Time) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordRPCCall(rpcMethod, status, p.endpoint, time.Since(start).Seconds())
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
