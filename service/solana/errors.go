package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// The pipeline surfaces exactly one of these error types to callers. Transient
// transport errors are retried internally and never escape.

// EncodingError means the caller-supplied arguments do not match the method's
// declared schema. Nothing was signed or sent; retrying is pointless.
type EncodingError struct {
	Method string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %s: %s", e.Method, e.Reason)
}

// SigningError means a required signer was unavailable or refused to sign.
type SigningError struct {
	Signer solana.PublicKey
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing as %s: %v", e.Signer, e.Err)
	}
	return fmt.Sprintf("no signer available for required key %s", e.Signer)
}

func (e *SigningError) Unwrap() error { return e.Err }

// SubmissionError means the transport rejected the transaction outright, or
// transient failures exhausted the retry budget. The transaction was never
// acknowledged by a node.
type SubmissionError struct {
	Attempts int
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TimeoutError means the blockhash expired before the transaction reached a
// terminal confirmation status. The on-chain outcome is unknown, not negative:
// the transaction may still have landed. Callers must rebuild the call with a
// fresh blockhash rather than resubmit the old bytes.
type TimeoutError struct {
	Signature            solana.Signature
	LastValidBlockHeight uint64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("confirmation of %s not observed before block height %d; outcome unknown",
		e.Signature, e.LastValidBlockHeight)
}

// OnChainFailure means the cluster processed the transaction and the program
// rejected it. Reason carries the program-reported error, decoded to the
// program's error table where possible.
type OnChainFailure struct {
	Signature solana.Signature
	Reason    string
}

func (e *OnChainFailure) Error() string {
	return fmt.Sprintf("transaction %s failed on-chain: %s", e.Signature, e.Reason)
}
