package solana

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Transport is the narrow slice of node RPC the pipeline needs. Keeping it an
// interface lets tests drive the pipeline with a mock instead of a live node.
type Transport interface {
	// LatestBlockhash returns a fresh blockhash and the last block height at
	// which a transaction built on it is still valid for inclusion.
	LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error)

	// SendRawTransaction submits serialized signed transaction bytes and
	// returns the node's acknowledgement: the transaction signature.
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)

	// SignatureStatus returns the confirmation status for a signature, or nil
	// if the cluster has not observed it.
	SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error)

	// BlockHeight returns the cluster's current block height, used to detect
	// blockhash expiry.
	BlockHeight(ctx context.Context) (uint64, error)
}

// rpcTransport adapts the solana-go RPC client to the Transport interface.
type rpcTransport struct {
	client        *rpc.Client
	skipPreflight bool
}

// NewRPCTransport creates a Transport backed by a real RPC endpoint.
// For premium endpoints that require API keys, include the key in the URL.
func NewRPCTransport(rpcURL string, skipPreflight bool) Transport {
	return &rpcTransport{
		client:        rpc.New(rpcURL),
		skipPreflight: skipPreflight,
	}
}

func (t *rpcTransport) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	out, err := t.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, 0, err
	}
	return out.Value.Blockhash, out.Value.LastValidBlockHeight, nil
}

func (t *rpcTransport) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	// The node's own resubmission loop is disabled (MaxRetries=0); the
	// pipeline controls retry policy so behavior is observable and bounded.
	zero := uint(0)
	return t.client.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       t.skipPreflight,
		PreflightCommitment: rpc.CommitmentProcessed,
		MaxRetries:          &zero,
	})
}

func (t *rpcTransport) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	out, err := t.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

func (t *rpcTransport) BlockHeight(ctx context.Context) (uint64, error) {
	return t.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
}
