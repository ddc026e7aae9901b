package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTransport implements Transport for testing. It's behavior-focused: we
// script what it should return per call, not verify call sequences.
type mockTransport struct {
	mu sync.Mutex

	blockhash solana.Hash
	lastValid uint64

	// sendErrs are returned by SendRawTransaction in order; once exhausted,
	// sends succeed.
	sendErrs  []error
	sendCalls int
	sentRaw   [][]byte

	// statuses are returned by SignatureStatus in order; the last entry
	// repeats. A nil entry means "not observed".
	statuses    []*rpc.SignatureStatusesResult
	statusErr   error
	statusCalls int

	height uint64
}

func (m *mockTransport) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockhash, m.lastValid, nil
}

func (m *mockTransport) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls++
	m.sentRaw = append(m.sentRaw, raw)
	if len(m.sendErrs) > 0 {
		err := m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
		if err != nil {
			return solana.Signature{}, err
		}
	}
	return solana.Signature{}, nil
}

func (m *mockTransport) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if len(m.statuses) == 0 {
		return nil, nil
	}
	st := m.statuses[0]
	if len(m.statuses) > 1 {
		m.statuses = m.statuses[1:]
	}
	return st, nil
}

func (m *mockTransport) BlockHeight(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		blockhash: solana.Hash{1, 2, 3},
		lastValid: 1000,
		height:    500,
	}
}

func finalizedStatus() *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{
		Slot:               42,
		ConfirmationStatus: rpc.ConfirmationStatusFinalized,
	}
}

func newTestPipeline(mock *mockTransport) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := InvokeOptions{
		MaxSubmitAttempts:   3,
		RetryBaseDelay:      time.Millisecond,
		ConfirmPollInterval: time.Millisecond,
		Finality:            StatusFinalized,
	}
	return NewPipeline(ZeroFun(), mock, opts, "test", nil, logger)
}

// recordActionCall builds a minimal valid call with one required signer.
func recordActionCall(t *testing.T, player *KeypairSigner) MethodCall {
	t.Helper()

	program := ZeroFunProgramID
	globalState, err := GlobalStatePDA(program)
	require.NoError(t, err)

	var seed [32]byte
	seed[0] = 7
	gameSession, err := GameSessionPDA(program, seed, player.PublicKey())
	require.NoError(t, err)

	return MethodCall{
		Method: "record_action",
		Args:   []Arg{U8(3)},
		Accounts: []*solana.AccountMeta{
			Meta(player.PublicKey(), false, true),
			Meta(globalState, false, false),
			Meta(gameSession, true, false),
		},
		Payer: player.PublicKey(),
	}
}

func newTestSigner(t *testing.T) *KeypairSigner {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return NewKeypairSigner(key)
}

func TestInvoke_SuccessOnFirstCycle(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	mock.statuses = []*rpc.SignatureStatusesResult{finalizedStatus()}

	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	result, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, StatusFinalized, result.Status)
	assert.Equal(t, uint64(42), result.Slot)
	assert.False(t, result.Signature.IsZero())

	// One submit, one poll, no retries.
	assert.Equal(t, 1, mock.sendCalls)
	assert.Equal(t, 1, mock.statusCalls)
}

func TestInvoke_ArgumentCountMismatch(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	call := recordActionCall(t, player)
	call.Args = nil // record_action requires one argument

	_, err := pipeline.Invoke(ctx, call, player)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "record_action", encErr.Method)
	// Nothing may reach the wire on an encoding failure.
	assert.Equal(t, 0, mock.sendCalls)
}

func TestInvoke_ArgumentTypeMismatch(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	call := recordActionCall(t, player)
	call.Args = []Arg{U64(3)} // schema says u8

	_, err := pipeline.Invoke(ctx, call, player)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, 0, mock.sendCalls)
}

func TestInvoke_UnknownMethod(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	call := recordActionCall(t, player)
	call.Method = "no_such_method"

	_, err := pipeline.Invoke(ctx, call, player)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
}

func TestInvoke_MissingRequiredSigner(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	player := newTestSigner(t)
	stranger := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	// Provide a signer, just not the one the call requires.
	_, err := pipeline.Invoke(ctx, recordActionCall(t, player), stranger)

	var signErr *SigningError
	require.ErrorAs(t, err, &signErr)
	assert.Equal(t, player.PublicKey(), signErr.Signer)
	assert.Equal(t, 0, mock.sendCalls)
}

func TestInvoke_TransientFailuresThenSuccess(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	mock.sendErrs = []error{
		errors.New("429 Too Many Requests"),
		errors.New("connection refused"),
	}
	mock.statuses = []*rpc.SignatureStatusesResult{finalizedStatus()}

	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	result, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)

	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, result.Status)
	// Two failures plus the successful attempt.
	assert.Equal(t, 3, mock.sendCalls)
}

func TestInvoke_SubmitRetriesExhausted(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	mock.sendErrs = []error{
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
	}

	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	_, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, 3, subErr.Attempts)

	// Exhausted retries are a SubmissionError, never a TimeoutError.
	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 0, mock.statusCalls)
}

func TestInvoke_PermanentRejectionNotRetried(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	mock.sendErrs = []error{
		errors.New("Transaction signature verification failure"),
	}

	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	_, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, 1, subErr.Attempts)
	assert.Equal(t, 1, mock.sendCalls)
}

func TestInvoke_AlreadyProcessedIsSuccess(t *testing.T) {
	ctx := context.Background()

	// The node reports the exact bytes as a duplicate, e.g. after a lost
	// acknowledgement. The signature is content-derived, so this is ours.
	mock := newMockTransport()
	mock.sendErrs = []error{
		errors.New("This transaction has already been processed"),
	}
	mock.statuses = []*rpc.SignatureStatusesResult{finalizedStatus()}

	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	result, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)

	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, result.Status)
	assert.Equal(t, 1, mock.sendCalls)
}

func TestInvoke_OnChainFailureDecoded(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	mock.statuses = []*rpc.SignatureStatusesResult{
		{
			Slot:               42,
			ConfirmationStatus: rpc.ConfirmationStatusFinalized,
			Err: map[string]any{
				"InstructionError": []any{float64(0), map[string]any{"Custom": float64(6007)}},
			},
		},
	}

	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	_, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)

	var chainErr *OnChainFailure
	require.ErrorAs(t, err, &chainErr)
	assert.Contains(t, chainErr.Reason, "DepositExceedsMaximum")
}

func TestInvoke_TimeoutAfterBlockhashExpiry(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	mock.lastValid = 1000
	mock.height = 1001 // past the freshness window
	// No statuses: the cluster never observes the transaction.

	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	_, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, uint64(1000), timeoutErr.LastValidBlockHeight)

	// A timeout is unknown-outcome, not a failure.
	var chainErr *OnChainFailure
	assert.False(t, errors.As(err, &chainErr))
	var subErr *SubmissionError
	assert.False(t, errors.As(err, &subErr))
}

func TestInvoke_WaitsThroughProcessedToFinalized(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	mock.statuses = []*rpc.SignatureStatusesResult{
		{Slot: 40, ConfirmationStatus: rpc.ConfirmationStatusProcessed},
		{Slot: 40, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		{Slot: 40, ConfirmationStatus: rpc.ConfirmationStatusFinalized},
	}

	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	result, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)

	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, result.Status)
	assert.Equal(t, 3, mock.statusCalls)
}

func TestInvoke_DeterministicSignature(t *testing.T) {
	ctx := context.Background()

	player := newTestSigner(t)

	run := func() solana.Signature {
		mock := newMockTransport()
		mock.statuses = []*rpc.SignatureStatusesResult{finalizedStatus()}
		pipeline := newTestPipeline(mock)
		result, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)
		require.NoError(t, err)
		return result.Signature
	}

	// Same call, same signer, same blockhash: same identifier.
	assert.Equal(t, run(), run())
}

func TestInvoke_CancellationStopsWaiting(t *testing.T) {
	mock := newMockTransport()
	// No statuses and the blockhash never expires, so confirm would poll
	// forever without cancellation.

	player := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pipeline.Invoke(ctx, recordActionCall(t, player), player)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// The transaction was still broadcast; cancellation only stops waiting.
	assert.Equal(t, 1, mock.sendCalls)
}

func TestInvoke_MultiSignerCall(t *testing.T) {
	ctx := context.Background()

	mock := newMockTransport()
	mock.statuses = []*rpc.SignatureStatusesResult{finalizedStatus()}

	player := newTestSigner(t)
	admin := newTestSigner(t)
	pipeline := newTestPipeline(mock)

	program := ZeroFunProgramID
	globalState, err := GlobalStatePDA(program)
	require.NoError(t, err)
	vault, err := VaultPDA(program)
	require.NoError(t, err)

	var seed [32]byte
	gameSession, err := GameSessionPDA(program, seed, player.PublicKey())
	require.NoError(t, err)
	userVault, err := UserVaultPDA(program, seed, player.PublicKey())
	require.NoError(t, err)

	call := MethodCall{
		Method: "finalize_game_as_won_for_player",
		Args:   []Arg{U64(5_000_000)},
		Accounts: []*solana.AccountMeta{
			Meta(gameSession, true, false),
			Meta(player.PublicKey(), true, true),
			Meta(userVault, true, false),
			Meta(vault, true, false),
			Meta(globalState, false, false),
			Meta(admin.PublicKey(), false, true),
			Meta(solana.SystemProgramID, false, false),
			Meta(solana.SysVarInstructionsPubkey, false, false),
		},
		Payer: player.PublicKey(),
	}

	result, err := pipeline.Invoke(ctx, call, player, admin)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, result.Status)

	// Dropping one of the two required signers must fail before submission.
	mock2 := newMockTransport()
	pipeline2 := newTestPipeline(mock2)
	_, err = pipeline2.Invoke(ctx, call, player)
	var signErr *SigningError
	require.ErrorAs(t, err, &signErr)
	assert.Equal(t, 0, mock2.sendCalls)
}
