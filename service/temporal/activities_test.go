package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/abelmarnk/zero-fun/service/db"
	natspkg "github.com/abelmarnk/zero-fun/service/nats"
	"github.com/abelmarnk/zero-fun/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore is an in-memory StoreInterface for activity tests.
type mockStore struct {
	mu          sync.Mutex
	invocations map[string]*db.Invocation
	createErr   error
}

func newMockStore() *mockStore {
	return &mockStore{invocations: make(map[string]*db.Invocation)}
}

func (m *mockStore) CreateInvocation(ctx context.Context, params db.CreateInvocationParams) (*db.Invocation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, false, m.createErr
	}
	if existing, ok := m.invocations[params.Signature]; ok {
		return existing, false, nil
	}
	inv := &db.Invocation{
		Signature:      params.Signature,
		Method:         params.Method,
		ProgramAddress: params.ProgramAddress,
		Network:        params.Network,
		Payer:          params.Payer,
		Status:         params.Status,
		WorkflowID:     params.WorkflowID,
	}
	m.invocations[params.Signature] = inv
	return inv, true, nil
}

func (m *mockStore) UpdateInvocationStatus(ctx context.Context, signature, status string, errReason *string, slot *int64) (*db.Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invocations[signature]
	if !ok {
		return nil, db.ErrNotFound
	}
	inv.Status = status
	inv.Error = errReason
	if slot != nil {
		inv.Slot = slot
	}
	return inv, nil
}

func (m *mockStore) GetInvocation(ctx context.Context, signature string) (*db.Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invocations[signature]
	if !ok {
		return nil, db.ErrNotFound
	}
	return inv, nil
}

// mockPipeline returns a scripted result or error.
type mockPipeline struct {
	mu     sync.Mutex
	result *solana.SubmissionResult
	err    error
	calls  []solana.MethodCall
}

func (m *mockPipeline) Invoke(ctx context.Context, call solana.MethodCall, signers ...solana.Signer) (*solana.SubmissionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPubkey(t *testing.T) string {
	t.Helper()
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	return key.PublicKey().String()
}

func recordActionInput(t *testing.T) InvokeMethodInput {
	t.Helper()
	return InvokeMethodInput{
		Method:   "record_action",
		Network:  "devnet",
		Args:     []string{"5"},
		Accounts: []string{testPubkey(t), testPubkey(t), testPubkey(t)},
		Payer:    testPubkey(t),
	}
}

func newTestActivities(pipeline *mockPipeline, store *mockStore, publisher *natspkg.MockPublisher) *Activities {
	return NewActivities(store, solana.ZeroFun(), pipeline, pipeline, nil, publisher, nil, testLogger())
}

func TestInvokeMethod_Success(t *testing.T) {
	sig := solanago.Signature{1, 2, 3}
	pipeline := &mockPipeline{
		result: &solana.SubmissionResult{
			Signature: sig,
			Slot:      9000,
			Status:    solana.StatusFinalized,
		},
	}
	activities := newTestActivities(pipeline, newMockStore(), natspkg.NewMockPublisher())

	result, err := activities.InvokeMethod(context.Background(), recordActionInput(t))
	require.NoError(t, err)
	assert.Equal(t, sig.String(), result.Signature)
	assert.Equal(t, int64(9000), result.Slot)
	assert.Equal(t, "finalized", result.Status)
	assert.Nil(t, result.Error)

	// The activity parsed the wire input into a typed call.
	require.Len(t, pipeline.calls, 1)
	assert.Equal(t, "record_action", pipeline.calls[0].Method)
	assert.Len(t, pipeline.calls[0].Args, 1)
	assert.Len(t, pipeline.calls[0].Accounts, 3)
}

func TestInvokeMethod_OnChainFailureBecomesResult(t *testing.T) {
	sig := solanago.Signature{9}
	pipeline := &mockPipeline{
		err: &solana.OnChainFailure{Signature: sig, Reason: "custom program error 6016: GameNotActive"},
	}
	activities := newTestActivities(pipeline, newMockStore(), natspkg.NewMockPublisher())

	result, err := activities.InvokeMethod(context.Background(), recordActionInput(t))
	require.NoError(t, err)
	assert.Equal(t, sig.String(), result.Signature)
	assert.Equal(t, "failed", result.Status)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "GameNotActive")
}

func TestInvokeMethod_BadInputIsError(t *testing.T) {
	activities := newTestActivities(&mockPipeline{}, newMockStore(), natspkg.NewMockPublisher())

	// Unknown method
	input := recordActionInput(t)
	input.Method = "transfer"
	_, err := activities.InvokeMethod(context.Background(), input)
	assert.Error(t, err)

	// Wrong argument arity
	input = recordActionInput(t)
	input.Args = nil
	_, err = activities.InvokeMethod(context.Background(), input)
	assert.Error(t, err)

	// Unknown network
	input = recordActionInput(t)
	input.Network = "testnet"
	_, err = activities.InvokeMethod(context.Background(), input)
	assert.Error(t, err)
}

func TestInvokeMethod_SubmissionErrorIsRetryable(t *testing.T) {
	pipeline := &mockPipeline{
		err: &solana.SubmissionError{Attempts: 5, Err: errors.New("429 Too Many Requests")},
	}
	activities := newTestActivities(pipeline, newMockStore(), natspkg.NewMockPublisher())

	_, err := activities.InvokeMethod(context.Background(), recordActionInput(t))
	require.Error(t, err)

	var submissionErr *solana.SubmissionError
	assert.True(t, errors.As(err, &submissionErr))
}

func TestWriteJournal_CreateAndUpdate(t *testing.T) {
	store := newMockStore()
	activities := newTestActivities(&mockPipeline{}, store, natspkg.NewMockPublisher())

	slot := int64(9000)
	input := WriteJournalInput{
		Signature:      "sig-journal-1",
		Method:         "record_action",
		ProgramAddress: ZeroFunProgramAddress,
		Network:        "devnet",
		Payer:          testPubkey(t),
		Status:         "finalized",
		Slot:           &slot,
	}

	result, err := activities.WriteJournal(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, result.Created)

	inv, err := store.GetInvocation(context.Background(), "sig-journal-1")
	require.NoError(t, err)
	assert.Equal(t, "finalized", inv.Status)
	require.NotNil(t, inv.Slot)
	assert.Equal(t, slot, *inv.Slot)

	// Replaying the journal write converges instead of duplicating.
	result, err = activities.WriteJournal(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, result.Created)
}

func TestWriteJournal_StoreError(t *testing.T) {
	store := newMockStore()
	store.createErr = errors.New("connection refused")
	activities := newTestActivities(&mockPipeline{}, store, natspkg.NewMockPublisher())

	_, err := activities.WriteJournal(context.Background(), WriteJournalInput{Signature: "sig-x"})
	assert.Error(t, err)
}

func TestPublishEvent(t *testing.T) {
	store := newMockStore()
	publisher := natspkg.NewMockPublisher()
	activities := newTestActivities(&mockPipeline{}, store, publisher)

	payer := testPubkey(t)
	_, _, err := store.CreateInvocation(context.Background(), db.CreateInvocationParams{
		Signature:      "sig-pub-1",
		Method:         "withdraw",
		ProgramAddress: ZeroFunProgramAddress,
		Network:        "mainnet",
		Payer:          payer,
		Status:         "finalized",
	})
	require.NoError(t, err)

	err = activities.PublishEvent(context.Background(), PublishEventInput{Signature: "sig-pub-1"})
	require.NoError(t, err)

	events := publisher.GetPublishedEventsForMethod("withdraw")
	require.Len(t, events, 1)
	assert.Equal(t, "sig-pub-1", events[0].Signature)
	assert.Equal(t, payer, events[0].Payer)
	assert.Equal(t, "finalized", events[0].Status)
	assert.False(t, events[0].PublishedAt.IsZero())
}

func TestPublishEvent_UnknownSignature(t *testing.T) {
	activities := newTestActivities(&mockPipeline{}, newMockStore(), natspkg.NewMockPublisher())

	err := activities.PublishEvent(context.Background(), PublishEventInput{Signature: "sig-missing"})
	assert.ErrorIs(t, err, db.ErrNotFound)
}
