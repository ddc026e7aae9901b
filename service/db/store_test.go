package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInvocationParams(sig string) CreateInvocationParams {
	return CreateInvocationParams{
		Signature:      sig,
		Method:         "record_action",
		ProgramAddress: "5e4vTmm5pcUFHPr34rtrpu33kXC5nG4eN7JmkHhJpJsP",
		Network:        "devnet",
		Payer:          "4w5ezXcjV8RdJLPAQmwVonevgUVfuAZSDMdWtURc1CRY",
		Status:         "pending",
	}
}

func TestCreateInvocation(t *testing.T) {
	SkipIfNoTestDB(t)
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()

	inv, created, err := ts.CreateInvocation(ctx, testInvocationParams("sig-create-1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sig-create-1", inv.Signature)
	assert.Equal(t, "record_action", inv.Method)
	assert.Equal(t, "pending", inv.Status)
	assert.Nil(t, inv.Error)
	assert.Nil(t, inv.Slot)
	assert.False(t, inv.CreatedAt.IsZero())
}

func TestCreateInvocation_DuplicateSignatureIsNoop(t *testing.T) {
	SkipIfNoTestDB(t)
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()

	first, created, err := ts.CreateInvocation(ctx, testInvocationParams("sig-dup-1"))
	require.NoError(t, err)
	require.True(t, created)

	// Same signature again: the existing row comes back untouched.
	params := testInvocationParams("sig-dup-1")
	params.Status = "finalized"
	second, created, err := ts.CreateInvocation(ctx, params)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Signature, second.Signature)
	assert.Equal(t, "pending", second.Status)
}

func TestUpdateInvocationStatus(t *testing.T) {
	SkipIfNoTestDB(t)
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()

	_, _, err := ts.CreateInvocation(ctx, testInvocationParams("sig-update-1"))
	require.NoError(t, err)

	slot := int64(312_456_789)
	inv, err := ts.UpdateInvocationStatus(ctx, "sig-update-1", "finalized", nil, &slot)
	require.NoError(t, err)
	assert.Equal(t, "finalized", inv.Status)
	require.NotNil(t, inv.Slot)
	assert.Equal(t, slot, *inv.Slot)
	assert.True(t, inv.UpdatedAt.After(inv.CreatedAt) || inv.UpdatedAt.Equal(inv.CreatedAt))

	// A later update without a slot keeps the recorded slot.
	reason := "custom program error 6016: GameNotActive"
	inv, err = ts.UpdateInvocationStatus(ctx, "sig-update-1", "failed", &reason, nil)
	require.NoError(t, err)
	assert.Equal(t, "failed", inv.Status)
	require.NotNil(t, inv.Error)
	assert.Contains(t, *inv.Error, "GameNotActive")
	require.NotNil(t, inv.Slot)
	assert.Equal(t, slot, *inv.Slot)
}

func TestUpdateInvocationStatus_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	_, err := ts.UpdateInvocationStatus(context.Background(), "sig-missing", "finalized", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetInvocation_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	_, err := ts.GetInvocation(context.Background(), "sig-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListInvocations_Filters(t *testing.T) {
	SkipIfNoTestDB(t)
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		params := testInvocationParams(fmt.Sprintf("sig-list-ra-%d", i))
		_, _, err := ts.CreateInvocation(ctx, params)
		require.NoError(t, err)
	}
	withdraw := testInvocationParams("sig-list-w-0")
	withdraw.Method = "withdraw"
	withdraw.Status = "finalized"
	_, _, err := ts.CreateInvocation(ctx, withdraw)
	require.NoError(t, err)

	all, err := ts.ListInvocations(ctx, ListInvocationsParams{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byMethod, err := ts.ListInvocations(ctx, ListInvocationsParams{Method: "withdraw"})
	require.NoError(t, err)
	require.Len(t, byMethod, 1)
	assert.Equal(t, "sig-list-w-0", byMethod[0].Signature)

	byStatus, err := ts.ListInvocations(ctx, ListInvocationsParams{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, byStatus, 3)

	paged, err := ts.ListInvocations(ctx, ListInvocationsParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 2)
}

func TestCountInvocationsByStatus(t *testing.T) {
	SkipIfNoTestDB(t)
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := ts.CreateInvocation(ctx, testInvocationParams(fmt.Sprintf("sig-count-%d", i)))
		require.NoError(t, err)
	}
	done := testInvocationParams("sig-count-done")
	done.Status = "finalized"
	_, _, err := ts.CreateInvocation(ctx, done)
	require.NoError(t, err)

	counts, err := ts.CountInvocationsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["pending"])
	assert.Equal(t, int64(1), counts["finalized"])
}
