package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_Sync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/v1/invocations", r.URL.Path)

		var req InvokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "record_action", req.Method)
		assert.Equal(t, []string{"5"}, req.Args)
		assert.False(t, req.Async)

		json.NewEncoder(w).Encode(InvokeResult{
			WorkflowID: "wf-1",
			Signature:  "sig-client-1",
			Slot:       9000,
			Status:     "finalized",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	result, err := c.Invoke(context.Background(), InvokeRequest{
		Method:   "record_action",
		Network:  "devnet",
		Args:     []string{"5"},
		Accounts: []string{"a", "b", "c"},
		Payer:    "payer",
	})
	require.NoError(t, err)
	assert.Equal(t, "sig-client-1", result.Signature)
	assert.Equal(t, "finalized", result.Status)
	assert.Equal(t, int64(9000), result.Slot)
}

func TestInvoke_AsyncAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(InvokeResult{WorkflowID: "wf-2", RunID: "run-2"})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	result, err := c.Invoke(context.Background(), InvokeRequest{Method: "withdraw", Async: true})
	require.NoError(t, err)
	assert.Equal(t, "wf-2", result.WorkflowID)
	assert.Equal(t, "run-2", result.RunID)
	assert.Empty(t, result.Signature)
}

func TestInvoke_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "custom program error 6016: GameNotActive"})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.Invoke(context.Background(), InvokeRequest{Method: "record_action"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GameNotActive")
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/invocations/sig-get-1", r.URL.Path)
		json.NewEncoder(w).Encode(Invocation{
			Signature: "sig-get-1",
			Method:    "withdraw",
			Status:    "finalized",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	inv, err := c.Get(context.Background(), "sig-get-1")
	require.NoError(t, err)
	assert.Equal(t, "withdraw", inv.Method)
	assert.True(t, inv.Terminal())
}

func TestGet_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "invocation not found"})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.Get(context.Background(), "sig-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invocation not found")
}

func TestList_Filters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "withdraw", r.URL.Query().Get("method"))
		assert.Equal(t, "mainnet", r.URL.Query().Get("network"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"invocations": []Invocation{{Signature: "sigA"}, {Signature: "sigB"}},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	invocations, err := c.List(context.Background(), ListInvocationsOptions{
		Method:  "withdraw",
		Network: "mainnet",
		Limit:   25,
	})
	require.NoError(t, err)
	assert.Len(t, invocations, 2)
}

func TestAwait_PollsUntilTerminal(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		status := "confirmed"
		if n >= 3 {
			status = "finalized"
		}
		json.NewEncoder(w).Encode(Invocation{Signature: "sig-await-1", Status: status})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	inv, err := c.Await(context.Background(), "sig-await-1", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "finalized", inv.Status)
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
}

func TestAwait_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Invocation{Signature: "sig-await-2", Status: "pending"})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(server.URL, nil, nil)
	_, err := c.Await(ctx, "sig-await-2", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
