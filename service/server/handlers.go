package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/abelmarnk/zero-fun/service/db"
	"github.com/abelmarnk/zero-fun/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for an invocation request
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxMethodLength    = 64
	maxListLimit       = 500
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

	// Method names are snake_case identifiers.
	validMethodRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// invocationResponse is the JSON shape of a journaled invocation.
type invocationResponse struct {
	Signature      string    `json:"signature"`
	Method         string    `json:"method"`
	ProgramAddress string    `json:"program_address"`
	Network        string    `json:"network"`
	Payer          string    `json:"payer"`
	Status         string    `json:"status"`
	Error          *string   `json:"error,omitempty"`
	Slot           *int64    `json:"slot,omitempty"`
	WorkflowID     *string   `json:"workflow_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func invocationToResponse(inv *db.Invocation) invocationResponse {
	return invocationResponse{
		Signature:      inv.Signature,
		Method:         inv.Method,
		ProgramAddress: inv.ProgramAddress,
		Network:        inv.Network,
		Payer:          inv.Payer,
		Status:         inv.Status,
		Error:          inv.Error,
		Slot:           inv.Slot,
		WorkflowID:     inv.WorkflowID,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

// handleCreateInvocation returns a handler that runs or enqueues an invocation.
// POST /api/v1/invocations
//
// With "async": true the handler returns 202 with the workflow identifiers as
// soon as the workflow is started; otherwise it waits for the terminal outcome.
func handleCreateInvocation(workflow WorkflowStarter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Method   string   `json:"method"`
			Network  string   `json:"network"` // "mainnet" or "devnet"
			Args     []string `json:"args"`
			Accounts []string `json:"accounts"`
			Payer    string   `json:"payer"`
			Async    bool     `json:"async"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode invocation request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateMethod(req.Method); err != nil {
			logger.Debug("invalid method", "method", req.Method, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateNetwork(req.Network); err != nil {
			logger.Debug("invalid network", "network", req.Network, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.Payer); err != nil {
			logger.Debug("invalid payer", "payer", req.Payer, "error", err)
			writeError(w, fmt.Sprintf("payer: %s", err.Error()), http.StatusBadRequest)
			return
		}
		for _, account := range req.Accounts {
			if err := validateAddress(account); err != nil {
				logger.Debug("invalid account", "account", account, "error", err)
				writeError(w, fmt.Sprintf("account %q: %s", account, err.Error()), http.StatusBadRequest)
				return
			}
		}

		input := temporal.InvokeMethodInput{
			Method:   req.Method,
			Network:  req.Network,
			Args:     req.Args,
			Accounts: req.Accounts,
			Payer:    req.Payer,
		}

		run, err := workflow.StartInvocation(r.Context(), input)
		if err != nil {
			logger.Error("failed to start invocation workflow",
				"method", req.Method,
				"error", err,
			)
			writeError(w, "failed to start invocation", http.StatusInternalServerError)
			return
		}

		if req.Async {
			logger.Info("invocation enqueued",
				"method", req.Method,
				"workflow_id", run.GetID(),
			)
			writeJSON(w, map[string]interface{}{
				"workflow_id": run.GetID(),
				"run_id":      run.GetRunID(),
			}, http.StatusAccepted)
			return
		}

		var result temporal.InvokeMethodResult
		if err := run.Get(r.Context(), &result); err != nil {
			// The workflow surfaces on-chain rejections and unretryable input
			// problems as failures; the journal still has the full record for
			// outcomes that produced a signature.
			logger.Info("invocation failed",
				"method", req.Method,
				"workflow_id", run.GetID(),
				"error", err,
			)
			writeJSON(w, map[string]interface{}{
				"workflow_id": run.GetID(),
				"error":       err.Error(),
			}, http.StatusUnprocessableEntity)
			return
		}

		logger.Info("invocation completed",
			"method", req.Method,
			"signature", result.Signature,
			"status", result.Status,
		)
		writeJSON(w, map[string]interface{}{
			"workflow_id": run.GetID(),
			"signature":   result.Signature,
			"slot":        result.Slot,
			"status":      result.Status,
		}, http.StatusOK)
	})
}

// handleGetInvocation returns a handler that retrieves one journaled invocation.
// GET /api/v1/invocations/{signature}
func handleGetInvocation(store InvocationStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature := r.PathValue("signature")

		if err := validateAddress(signature); err != nil {
			logger.Debug("invalid signature", "signature", signature, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		inv, err := store.GetInvocation(r.Context(), signature)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "invocation not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get invocation", "signature", signature, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, invocationToResponse(inv), http.StatusOK)
	})
}

// handleListInvocations returns a handler that lists journaled invocations.
// GET /api/v1/invocations?method={m}&network={n}&status={s}&limit={l}&offset={o}
func handleListInvocations(store InvocationStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		params := db.ListInvocationsParams{
			Method:  q.Get("method"),
			Network: q.Get("network"),
			Status:  q.Get("status"),
		}

		if params.Method != "" {
			if err := validateMethod(params.Method); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if params.Network != "" {
			if err := validateNetwork(params.Network); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit, err := parseQueryInt(q.Get("limit"), 50)
		if err != nil || limit < 0 || limit > maxListLimit {
			writeError(w, fmt.Sprintf("invalid limit: must be an integer between 0 and %d", maxListLimit), http.StatusBadRequest)
			return
		}
		offset, err := parseQueryInt(q.Get("offset"), 0)
		if err != nil || offset < 0 {
			writeError(w, "invalid offset: must be a non-negative integer", http.StatusBadRequest)
			return
		}
		params.Limit = int32(limit)
		params.Offset = int32(offset)

		invocations, err := store.ListInvocations(r.Context(), params)
		if err != nil {
			logger.Error("failed to list invocations", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("invocations listed", "count", len(invocations))

		resp := make([]invocationResponse, len(invocations))
		for i, inv := range invocations {
			resp[i] = invocationToResponse(inv)
		}

		writeJSON(w, map[string]interface{}{
			"invocations": resp,
		}, http.StatusOK)
	})
}

// handleInvocationStats returns per-status invocation counts.
// GET /api/v1/invocations/stats
func handleInvocationStats(store InvocationStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counts, err := store.CountInvocationsByStatus(r.Context())
		if err != nil {
			logger.Error("failed to count invocations", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"counts": counts,
		}, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a base58 address or signature for format and safety.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid address: must be base58")
	}

	return nil
}

// validateMethod validates a program method name.
func validateMethod(method string) error {
	if method == "" {
		return fmt.Errorf("method is required")
	}
	if len(method) > maxMethodLength {
		return fmt.Errorf("method too long: maximum length is %d characters", maxMethodLength)
	}
	if !validMethodRegex.MatchString(method) {
		return fmt.Errorf("invalid method: must be a snake_case identifier")
	}
	return nil
}

// validateNetwork validates the target network.
func validateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("network is required")
	}
	if network != "mainnet" && network != "devnet" {
		return fmt.Errorf("invalid network: must be 'mainnet' or 'devnet'")
	}
	return nil
}

func parseQueryInt(value string, defaultValue int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
