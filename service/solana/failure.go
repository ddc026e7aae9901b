package solana

import (
	"fmt"
	"strings"
)

// zeroFunErrors maps the zero-fun program's custom error codes (anchor
// error_code enums start at 6000) to their declared messages. Used to turn an
// opaque on-chain rejection into a reason a caller can act on.
var zeroFunErrors = map[int]string{
	6000: "GameSessionAlreadyFinalized: the game session has already been finalized",
	6001: "GameSessionNotWon: the game session is not won yet",
	6002: "InvalidVault: the provided vault does not match the expected vault",
	6003: "InvalidED25519Program: expected ED25519 program",
	6004: "InvalidAccountCountForED25519Program: invalid account count for ED25519 program",
	6005: "InvalidDataForED25519Program: invalid data for ED25519 program",
	6006: "InvalidMessageSigner: invalid message signer",
	6007: "DepositExceedsMaximum: the deposit exceeds the maximum allowed deposit",
	6008: "PayoutExceedsMaximum: the payout exceeds the maximum allowed payout",
	6009: "GameSessionNotActive: the game session is not active",
	6010: "InvalidCommitment: the provided commitment does not match the expected commitment",
	6011: "DeadlinePassed: the deadline for this action has passed",
	6012: "MetadataTooLong: the provided game metadata exceeds the maximum allowed length",
	6013: "InvalidPlayer: the provided player does not match the game session's player",
	6014: "InvalidAdmin: invalid admin",
	6015: "InvalidBootstrapKey: invalid bootstrap key",
	6016: "GameNotActive: the game is not currently active",
	6017: "MaxMoveReached: max moves already reached",
	6018: "TooSoonToDefault: too soon to default",
	6019: "InvalidGameSeed: invalid game seed",
	6020: "InvalidFailPosition: invalid fail position",
}

// decodeTransactionError renders a node-reported transaction error as a
// human-readable reason. The RPC layer surfaces errors as loosely typed JSON,
// typically {"InstructionError": [index, {"Custom": code}]}.
func decodeTransactionError(txErr any) string {
	if txErr == nil {
		return ""
	}

	if m, ok := txErr.(map[string]any); ok {
		if instErr, ok := m["InstructionError"]; ok {
			if parts, ok := instErr.([]any); ok && len(parts) == 2 {
				if inner, ok := parts[1].(map[string]any); ok {
					if codeVal, ok := inner["Custom"]; ok {
						code := toInt(codeVal)
						if msg, ok := zeroFunErrors[code]; ok {
							return msg
						}
						return fmt.Sprintf("custom program error %d", code)
					}
				}
				// Non-custom instruction errors come through as plain strings
				// (e.g. "PrivilegeEscalation").
				if s, ok := parts[1].(string); ok {
					return fmt.Sprintf("instruction error: %s", s)
				}
			}
		}
	}

	return fmt.Sprintf("%v", txErr)
}

// toInt converts the number types json decoding can produce.
func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	default:
		return -1
	}
}

// isAlreadyProcessed reports whether a send error means the cluster has
// already seen these exact signed bytes. Because the signature is derived
// from the bytes, this is the nominal path after a lost acknowledgement, not
// a failure.
func isAlreadyProcessed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already been processed") ||
		strings.Contains(msg, "AlreadyProcessed")
}

// isTransientSendError reports whether a submission failure is worth
// retrying: network trouble, rate limiting, or a node that is catching up.
// Anything else (malformed transaction, signature verification failure,
// invalid account) is permanent for these bytes.
func isTransientSendError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"429",
		"Too Many Requests",
		"connection refused",
		"connection reset",
		"i/o timeout",
		"context deadline exceeded",
		"Node is behind",
		"node is unhealthy",
		"Transaction simulation failed: Blockhash not found",
		"service unavailable",
		"EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
