package solana

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ParseArgs parses string-typed argument values against a method's schema.
// This is the boundary between wire/CLI representations (everything is a
// string) and the typed Arg values the encoder consumes. The value formats
// are:
//
//	u8, u64    decimal unsigned integer
//	i64        decimal signed integer
//	bool       "true" or "false"
//	bytes32    64 hex characters
//	string     taken verbatim
//	pubkey     base58 public key
//	enum       "<variant>" or "<variant>:<kind>=<value>[,<kind>=<value>...]"
func ParseArgs(desc *MethodDescriptor, values []string) ([]Arg, error) {
	if len(values) != len(desc.Args) {
		return nil, fmt.Errorf("method %s expects %d argument(s), got %d", desc.Name, len(desc.Args), len(values))
	}

	args := make([]Arg, len(values))
	for i, value := range values {
		arg, err := ParseArg(desc.Args[i].Kind, value)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", desc.Args[i].Name, err)
		}
		args[i] = arg
	}
	return args, nil
}

// ParseArg parses a single string value into a typed Arg.
func ParseArg(kind ArgKind, value string) (Arg, error) {
	switch kind {
	case KindU8:
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return Arg{}, fmt.Errorf("invalid u8 %q: %w", value, err)
		}
		return U8(uint8(n)), nil

	case KindU64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return Arg{}, fmt.Errorf("invalid u64 %q: %w", value, err)
		}
		return U64(n), nil

	case KindI64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Arg{}, fmt.Errorf("invalid i64 %q: %w", value, err)
		}
		return I64(n), nil

	case KindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return Arg{}, fmt.Errorf("invalid bool %q: %w", value, err)
		}
		return Bool(b), nil

	case KindBytes32:
		raw, err := hex.DecodeString(value)
		if err != nil {
			return Arg{}, fmt.Errorf("invalid hex %q: %w", value, err)
		}
		if len(raw) != 32 {
			return Arg{}, fmt.Errorf("expected 32 bytes, got %d", len(raw))
		}
		var b [32]byte
		copy(b[:], raw)
		return Bytes32(b), nil

	case KindString:
		return String(value), nil

	case KindPublicKey:
		key, err := solana.PublicKeyFromBase58(value)
		if err != nil {
			return Arg{}, fmt.Errorf("invalid public key %q: %w", value, err)
		}
		return Pubkey(key), nil

	case KindEnum:
		return parseEnum(value)

	default:
		return Arg{}, fmt.Errorf("unsupported argument kind %s", kind)
	}
}

// parseEnum parses "<variant>" or "<variant>:<kind>=<value>,...".
func parseEnum(value string) (Arg, error) {
	head, payload, hasPayload := strings.Cut(value, ":")

	variant, err := strconv.ParseUint(head, 10, 8)
	if err != nil {
		return Arg{}, fmt.Errorf("invalid enum variant %q: %w", head, err)
	}

	if !hasPayload {
		return Enum(uint8(variant)), nil
	}

	var fields []Arg
	for _, part := range strings.Split(payload, ",") {
		kindName, fieldValue, ok := strings.Cut(part, "=")
		if !ok {
			return Arg{}, fmt.Errorf("invalid enum field %q: expected <kind>=<value>", part)
		}
		kind, err := parseArgKind(kindName)
		if err != nil {
			return Arg{}, err
		}
		field, err := ParseArg(kind, fieldValue)
		if err != nil {
			return Arg{}, fmt.Errorf("enum field %q: %w", part, err)
		}
		fields = append(fields, field)
	}
	return Enum(uint8(variant), fields...), nil
}

func parseArgKind(name string) (ArgKind, error) {
	switch name {
	case "u8":
		return KindU8, nil
	case "u64":
		return KindU64, nil
	case "i64":
		return KindI64, nil
	case "bool":
		return KindBool, nil
	case "bytes32":
		return KindBytes32, nil
	case "string":
		return KindString, nil
	case "pubkey":
		return KindPublicKey, nil
	case "enum":
		return KindEnum, nil
	default:
		return 0, fmt.Errorf("unknown argument kind %q", name)
	}
}

// ParseAccounts builds the ordered account metas for a method from base58
// addresses. Writable and signer flags come from the method's account schema,
// so callers only supply addresses in schema order.
func ParseAccounts(desc *MethodDescriptor, addresses []string) ([]*solana.AccountMeta, error) {
	if len(addresses) != len(desc.Accounts) {
		return nil, fmt.Errorf("method %s expects %d account(s), got %d", desc.Name, len(desc.Accounts), len(addresses))
	}

	metas := make([]*solana.AccountMeta, len(addresses))
	for i, address := range addresses {
		key, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return nil, fmt.Errorf("account %q: invalid address %q: %w", desc.Accounts[i].Name, address, err)
		}
		spec := desc.Accounts[i]
		metas[i] = Meta(key, spec.Writable, spec.Signer)
	}
	return metas, nil
}
