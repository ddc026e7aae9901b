package solana

import (
	"github.com/gagliardetto/solana-go"
)

// ConfirmationStatus describes how far a submitted transaction has progressed
// through the cluster's commitment levels.
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"
	StatusProcessed ConfirmationStatus = "processed"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFinalized ConfirmationStatus = "finalized"
	StatusFailed    ConfirmationStatus = "failed"
	StatusNotFound  ConfirmationStatus = "not-found"
)

// Terminal reports whether the status can no longer change.
func (s ConfirmationStatus) Terminal() bool {
	return s == StatusFinalized || s == StatusFailed || s == StatusNotFound
}

// MethodCall is a single request to invoke a program method. It is immutable
// once constructed: the pipeline never mutates it, so the same call can be
// invoked again after a timeout to produce a fresh transaction.
type MethodCall struct {
	Method   string
	Args     []Arg
	Accounts []*solana.AccountMeta
	Payer    solana.PublicKey
}

// SubmissionResult identifies a transaction accepted by the cluster. The
// signature is derived from the signed transaction bytes, so resubmitting the
// same bytes always yields the same result.
type SubmissionResult struct {
	Signature solana.Signature
	Slot      uint64
	Status    ConfirmationStatus
}

// ArgKind enumerates the borsh-encodable argument types the zero-fun program
// family uses.
type ArgKind int

const (
	KindU8 ArgKind = iota
	KindU64
	KindI64
	KindBool
	KindBytes32
	KindString
	KindPublicKey
	KindEnum
)

func (k ArgKind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU64:
		return "u64"
	case KindI64:
		return "i64"
	case KindBool:
		return "bool"
	case KindBytes32:
		return "[32]u8"
	case KindString:
		return "string"
	case KindPublicKey:
		return "pubkey"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Arg is a single typed argument. The Value must match the Kind; the encoder
// rejects mismatches before anything is signed or sent.
type Arg struct {
	Kind  ArgKind
	Value any
}

// EnumValue is the value carried by a KindEnum argument: a variant index plus
// the variant's payload fields, if any.
type EnumValue struct {
	Variant uint8
	Fields  []Arg
}

// Argument constructors. These keep call sites readable and make the
// kind/value pairing impossible to get wrong.

func U8(v uint8) Arg                { return Arg{Kind: KindU8, Value: v} }
func U64(v uint64) Arg              { return Arg{Kind: KindU64, Value: v} }
func I64(v int64) Arg               { return Arg{Kind: KindI64, Value: v} }
func Bool(v bool) Arg               { return Arg{Kind: KindBool, Value: v} }
func Bytes32(v [32]byte) Arg        { return Arg{Kind: KindBytes32, Value: v} }
func String(v string) Arg           { return Arg{Kind: KindString, Value: v} }
func Pubkey(v solana.PublicKey) Arg { return Arg{Kind: KindPublicKey, Value: v} }

// Enum builds an enum argument from a variant index and its payload fields.
func Enum(variant uint8, fields ...Arg) Arg {
	return Arg{Kind: KindEnum, Value: EnumValue{Variant: variant, Fields: fields}}
}

// Meta builds an account reference for a method call.
func Meta(key solana.PublicKey, writable, signer bool) *solana.AccountMeta {
	return &solana.AccountMeta{PublicKey: key, IsWritable: writable, IsSigner: signer}
}
