package solana

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// encodeInstructionData serializes a method call's arguments to the anchor
// wire format: the 8-byte discriminator followed by the borsh-encoded
// arguments in declaration order.
//
// Any mismatch between the supplied arguments and the descriptor's schema is
// an *EncodingError; nothing is signed or transmitted in that case.
func encodeInstructionData(desc *MethodDescriptor, args []Arg) ([]byte, error) {
	if len(args) != len(desc.Args) {
		return nil, &EncodingError{
			Method: desc.Name,
			Reason: fmt.Sprintf("expected %d argument(s), got %d", len(desc.Args), len(args)),
		}
	}

	buf := new(bytes.Buffer)
	disc := desc.Discriminator()
	buf.Write(disc[:])

	enc := bin.NewBorshEncoder(buf)
	for i, arg := range args {
		spec := desc.Args[i]
		if arg.Kind != spec.Kind {
			return nil, &EncodingError{
				Method: desc.Name,
				Reason: fmt.Sprintf("argument %q: expected %s, got %s", spec.Name, spec.Kind, arg.Kind),
			}
		}
		if err := encodeArg(enc, arg); err != nil {
			return nil, &EncodingError{
				Method: desc.Name,
				Reason: fmt.Sprintf("argument %q: %v", spec.Name, err),
			}
		}
	}

	return buf.Bytes(), nil
}

func encodeArg(enc *bin.Encoder, arg Arg) error {
	switch arg.Kind {
	case KindU8:
		v, ok := arg.Value.(uint8)
		if !ok {
			return fmt.Errorf("value %T is not uint8", arg.Value)
		}
		return enc.WriteUint8(v)
	case KindU64:
		v, ok := arg.Value.(uint64)
		if !ok {
			return fmt.Errorf("value %T is not uint64", arg.Value)
		}
		return enc.WriteUint64(v, binary.LittleEndian)
	case KindI64:
		v, ok := arg.Value.(int64)
		if !ok {
			return fmt.Errorf("value %T is not int64", arg.Value)
		}
		return enc.WriteInt64(v, binary.LittleEndian)
	case KindBool:
		v, ok := arg.Value.(bool)
		if !ok {
			return fmt.Errorf("value %T is not bool", arg.Value)
		}
		return enc.WriteBool(v)
	case KindBytes32:
		v, ok := arg.Value.([32]byte)
		if !ok {
			return fmt.Errorf("value %T is not [32]byte", arg.Value)
		}
		// Fixed-size array: no length prefix.
		return enc.WriteBytes(v[:], false)
	case KindString:
		v, ok := arg.Value.(string)
		if !ok {
			return fmt.Errorf("value %T is not string", arg.Value)
		}
		return enc.WriteString(v)
	case KindPublicKey:
		v, ok := arg.Value.(solana.PublicKey)
		if !ok {
			return fmt.Errorf("value %T is not a public key", arg.Value)
		}
		return enc.WriteBytes(v.Bytes(), false)
	case KindEnum:
		v, ok := arg.Value.(EnumValue)
		if !ok {
			return fmt.Errorf("value %T is not an enum value", arg.Value)
		}
		if err := enc.WriteUint8(v.Variant); err != nil {
			return err
		}
		for _, field := range v.Fields {
			if err := encodeArg(enc, field); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported argument kind %d", arg.Kind)
	}
}
