package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMethod(t *testing.T, name string) *MethodDescriptor {
	t.Helper()
	desc, err := ZeroFun().Method(name)
	require.NoError(t, err)
	return desc
}

func TestEncodeInstructionData_RecordAction(t *testing.T) {
	desc := mustMethod(t, "record_action")

	data, err := encodeInstructionData(desc, []Arg{U8(5)})
	require.NoError(t, err)

	// sha256("global:record_action")[:8] followed by the action byte.
	expected := []byte{153, 153, 235, 171, 52, 54, 196, 145, 5}
	assert.Equal(t, expected, data)
}

func TestEncodeInstructionData_InitializeGame(t *testing.T) {
	desc := mustMethod(t, "initialize_game")

	var seed [32]byte
	for i := range seed {
		seed[i] = byte(i)
	}

	data, err := encodeInstructionData(desc, []Arg{
		Bytes32(seed),
		String("v1"),
		U64(1_000_000),
	})
	require.NoError(t, err)

	// Discriminator for initialize_game.
	assert.Equal(t, []byte{44, 62, 102, 247, 126, 208, 130, 215}, data[:8])
	// Fixed-size seed, no length prefix.
	assert.Equal(t, seed[:], data[8:40])
	// Borsh string: u32 LE length prefix then bytes.
	assert.Equal(t, []byte{2, 0, 0, 0, 'v', '1'}, data[40:46])
	// u64 LE deposit.
	assert.Equal(t, []byte{0x40, 0x42, 0x0F, 0, 0, 0, 0, 0}, data[46:54])
	assert.Len(t, data, 54)
}

func TestEncodeInstructionData_NoArgMethods(t *testing.T) {
	for _, name := range []string{"default_game", "mark_game_as_won"} {
		desc := mustMethod(t, name)
		data, err := encodeInstructionData(desc, nil)
		require.NoError(t, err)
		// Just the discriminator.
		assert.Len(t, data, 8, name)
	}
}

func TestEncodeInstructionData_EnumWithPayload(t *testing.T) {
	desc := mustMethod(t, "update_global_state")

	newAdmin := solana.MustPublicKeyFromBase58("4w5ezXcjV8RdJLPAQmwVonevgUVfuAZSDMdWtURc1CRY")

	// GlobalStateUpdate::Admin(pubkey) is variant 0 with a 32-byte payload.
	data, err := encodeInstructionData(desc, []Arg{Enum(0, Pubkey(newAdmin))})
	require.NoError(t, err)

	assert.Equal(t, []byte{72, 50, 207, 20, 119, 37, 44, 182}, data[:8])
	assert.Equal(t, byte(0), data[8])
	assert.Equal(t, newAdmin.Bytes(), data[9:41])

	// GlobalStateUpdate::MaxDeposit(u8) is variant 2 with a u8 payload.
	data, err = encodeInstructionData(desc, []Arg{Enum(2, U8(50))})
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 50}, data[8:])
}

func TestEncodeInstructionData_CountMismatch(t *testing.T) {
	desc := mustMethod(t, "record_action")

	_, err := encodeInstructionData(desc, nil)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Contains(t, encErr.Reason, "expected 1 argument(s)")
}

func TestEncodeInstructionData_KindMismatch(t *testing.T) {
	desc := mustMethod(t, "withdraw")

	_, err := encodeInstructionData(desc, []Arg{U8(1)})
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Contains(t, encErr.Reason, "expected u64")
}

func TestEncodeInstructionData_ValueTypeMismatch(t *testing.T) {
	desc := mustMethod(t, "withdraw")

	// Kind says u64 but the value is a string; must be rejected, not coerced.
	_, err := encodeInstructionData(desc, []Arg{{Kind: KindU64, Value: "1000"}})
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
}
