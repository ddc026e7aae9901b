package solana

import (
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ZeroFunProgramID is the deployed zero-fun program.
var ZeroFunProgramID = solana.MustPublicKeyFromBase58("5e4vTmm5pcUFHPr34rtrpu33kXC5nG4eN7JmkHhJpJsP")

// ArgSpec declares one argument in a method's signature.
type ArgSpec struct {
	Name string
	Kind ArgKind
}

// AccountSpec declares one account reference in a method's account list, in
// the order the program expects them.
type AccountSpec struct {
	Name     string
	Writable bool
	Signer   bool
}

// MethodDescriptor is the resolved schema for one program method: its anchor
// discriminator, ordered argument types, and ordered account references.
type MethodDescriptor struct {
	Name     string
	Args     []ArgSpec
	Accounts []AccountSpec

	discriminator [8]byte
}

// Discriminator returns the 8-byte anchor method discriminator.
func (d *MethodDescriptor) Discriminator() [8]byte {
	return d.discriminator
}

// anchorDiscriminator computes the anchor instruction discriminator: the
// first 8 bytes of sha256("global:<method>").
func anchorDiscriminator(method string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + method))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// Program is a descriptor catalog for one deployed program.
type Program struct {
	ID      solana.PublicKey
	methods map[string]*MethodDescriptor
}

// NewProgram builds a Program from a set of method descriptors, computing
// each discriminator from the method name.
func NewProgram(id solana.PublicKey, descriptors ...*MethodDescriptor) *Program {
	methods := make(map[string]*MethodDescriptor, len(descriptors))
	for _, d := range descriptors {
		d.discriminator = anchorDiscriminator(d.Name)
		methods[d.Name] = d
	}
	return &Program{ID: id, methods: methods}
}

// Method resolves a descriptor by name.
func (p *Program) Method(name string) (*MethodDescriptor, error) {
	d, ok := p.methods[name]
	if !ok {
		return nil, fmt.Errorf("program %s has no method %q", p.ID, name)
	}
	return d, nil
}

// MethodNames returns the catalog's method names, useful for CLI help output.
func (p *Program) MethodNames() []string {
	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	return names
}

// ZeroFun catalogs the zero-fun program's methods. Argument order and account
// order follow the program's instruction definitions exactly.
func ZeroFun() *Program {
	return NewProgram(ZeroFunProgramID,
		&MethodDescriptor{
			Name: "initialize_global_state",
			Args: []ArgSpec{
				{Name: "max_deposit", Kind: KindU8},
				{Name: "max_payout", Kind: KindU8},
				{Name: "initial_state", Kind: KindEnum},
			},
			Accounts: []AccountSpec{
				{Name: "global_state", Writable: true},
				{Name: "initializer", Writable: true, Signer: true},
				{Name: "vault", Writable: true},
				{Name: "message_signer", Signer: true},
				{Name: "admin", Signer: true},
				{Name: "system_program"},
			},
		},
		&MethodDescriptor{
			Name: "update_global_state",
			Args: []ArgSpec{
				{Name: "update", Kind: KindEnum},
			},
			Accounts: []AccountSpec{
				{Name: "global_state", Writable: true},
				{Name: "admin", Signer: true},
			},
		},
		&MethodDescriptor{
			Name: "initialize_game",
			Args: []ArgSpec{
				{Name: "public_config_seed", Kind: KindBytes32},
				{Name: "game_metadata", Kind: KindString},
				{Name: "deposit", Kind: KindU64},
			},
			Accounts: []AccountSpec{
				{Name: "game_session", Writable: true},
				{Name: "player", Writable: true, Signer: true},
				{Name: "user_vault", Writable: true},
				{Name: "vault"},
				{Name: "global_state"},
				{Name: "system_program"},
			},
		},
		&MethodDescriptor{
			Name: "record_action",
			Args: []ArgSpec{
				{Name: "action", Kind: KindU8},
			},
			Accounts: []AccountSpec{
				{Name: "player", Signer: true},
				{Name: "global_state"},
				{Name: "game_session", Writable: true},
			},
		},
		&MethodDescriptor{
			Name: "default_game",
			Accounts: []AccountSpec{
				{Name: "game_session", Writable: true},
				{Name: "player", Writable: true, Signer: true},
				{Name: "user_vault", Writable: true},
				{Name: "global_state"},
				{Name: "system_program"},
			},
		},
		&MethodDescriptor{
			Name: "mark_game_as_won",
			Accounts: []AccountSpec{
				{Name: "game_session", Writable: true},
				{Name: "player", Signer: true},
				{Name: "global_state"},
			},
		},
		&MethodDescriptor{
			Name: "finalize_game_as_won",
			Args: []ArgSpec{
				{Name: "payout", Kind: KindU64},
				{Name: "deadline", Kind: KindI64},
			},
			Accounts: []AccountSpec{
				{Name: "game_session", Writable: true},
				{Name: "player", Writable: true, Signer: true},
				{Name: "user_vault", Writable: true},
				{Name: "vault", Writable: true},
				{Name: "global_state"},
				{Name: "system_program"},
				{Name: "instructions_sysvar"},
			},
		},
		&MethodDescriptor{
			Name: "finalize_game_as_won_for_player",
			Args: []ArgSpec{
				{Name: "payout", Kind: KindU64},
			},
			Accounts: []AccountSpec{
				{Name: "game_session", Writable: true},
				{Name: "player", Writable: true, Signer: true},
				{Name: "user_vault", Writable: true},
				{Name: "vault", Writable: true},
				{Name: "global_state"},
				{Name: "admin", Signer: true},
				{Name: "system_program"},
				{Name: "instructions_sysvar"},
			},
		},
		&MethodDescriptor{
			Name: "finalize_game_as_lost",
			Args: []ArgSpec{
				{Name: "private_config_seed", Kind: KindBytes32},
				{Name: "fail_position", Kind: KindU8},
			},
			Accounts: []AccountSpec{
				{Name: "game_session", Writable: true},
				{Name: "player", Writable: true, Signer: true},
				{Name: "user_vault", Writable: true},
				{Name: "vault", Writable: true},
				{Name: "global_state"},
				{Name: "system_program"},
			},
		},
		&MethodDescriptor{
			Name: "withdraw",
			Args: []ArgSpec{
				{Name: "amount", Kind: KindU64},
			},
			Accounts: []AccountSpec{
				{Name: "global_state"},
				{Name: "vault", Writable: true},
				{Name: "recipient", Writable: true},
				{Name: "admin", Signer: true},
				{Name: "system_program"},
			},
		},
	)
}

// PDA helpers for the zero-fun account layout.

// GlobalStatePDA derives the singleton global state account.
func GlobalStatePDA(program solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("global-state")}, program)
	return addr, err
}

// VaultPDA derives the global vault account.
func VaultPDA(program solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("vault")}, program)
	return addr, err
}

// GameSessionPDA derives a player's game session account. The seed is the
// session's public config seed, which makes the address unique per game.
func GameSessionPDA(program solana.PublicKey, publicConfigSeed [32]byte, player solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("game-session"), publicConfigSeed[:], player.Bytes()},
		program,
	)
	return addr, err
}

// UserVaultPDA derives the per-session deposit vault for a player.
func UserVaultPDA(program solana.PublicKey, publicConfigSeed [32]byte, player solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("vault"), publicConfigSeed[:], player.Bytes()},
		program,
	)
	return addr, err
}
