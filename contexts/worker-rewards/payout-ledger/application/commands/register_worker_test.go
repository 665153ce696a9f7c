package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/memory"
	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/solana"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/commands"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
)

func newRegisterUseCase(store *memory.Store) commands.RegisterWorkerUseCase {
	return commands.RegisterWorkerUseCase{
		Workers: store,
		Wallets: solana.WalletValidator{},
		Clock:   store,
		IDGen:   store,
	}
}

func TestRegisterWorkerFindOrCreate(t *testing.T) {
	store := memory.NewStore()
	useCase := newRegisterUseCase(store)
	wallet := solana.EncodePublicKey(bytes.Repeat([]byte{9}, solana.PublicKeyLength))
	ctx := context.Background()

	first, err := useCase.Execute(ctx, commands.RegisterWorkerCommand{Wallet: wallet})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !first.Created || first.Worker.PendingAmount != 0 || first.Worker.LockedAmount != 0 {
		t.Fatalf("unexpected new worker: %+v", first)
	}

	second, err := useCase.Execute(ctx, commands.RegisterWorkerCommand{Wallet: wallet})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if second.Created || second.Worker.WorkerID != first.Worker.WorkerID {
		t.Fatalf("expected existing worker, got %+v", second)
	}
}

func TestRegisterWorkerRejectsInvalidWallet(t *testing.T) {
	store := memory.NewStore()
	_, err := newRegisterUseCase(store).Execute(context.Background(), commands.RegisterWorkerCommand{Wallet: "not-a-key"})
	if !errors.Is(err, domainerrors.ErrInvalidWallet) {
		t.Fatalf("expected ErrInvalidWallet, got %v", err)
	}
}
