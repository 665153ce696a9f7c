package solana

import (
	"bytes"
	"errors"
	"testing"

	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
)

func TestValidateWalletAcceptsThirtyTwoByteKeys(t *testing.T) {
	wallet := EncodePublicKey(bytes.Repeat([]byte{7}, PublicKeyLength))
	if err := (WalletValidator{}).ValidateWallet(wallet); err != nil {
		t.Fatalf("expected valid wallet, got %v", err)
	}
}

func TestValidateWalletRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"0OIl",
		EncodePublicKey(bytes.Repeat([]byte{1}, 20)),
		EncodePublicKey(bytes.Repeat([]byte{1}, 64)),
	}
	for _, wallet := range cases {
		err := (WalletValidator{}).ValidateWallet(wallet)
		if !errors.Is(err, domainerrors.ErrInvalidWallet) {
			t.Fatalf("wallet %q: expected ErrInvalidWallet, got %v", wallet, err)
		}
	}
}
