package solana

import (
	"fmt"
	"strings"

	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// PublicKeyLength is the size of an ed25519 account key.
const PublicKeyLength = 32

// WalletValidator accepts base58 strings that decode to a 32-byte public key.
type WalletValidator struct{}

func (WalletValidator) ValidateWallet(wallet string) error {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return domainerrors.ErrInvalidWallet
	}
	decoded := base58.Decode(wallet)
	if len(decoded) != PublicKeyLength {
		return fmt.Errorf("%w: decoded %d bytes", domainerrors.ErrInvalidWallet, len(decoded))
	}
	return nil
}

// EncodePublicKey renders raw key bytes in wallet form.
func EncodePublicKey(key []byte) string {
	return base58.Encode(key)
}

var _ ports.WalletValidator = WalletValidator{}
