package tx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/wallet"
)

// Relayer signs and broadcasts prepared calls with a server-held key, for
// demos where the user has no browser wallet.
type Relayer struct {
	backend chain.Backend
	signer  wallet.Signer
	chainID *big.Int
	policy  Policy
}

// NewRelayer returns a relayer sending from signer's address.
func NewRelayer(backend chain.Backend, signer wallet.Signer, chainID *big.Int, policy Policy) *Relayer {
	return &Relayer{
		backend: backend,
		signer:  signer,
		chainID: chainID,
		policy:  policy,
	}
}

// Address returns the account the relayer sends from.
func (r *Relayer) Address() common.Address {
	return r.signer.Address()
}

// Send builds, signs and broadcasts p, returning the transaction hash.
func (r *Relayer) Send(ctx context.Context, p *PreparedTransaction) (common.Hash, error) {
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	req := Request{
		From:     r.signer.Address(),
		To:       p.To,
		ValueWei: value,
		Data:     p.Data,
	}
	if err := Validate(req, r.policy); err != nil {
		return common.Hash{}, fmt.Errorf("relayer policy: %w", err)
	}

	unsigned, _, err := BuildUnsignedTx(ctx, r.backend, r.chainID, req)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := r.signer.SignTransaction(unsigned, r.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}

	if err := r.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send: %w", err)
	}
	return signed.Hash(), nil
}
