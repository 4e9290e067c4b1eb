package intent

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Intent
	}{
		{
			name: "swap with target",
			text: "swap 50 ETH for BDAG",
			want: Intent{Action: ActionSwap, Amount: "50", Token: "ETH", TargetToken: "BDAG"},
		},
		{
			name: "stake",
			text: "stake 1 ETH",
			want: Intent{Action: ActionStake, Amount: "1", Token: "ETH"},
		},
		{
			name: "unstake is detected inside the stake branch",
			text: "please unstake 2.5 usdc",
			want: Intent{Action: ActionUnstake, Amount: "2.5", Token: "USDC"},
		},
		{
			name: "exchange is a swap",
			text: "exchange 100 usdc into dai",
			want: Intent{Action: ActionSwap, Amount: "100", Token: "USDC", TargetToken: "DAI"},
		},
		{
			name: "trade with glued amount",
			text: "trade 100usdc to weth",
			want: Intent{Action: ActionSwap, Amount: "100", Token: "USDC", TargetToken: "WETH"},
		},
		{
			name: "mint",
			text: "mint an NFT for me",
			want: Intent{Action: ActionMint},
		},
		{
			name: "nft keyword alone",
			text: "I'd like a new nft",
			want: Intent{Action: ActionMint},
		},
		{
			name: "delegate with validator",
			text: "delegate to 0x8a791620dd6260079bf849dc5567adc3f2fdc318",
			want: Intent{Action: ActionDelegate, Recipient: common.HexToAddress("0x8a791620dd6260079bf849dc5567adc3f2fdc318").Hex()},
		},
		{
			name: "voting keyword",
			text: "give my voting power away",
			want: Intent{Action: ActionDelegate},
		},
		{
			name: "transfer ignores digits inside the address",
			text: "transfer 10 USDC to 0x1111111111111111111111111111111111111111",
			want: Intent{Action: ActionTransfer, Amount: "10", Token: "USDC", Recipient: "0x1111111111111111111111111111111111111111"},
		},
		{
			name: "send",
			text: "send 3 dai to 0x2222222222222222222222222222222222222222 now",
			want: Intent{Action: ActionTransfer, Amount: "3", Token: "DAI", Recipient: "0x2222222222222222222222222222222222222222"},
		},
		{
			name: "stake wins over swap",
			text: "stake then swap 5 eth",
			want: Intent{Action: ActionStake, Amount: "5", Token: "ETH"},
		},
		{
			name: "swap wins over transfer",
			text: "swap and send 5 eth for usdc",
			want: Intent{Action: ActionSwap, Amount: "5", Token: "ETH", TargetToken: "USDC"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.text))
		})
	}
}

func TestMatchUnknown(t *testing.T) {
	for _, text := range []string{"", "hello there", "what's the weather"} {
		in := Match(text)
		assert.Equal(t, ActionUnknown, in.Action, text)
		assert.NotEmpty(t, in.Error, text)
		assert.True(t, in.Failed())
	}
}

func TestLocalParser(t *testing.T) {
	p := NewLocalParser()
	ctx := context.Background()

	t.Run("confidence with amount", func(t *testing.T) {
		res := p.Parse(ctx, "stake 1 ETH")
		assert.Equal(t, SourceLocal, res.Source)
		assert.Equal(t, ConfidenceWithAmount, res.Confidence)
		assert.Contains(t, res.Explanation, "stake 1 ETH")
		assert.False(t, res.Degraded)
	})

	t.Run("confidence without amount", func(t *testing.T) {
		res := p.Parse(ctx, "mint an nft")
		assert.Equal(t, ConfidenceActionOnly, res.Confidence)
	})

	t.Run("error intent has zero confidence", func(t *testing.T) {
		res := p.Parse(ctx, "good morning")
		assert.Equal(t, ConfidenceUnparseable, res.Confidence)
		assert.Equal(t, res.Intent.Error, res.Explanation)
	})

	t.Run("deterministic", func(t *testing.T) {
		a := p.Parse(ctx, "swap 50 ETH for BDAG")
		b := p.Parse(ctx, "swap 50 ETH for BDAG")
		require.Equal(t, a, b)
	})
}

func TestNewWithoutProviderIsLocal(t *testing.T) {
	_, ok := New(nil).(*LocalParser)
	assert.True(t, ok)
}
