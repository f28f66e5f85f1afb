package market_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/internal/ledgertest"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/listing"
	"github.com/txsociety/ton-agent/pkg/market"
	"github.com/txsociety/ton-agent/pkg/txn"
)

type env struct {
	ledger  *ledgertest.Ledger
	service *market.Service
	wallet  ton.AccountID
}

func newEnv(t *testing.T) env {
	l := ledgertest.New()
	w, err := l.NewWallet()
	require.NoError(t, err)
	p := txn.New(l, nil, txn.Config{
		TTL:          time.Minute,
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     100,
		EffectPolls:  3,
		Retry:        txn.RetryConfig{Attempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	s := market.New(txn.NewExecutor(p, w, nil), listing.NewReader(p.Ledger()))
	return env{ledger: l, service: s, wallet: w.Address()}
}

// list puts an NFT on sale: the sale contract becomes the NFT owner.
func (e env) list(label string, sale func(nft ton.AccountID) ledgertest.Contract) (nft, saleAddr ton.AccountID) {
	nft = ledgertest.Address("nft " + label)
	saleAddr = ledgertest.Address("sale " + label)
	e.ledger.Deploy(nft, &ledgertest.NFTItem{Index: 1, Collection: ledgertest.Address("collection"), Owner: saleAddr})
	e.ledger.Deploy(saleAddr, sale(nft))
	return nft, saleAddr
}

func owner(t *testing.T, l *ledgertest.Ledger, nft ton.AccountID) ton.AccountID {
	item, ok := l.Contract(nft).(*ledgertest.NFTItem)
	require.True(t, ok)
	return item.Owner
}

func TestBuyFixedPrice(t *testing.T) {
	e := newEnv(t)
	price := core.Nano(5)
	var sale *ledgertest.FixedPriceSale
	nft, saleAddr := e.list("fixed", func(nft ton.AccountID) ledgertest.Contract {
		sale = &ledgertest.FixedPriceSale{NFT: nft, Seller: ledgertest.Address("seller"), Price: price}
		return sale
	})

	res, err := e.service.Buy(context.Background(), nft)
	require.NoError(t, err)
	assert.Equal(t, saleAddr, res.Operation.Addresses["listing"])
	assert.Equal(t, 0, res.Operation.Amounts["value"].Cmp(core.Nano(6)))
	assert.True(t, sale.Complete)
	assert.Equal(t, e.wallet, owner(t, e.ledger, nft))
}

func TestCancelPicksOpcodeByKind(t *testing.T) {
	e := newEnv(t)
	var fixed *ledgertest.FixedPriceSale
	fixedNFT, _ := e.list("fixed", func(nft ton.AccountID) ledgertest.Contract {
		fixed = &ledgertest.FixedPriceSale{NFT: nft, Seller: e.wallet, Price: core.Nano(5)}
		return fixed
	})
	var auction *ledgertest.AuctionSale
	auctionNFT, _ := e.list("auction", func(nft ton.AccountID) ledgertest.Contract {
		auction = &ledgertest.AuctionSale{
			NFT: nft, Seller: e.wallet,
			MinBid: core.Nano(1), MaxBid: core.Nano(100), MinStep: 5,
			EndTime: time.Now().Add(time.Hour),
		}
		return auction
	})

	_, err := e.service.Cancel(context.Background(), fixedNFT)
	require.NoError(t, err)
	assert.True(t, fixed.Complete)
	assert.Equal(t, e.wallet, owner(t, e.ledger, fixedNFT))

	_, err = e.service.Cancel(context.Background(), auctionNFT)
	require.NoError(t, err)
	assert.True(t, auction.Canceled)
	assert.Equal(t, e.wallet, owner(t, e.ledger, auctionNFT))
}

func TestBidValidation(t *testing.T) {
	e := newEnv(t)
	fixedNFT, _ := e.list("fixed", func(nft ton.AccountID) ledgertest.Contract {
		return &ledgertest.FixedPriceSale{NFT: nft, Seller: ledgertest.Address("seller"), Price: core.Nano(5)}
	})
	endedNFT, _ := e.list("ended", func(nft ton.AccountID) ledgertest.Contract {
		return &ledgertest.AuctionSale{
			NFT: nft, Seller: ledgertest.Address("seller"),
			MinBid: core.Nano(1), MaxBid: core.Nano(100), MinStep: 5,
			EndTime: time.Now().Add(-time.Minute),
		}
	})
	lastMember := ledgertest.Address("bidder")
	liveNFT, _ := e.list("live", func(nft ton.AccountID) ledgertest.Contract {
		return &ledgertest.AuctionSale{
			NFT: nft, Seller: ledgertest.Address("seller"),
			MinBid: core.Nano(1), MaxBid: core.Nano(100), MinStep: 5,
			EndTime: time.Now().Add(time.Hour),
			LastBid: core.Nano(10), LastMember: &lastMember,
		}
	})

	for _, tt := range []struct {
		name   string
		nft    ton.AccountID
		amount *big.Int
		want   error
	}{
		{"fixed price", fixedNFT, core.Nano(10), core.ErrWrongListingKind},
		{"ended", endedNFT, core.Nano(10), core.ErrAuctionEnded},
		{"below min bid", liveNFT, core.MilliTON(500), core.ErrBidTooLow},
		{"below next bid", liveNFT, core.MilliTON(10_400), core.ErrBidTooLow},
		{"zero", liveNFT, big.NewInt(0), core.ErrBidTooLow},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.service.Bid(context.Background(), tt.nft, tt.amount)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			var opErr *core.OperationError
			assert.True(t, errors.As(err, &opErr))
		})
	}
	_, _, sends := e.ledger.Stats()
	assert.Zero(t, sends)
}

func TestBidReadsListingEveryTime(t *testing.T) {
	e := newEnv(t)
	var auction *ledgertest.AuctionSale
	nft, _ := e.list("auction", func(nft ton.AccountID) ledgertest.Contract {
		auction = &ledgertest.AuctionSale{
			NFT: nft, Seller: ledgertest.Address("seller"),
			MinBid: core.Nano(1), MaxBid: core.Nano(100), MinStep: 5,
			EndTime: time.Now().Add(time.Hour),
		}
		return auction
	})

	res, err := e.service.Bid(context.Background(), nft, core.Nano(2))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Operation.Amounts["value"].Cmp(core.Nano(3)))
	require.NotNil(t, auction.LastMember)
	assert.Equal(t, e.wallet, *auction.LastMember)

	// the previous bid raised the next valid bid to 3.15 TON
	_, err = e.service.Bid(context.Background(), nft, core.Nano(3))
	assert.True(t, errors.Is(err, core.ErrBidTooLow))

	_, err = e.service.Bid(context.Background(), nft, core.MilliTON(3150))
	require.NoError(t, err)
	assert.Equal(t, 0, auction.LastBid.Cmp(core.MilliTON(4150)))
}

func TestRejectedSaleMessagesAreReportedAsFailures(t *testing.T) {
	e := newEnv(t)
	// a completed sale still holds the nft and bounces every purchase
	soldNFT, soldAddr := e.list("sold", func(nft ton.AccountID) ledgertest.Contract {
		return &ledgertest.FixedPriceSale{NFT: nft, Seller: ledgertest.Address("seller"), Price: core.Nano(5), Complete: true}
	})
	canceledNFT, canceledAddr := e.list("canceled", func(nft ton.AccountID) ledgertest.Contract {
		return &ledgertest.AuctionSale{
			NFT: nft, Seller: ledgertest.Address("seller"),
			MinBid: core.Nano(1), MaxBid: core.Nano(100), MinStep: 5,
			EndTime: time.Now().Add(time.Hour), Canceled: true,
		}
	})
	foreignNFT, foreignAddr := e.list("foreign", func(nft ton.AccountID) ledgertest.Contract {
		return &ledgertest.FixedPriceSale{NFT: nft, Seller: ledgertest.Address("seller"), Price: core.Nano(5)}
	})

	for _, tt := range []struct {
		name string
		sale ton.AccountID
		call func(ctx context.Context) (core.OperationResult, error)
	}{
		{"buy completed sale", soldAddr, func(ctx context.Context) (core.OperationResult, error) {
			return e.service.Buy(ctx, soldNFT)
		}},
		{"bid on canceled auction", canceledAddr, func(ctx context.Context) (core.OperationResult, error) {
			return e.service.Bid(ctx, canceledNFT, core.Nano(2))
		}},
		{"cancel someone else's sale", foreignAddr, func(ctx context.Context) (core.OperationResult, error) {
			return e.service.Cancel(ctx, foreignNFT)
		}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.call(context.Background())
			var opErr *core.OperationError
			require.ErrorAs(t, err, &opErr)
			var execErr *core.ContractExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, core.FailedOperationStatus, res.Operation.Status)

			txs := e.ledger.Transactions(tt.sale)
			require.NotEmpty(t, txs)
			assert.False(t, txs[len(txs)-1].Success)
		})
	}
}
