package ledgertest

import (
	"math/big"
	"time"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
)

var (
	marketplace = Address("marketplace")
	royalty     = Address("royalty")
)

// NFTItem answers get_nft_data. Sales move its owner.
type NFTItem struct {
	Index      int64
	Collection ton.AccountID
	Owner      ton.AccountID
}

func (n *NFTItem) GetMethod(l *Ledger, method string, args core.Stack) (core.Stack, error) {
	if method != "get_nft_data" {
		return nil, UnknownMethod(method)
	}
	return core.Stack{
		core.Int64Value(-1),
		core.Int64Value(n.Index),
		core.AddressValue(n.Collection),
		core.AddressValue(n.Owner),
		core.CellValue(boc.NewCell()),
	}, nil
}

func (n *NFTItem) Receive(l *Ledger, msg Inbound) error {
	return nil
}

// FixedPriceSale simulates a fixed price sale contract holding an NFT.
type FixedPriceSale struct {
	NFT       ton.AccountID
	Seller    ton.AccountID
	Price     *big.Int
	Complete  bool
	CreatedAt uint32
}

func (s *FixedPriceSale) GetMethod(l *Ledger, method string, args core.Stack) (core.Stack, error) {
	if method != "get_sale_data" {
		return nil, UnknownMethod(method)
	}
	complete := int64(0)
	if s.Complete {
		complete = -1
	}
	fee := new(big.Int).Div(s.Price, big.NewInt(20))
	return core.Stack{
		core.Int64Value(0x46495850),
		core.Int64Value(complete),
		core.Int64Value(int64(s.CreatedAt)),
		core.AddressValue(marketplace),
		core.AddressValue(s.NFT),
		core.AddressValue(s.Seller),
		core.IntValue(s.Price),
		core.AddressValue(marketplace),
		core.IntValue(fee),
		core.AddressValue(royalty),
		core.IntValue(fee),
	}, nil
}

func (s *FixedPriceSale) Receive(l *Ledger, msg Inbound) error {
	if s.Complete {
		return core.ExitCodeError(404)
	}
	if msg.Body == nil || msg.Body.BitsAvailableForRead() == 0 {
		if msg.Value.Cmp(s.Price) < 0 {
			return core.ExitCodeError(450)
		}
		s.Complete = true
		moveNFT(l, s.NFT, msg.From)
		return nil
	}
	op, err := cellcodec.PeekOp(msg.Body)
	if err != nil || op != cellcodec.OpCancelFixedPrice {
		return core.ExitCodeError(0xffff)
	}
	if msg.From != s.Seller {
		return core.ExitCodeError(458)
	}
	s.Complete = true
	moveNFT(l, s.NFT, s.Seller)
	return nil
}

// AuctionSale simulates an english auction contract.
type AuctionSale struct {
	NFT        ton.AccountID
	Seller     ton.AccountID
	MinBid     *big.Int
	MaxBid     *big.Int
	MinStep    int64
	EndTime    time.Time
	LastBid    *big.Int
	LastMember *ton.AccountID
	Ended      bool
	Canceled   bool
}

func (a *AuctionSale) nextBid() *big.Int {
	if a.LastBid == nil || a.LastBid.Sign() == 0 {
		return new(big.Int).Set(a.MinBid)
	}
	step := new(big.Int).Mul(a.LastBid, big.NewInt(a.MinStep))
	step.Quo(step, big.NewInt(100))
	return step.Add(step, a.LastBid)
}

func (a *AuctionSale) GetMethod(l *Ledger, method string, args core.Stack) (core.Stack, error) {
	if method != "get_sale_data" {
		return nil, UnknownMethod(method)
	}
	flag := func(b bool) core.StackValue {
		if b {
			return core.Int64Value(-1)
		}
		return core.Int64Value(0)
	}
	lastBid := big.NewInt(0)
	if a.LastBid != nil {
		lastBid = a.LastBid
	}
	lastMember := core.NoneAddressValue()
	if a.LastMember != nil {
		lastMember = core.AddressValue(*a.LastMember)
	}
	return core.Stack{
		core.Int64Value(0x415543),
		flag(a.Ended),
		core.Int64Value(a.EndTime.Unix()),
		core.AddressValue(marketplace),
		core.AddressValue(a.NFT),
		core.AddressValue(a.Seller),
		core.IntValue(lastBid),
		lastMember,
		core.Int64Value(a.MinStep),
		core.AddressValue(marketplace),
		core.Int64Value(5),
		core.Int64Value(100),
		core.AddressValue(royalty),
		core.Int64Value(5),
		core.Int64Value(100),
		core.IntValue(a.MaxBid),
		core.IntValue(a.MinBid),
		core.Int64Value(a.EndTime.Add(-24 * time.Hour).Unix()),
		core.Int64Value(0),
		flag(a.Canceled),
	}, nil
}

func (a *AuctionSale) Receive(l *Ledger, msg Inbound) error {
	if a.Ended || a.Canceled {
		return core.ExitCodeError(1005)
	}
	if msg.Body == nil || msg.Body.BitsAvailableForRead() == 0 {
		if l.now().After(a.EndTime) {
			return core.ExitCodeError(1005)
		}
		if msg.Value.Cmp(a.nextBid()) < 0 {
			return core.ExitCodeError(1000)
		}
		from := msg.From
		a.LastBid = new(big.Int).Set(msg.Value)
		a.LastMember = &from
		if a.MaxBid.Sign() > 0 && a.LastBid.Cmp(a.MaxBid) >= 0 {
			a.Ended = true
			moveNFT(l, a.NFT, from)
		}
		return nil
	}
	op, err := cellcodec.PeekOp(msg.Body)
	if err != nil || op != cellcodec.OpCancelAuction {
		return core.ExitCodeError(0xffff)
	}
	if msg.From != a.Seller {
		return core.ExitCodeError(458)
	}
	a.Canceled = true
	a.Ended = true
	moveNFT(l, a.NFT, a.Seller)
	return nil
}

func moveNFT(l *Ledger, nft, owner ton.AccountID) {
	if item, ok := l.ContractLocked(nft).(*NFTItem); ok {
		item.Owner = owner
	}
}
