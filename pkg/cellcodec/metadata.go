package cellcodec

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tep64"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/txsociety/ton-agent/pkg/core"
)

// MetadataKeys are the TEP-64 attributes stored on-chain. Anything else is dropped.
var MetadataKeys = []string{
	"uri",
	"name",
	"description",
	"image",
	"image_data",
	"symbol",
	"decimals",
	"amount_style",
	"render_type",
}

var metadataKeySet = func() map[string]struct{} {
	res := make(map[string]struct{}, len(MetadataKeys))
	for _, k := range MetadataKeys {
		res[k] = struct{}{}
	}
	return res
}()

// SupportedMetadata returns the subset of fields that the on-chain encoder keeps.
func SupportedMetadata(fields map[string]string) map[string]string {
	res := make(map[string]string, len(fields))
	for k, v := range fields {
		if v == "" {
			continue
		}
		if _, ok := metadataKeySet[k]; !ok {
			continue
		}
		res[k] = v
	}
	return res
}

func EncodeOnchainMetadata(fields map[string]string) (*boc.Cell, error) {
	supported := SupportedMetadata(fields)
	names := make([]string, 0, len(supported))
	for k := range supported {
		names = append(names, k)
	}
	sort.Strings(names)
	keys := make([]tlb.Bits256, 0, len(names))
	values := make([]tlb.Ref[tlb.ContentData], 0, len(names))
	for _, k := range names {
		v := []byte(supported[k])
		if err := checkSnakeSize(v); err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		var data tlb.ContentData
		data.SumType = "Snake"
		data.Snake.Data = snakeData(v)
		keys = append(keys, tlb.Bits256(sha256.Sum256([]byte(k))))
		values = append(values, tlb.Ref[tlb.ContentData]{Value: data})
	}
	var content tlb.FullContent
	content.SumType = "Onchain"
	content.Onchain.Data = tlb.NewHashmapE(keys, values)
	return Encode(content)
}

func EncodeOffchainMetadata(uri string) (*boc.Cell, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty metadata uri", core.ErrEncoding)
	}
	if err := checkSnakeSize([]byte(uri)); err != nil {
		return nil, err
	}
	var content tlb.FullContent
	content.SumType = "Offchain"
	content.Offchain.Uri = snakeData([]byte(uri))
	return Encode(content)
}

// DecodeMetadata reads either content layout. Off-chain content yields only "uri".
// On-chain entries with unknown key hashes are skipped.
func DecodeMetadata(c *boc.Cell) (map[string]string, error) {
	c.ResetCounters()
	content, err := tep64.DecodeFullContentFromCell(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	switch content.Layout {
	case tep64.OffChain:
		return map[string]string{"uri": content.OffchainURL}, nil
	case tep64.OnChain, tep64.SemiChain:
	default:
		return nil, fmt.Errorf("%w: unsupported content layout %v", core.ErrEncoding, content.Layout)
	}
	m := content.OnchainMetadata
	res := make(map[string]string)
	for k, v := range map[string]string{
		"uri":          m.Uri,
		"name":         m.Name,
		"description":  m.Description,
		"image":        m.Image,
		"image_data":   string(m.ImageData),
		"symbol":       m.Symbol,
		"decimals":     m.Decimals,
		"amount_style": m.AmountStyle,
		"render_type":  m.RenderType,
	} {
		if v != "" {
			res[k] = v
		}
	}
	return res, nil
}
