package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/internal/yield-source/dto"
)

// Client fala com o yield-source-simulator para uma única curva (Ref)
type Client struct {
	BaseURL string
	Ref     common.Address
	HTTP    *http.Client
}

func New(base string, ref common.Address) *Client {
	return &Client{
		BaseURL: base,
		Ref:     ref,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

// Discover lista as curvas do simulador e devolve um Sources com um Client por curva
func Discover(ctx context.Context, base string) (market.SourceMap, []dto.Source, error) {
	c := New(base, common.Address{})
	var list []dto.Source
	if err := c.do(ctx, http.MethodGet, "/sources", nil, &list); err != nil {
		return nil, nil, err
	}
	out := market.SourceMap{}
	for _, s := range list {
		ref := common.HexToAddress(s.Ref)
		out[ref] = New(base, ref)
	}
	return out, list, nil
}

func (c *Client) path(suffix string) string {
	return "/sources/" + c.Ref.Hex() + suffix
}

func (c *Client) Instruments(ctx context.Context) (common.Address, common.Address, error) {
	var out dto.Source
	if err := c.do(ctx, http.MethodGet, c.path(""), nil, &out); err != nil {
		return common.Address{}, common.Address{}, err
	}
	return common.HexToAddress(out.PrincipalToken), common.HexToAddress(out.YieldToken), nil
}

func (c *Client) QuoteRate(ctx context.Context, days uint32) (uint32, error) {
	q := url.Values{"days": {strconv.FormatUint(uint64(days), 10)}}
	var out dto.RateResponse
	if err := c.do(ctx, http.MethodGet, c.path("/rate?"+q.Encode()), nil, &out); err != nil {
		return 0, err
	}
	return out.RateBps, nil
}

func (c *Client) Split(ctx context.Context, key string, custody common.Address, amount *uint256.Int, days uint32) (*uint256.Int, *uint256.Int, error) {
	req := dto.SplitRequest{Key: key, Custody: custody.Hex(), Amount: amount.Dec(), Days: days}
	var out dto.SplitResponse
	if err := c.do(ctx, http.MethodPost, c.path("/split"), req, &out); err != nil {
		return nil, nil, err
	}
	pt, err := market.ParseAmount(out.Principal)
	if err != nil {
		return nil, nil, err
	}
	yt, err := market.ParseAmount(out.Yield)
	if err != nil {
		return nil, nil, err
	}
	return pt, yt, nil
}

func (c *Client) Redeem(ctx context.Context, key string, custody common.Address, pt, yt *uint256.Int) (*uint256.Int, error) {
	req := dto.RedeemRequest{Key: key, Custody: custody.Hex(), Principal: pt.Dec(), Yield: yt.Dec()}
	var out dto.RedeemResponse
	if err := c.do(ctx, http.MethodPost, c.path("/redeem"), req, &out); err != nil {
		return nil, err
	}
	return market.ParseAmount(out.Amount)
}

// do executa a chamada JSON; status >= 300 vira erro.
// 400 e 422 significam que nada foi aplicado e viram ErrSourceRejected;
// timeouts e 5xx ficam sem classe e o chamador repete com a mesma key.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusBadRequest, res.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s %s: http %d", market.ErrSourceRejected, method, path, res.StatusCode)
	case res.StatusCode >= 300:
		return fmt.Errorf("yield source %s %s: http %d", method, path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

var _ market.YieldSource = (*Client)(nil)
