// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/addresses"
)

const (
	// connectTimeout bounds connection establishment per request.
	connectTimeout = 5 * time.Second
	// requestTimeout bounds the whole request per backend.
	requestTimeout = 5 * time.Second
	// txHexCacheSize bounds the raw transaction cache. Raw transactions
	// are immutable, so the cache is safe to share across tasks.
	txHexCacheSize = 512
)

// Endpoints lists esplora-style API base URLs per network, tried in order.
type Endpoints map[bitcoin.Network][]string

// defaultEndpoints returns the built-in backend list.
func defaultEndpoints() Endpoints {
	return Endpoints{
		bitcoin.NetworkMainnet: {
			"https://mempool.space/api",
			"https://blockstream.info/api",
		},
		bitcoin.NetworkTestnet: {
			"https://mempool.space/testnet/api",
			"https://blockstream.info/testnet/api",
		},
		bitcoin.NetworkSignet: {
			"https://mempool.space/signet/api",
		},
	}
}

// TxStatus describes a transaction known to the chain or mempool.
type TxStatus struct {
	TxID      string `json:"txid"`
	Confirmed bool   `json:"-"`
}

// Outspend describes the spending status of a single output.
type Outspend struct {
	Spent   bool   `json:"spent"`
	SpentBy string `json:"txid"`
}

// BroadcastError preserves the backend's rejection text for classification.
type BroadcastError struct {
	Status int
	Body   string
}

// Error returns error description.
func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast rejected (%d): %s", e.Status, e.Body)
}

// Client fetches chain data from esplora-style HTTP backends.
// Multiple endpoints are configured per network, tried in declared
// order, first success wins. No retries within a single endpoint.
type Client struct {
	http      *http.Client
	endpoints Endpoints
	txHex     *lru.Cache[string, string]
}

// Option configures Client.
type Option func(*Client)

// WithEndpoints overrides the backend list for a network.
func WithEndpoints(network bitcoin.Network, urls ...string) Option {
	return func(c *Client) {
		c.endpoints[network] = urls
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// New is a constructor for Client.
func New(opts ...Option) *Client {
	txHex, _ := lru.New[string, string](txHexCacheSize)
	client := &Client{
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		endpoints: defaultEndpoints(),
		txHex:     txHex,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client
}

// GetTxHex returns raw transaction hex by its ID.
// Fails with bitcoin.ErrNotFound if no backend knows the transaction.
func (c *Client) GetTxHex(ctx context.Context, txid string, network bitcoin.Network) (string, error) {
	cacheKey := string(network) + ":" + txid
	if cached, ok := c.txHex.Get(cacheKey); ok {
		return cached, nil
	}

	body, err := c.get(ctx, network, "/tx/"+txid+"/hex")
	if err != nil {
		return "", err
	}

	rawHex := strings.TrimSpace(string(body))
	if _, err = hex.DecodeString(rawHex); err != nil {
		return "", fmt.Errorf("%w: backend returned non-hex transaction: %v", bitcoin.ErrChainLookupFailed, err)
	}

	c.txHex.Add(cacheKey, rawHex)

	return rawHex, nil
}

// GetTx returns transaction status if the transaction is known on-chain
// or in the mempool, bitcoin.ErrNotFound otherwise.
func (c *Client) GetTx(ctx context.Context, txid string, network bitcoin.Network) (*TxStatus, error) {
	body, err := c.get(ctx, network, "/tx/"+txid)
	if err != nil {
		return nil, err
	}

	var resp struct {
		TxID   string `json:"txid"`
		Status struct {
			Confirmed bool `json:"confirmed"`
		} `json:"status"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", bitcoin.ErrChainLookupFailed, err)
	}

	return &TxStatus{TxID: resp.TxID, Confirmed: resp.Status.Confirmed}, nil
}

// GetUTXOs returns unspent outputs of the address. Order is backend
// defined; callers impose their own ordering.
func (c *Client) GetUTXOs(ctx context.Context, address string, network bitcoin.Network) ([]bitcoin.UTXO, error) {
	parsed, err := addresses.Parse(address, network)
	if err != nil {
		return nil, err
	}

	script, err := parsed.PayScript()
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, network, "/address/"+address+"/utxo")
	if err != nil {
		return nil, err
	}

	var resp []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Value  int64  `json:"value"`
		Status struct {
			Confirmed bool `json:"confirmed"`
		} `json:"status"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", bitcoin.ErrChainLookupFailed, err)
	}

	utxos := make([]bitcoin.UTXO, 0, len(resp))
	for _, entry := range resp {
		outPoint, err := bitcoin.ParseOutPoint(entry.TxID + ":" + fmt.Sprint(entry.Vout))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", bitcoin.ErrChainLookupFailed, err)
		}

		utxos = append(utxos, bitcoin.UTXO{
			OutPoint:  outPoint,
			Amount:    entry.Value,
			Script:    script,
			Address:   address,
			Confirmed: entry.Status.Confirmed,
		})
	}

	return utxos, nil
}

// GetOutspend returns the spending status of the output.
func (c *Client) GetOutspend(ctx context.Context, outPoint bitcoin.OutPoint, network bitcoin.Network) (*Outspend, error) {
	body, err := c.get(ctx, network, fmt.Sprintf("/tx/%s/outspend/%d", outPoint.TxID(), outPoint.Index))
	if err != nil {
		return nil, err
	}

	var outspend Outspend
	if err = json.Unmarshal(body, &outspend); err != nil {
		return nil, fmt.Errorf("%w: %v", bitcoin.ErrChainLookupFailed, err)
	}

	return &outspend, nil
}

// Broadcast submits raw transaction hex for relay and returns the txid.
// Structured backend rejections are preserved as *BroadcastError.
func (c *Client) Broadcast(ctx context.Context, rawTxHex string, network bitcoin.Network) (string, error) {
	bases, ok := c.endpoints[network]
	if !ok || len(bases) == 0 {
		return "", fmt.Errorf("%w: no endpoints for network %q", bitcoin.ErrBackendExhausted, network)
	}

	var (
		transportErrs []error
		rejection     *BroadcastError
	)
	for _, base := range bases {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/tx", strings.NewReader(rawTxHex))
		if err != nil {
			transportErrs = append(transportErrs, err)
			continue
		}
		req.Header.Set("Content-Type", "text/plain")

		resp, err := c.http.Do(req)
		if err != nil {
			transportErrs = append(transportErrs, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			transportErrs = append(transportErrs, err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return strings.TrimSpace(string(body)), nil
		}

		rejection = &BroadcastError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		log.WithFields(log.Fields{"backend": base, "status": resp.StatusCode}).
			Warn("broadcast rejected, advancing to next backend")
	}

	if rejection != nil {
		return "", rejection
	}

	return "", fmt.Errorf("%w: %v", bitcoin.ErrBackendExhausted, errors.Join(transportErrs...))
}

// get performs GET {base}{path} against configured backends in order.
// A non-2xx or transport error advances to the next backend. If every
// backend answered 404 the lookup fails with bitcoin.ErrNotFound,
// any other total failure surfaces bitcoin.ErrBackendExhausted.
func (c *Client) get(ctx context.Context, network bitcoin.Network, path string) ([]byte, error) {
	bases, ok := c.endpoints[network]
	if !ok || len(bases) == 0 {
		return nil, fmt.Errorf("%w: no endpoints for network %q", bitcoin.ErrBackendExhausted, network)
	}

	var (
		errs     []error
		notFound int
	)
	for _, base := range bases {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		resp, err := c.http.Do(req)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		if resp.StatusCode == http.StatusNotFound {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s%s: status %d", base, path, resp.StatusCode))
	}

	if notFound == len(bases) {
		return nil, fmt.Errorf("%w: %s", bitcoin.ErrNotFound, path)
	}

	return nil, fmt.Errorf("%w: %v", bitcoin.ErrBackendExhausted, errors.Join(errs...))
}
