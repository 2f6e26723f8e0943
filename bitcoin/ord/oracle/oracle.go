// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/addresses"
	"ordmarket/bitcoin/ord"
)

const (
	// connectTimeout bounds connection establishment per request.
	connectTimeout = 5 * time.Second
	// requestTimeout bounds the whole request per backend.
	requestTimeout = 5 * time.Second
)

// Endpoints lists ordinals explorer base URLs per network, tried in order.
type Endpoints map[bitcoin.Network][]string

// defaultEndpoints returns the built-in explorer list.
func defaultEndpoints() Endpoints {
	return Endpoints{
		bitcoin.NetworkMainnet: {"https://ordinals.com"},
		bitcoin.NetworkTestnet: {"https://testnet.ordinals.com"},
		bitcoin.NetworkSignet:  {"https://signet.ordinals.com"},
	}
}

// defaultIndexers returns the built-in structured indexer list for the
// networks answered by inscription count rather than explorer page.
func defaultIndexers() Endpoints {
	return Endpoints{
		bitcoin.NetworkTestnet: {"https://testnet.ordinals.com"},
		bitcoin.NetworkSignet:  {"https://signet.ordinals.com"},
	}
}

// outputResponse mirrors the ord explorer JSON output page.
type outputResponse struct {
	Address      string   `json:"address"`
	Value        int64    `json:"value"`
	Inscriptions []string `json:"inscriptions"`
}

// countResponse mirrors the indexer inscription list endpoint, only the
// total matters here.
type countResponse struct {
	Total int64 `json:"total"`
}

// inscriptionResponse tolerates both the ord explorer inscription page
// shape (satpoint) and indexer API shapes (output).
type inscriptionResponse struct {
	Address  string `json:"address"`
	Output   string `json:"output"`
	Satpoint string `json:"satpoint"`
}

// Oracle decides whether outputs hold inscriptions and resolves current
// inscription ownership, dispatching between JSON indexer responses and
// explorer HTML pages.
type Oracle struct {
	http      *http.Client
	endpoints Endpoints
	indexers  Endpoints
}

// Option configures Oracle.
type Option func(*Oracle)

// WithEndpoints overrides the explorer list for a network.
func WithEndpoints(network bitcoin.Network, urls ...string) Option {
	return func(o *Oracle) {
		o.endpoints[network] = urls
	}
}

// WithIndexers overrides the structured indexer list for a network.
func WithIndexers(network bitcoin.Network, urls ...string) Option {
	return func(o *Oracle) {
		o.indexers[network] = urls
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *Oracle) {
		o.http = httpClient
	}
}

// New is a constructor for Oracle.
func New(opts ...Option) *Oracle {
	oracle := &Oracle{
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		endpoints: defaultEndpoints(),
		indexers:  defaultIndexers(),
	}
	for _, opt := range opts {
		opt(oracle)
	}

	return oracle
}

// ContainsInscription reports whether the output holds an inscription.
//
// If every configured source errors or times out the answer degrades to
// false. A spurious true would lock funds out of selection forever,
// a spurious false at worst selects an output the network rejects at
// broadcast, where the error surfaces safely. Every such fallback is
// logged.
// Mainnet is answered from explorer output pages, testnet and signet
// from structured indexer count endpoints.
func (o *Oracle) ContainsInscription(ctx context.Context, outPoint bitcoin.OutPoint, network bitcoin.Network) bool {
	bases := o.endpoints[network]
	query := o.outputInscribed
	if network != bitcoin.NetworkMainnet {
		bases = o.indexers[network]
		query = o.outputInscriptionCount
	}

	var errs []error
	for _, base := range bases {
		inscribed, err := query(ctx, base, outPoint)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		return inscribed
	}

	log.WithFields(log.Fields{
		"outpoint": outPoint.String(),
		"network":  network,
		"error":    errors.Join(errs...),
	}).Warn("all inscription sources failed, treating output as cardinal")

	return false
}

// ResolveOwner returns the address and output currently holding the
// inscription. Fails with bitcoin.ErrNotFound if no backend knows it.
func (o *Oracle) ResolveOwner(ctx context.Context, id *ord.ID, network bitcoin.Network) (string, bitcoin.OutPoint, error) {
	bases := o.endpoints[network]
	if len(bases) == 0 {
		return "", bitcoin.OutPoint{}, fmt.Errorf("%w: no explorers for network %q", bitcoin.ErrBackendExhausted, network)
	}

	var (
		errs     []error
		notFound int
	)
	for _, base := range bases {
		body, status, err := o.getJSON(ctx, base+"/inscription/"+id.String())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if status == http.StatusNotFound {
			notFound++
			continue
		}
		if status < 200 || status >= 300 {
			errs = append(errs, fmt.Errorf("%s: status %d", base, status))
			continue
		}

		var resp inscriptionResponse
		if err = json.Unmarshal(body, &resp); err != nil {
			errs = append(errs, err)
			continue
		}

		outPoint, err := parseOwningOutPoint(resp)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		return resp.Address, outPoint, nil
	}

	if notFound > 0 && len(errs) == 0 {
		return "", bitcoin.OutPoint{}, fmt.Errorf("%w: inscription %s", bitcoin.ErrNotFound, id)
	}

	return "", bitcoin.OutPoint{}, fmt.Errorf("%w: %v", bitcoin.ErrBackendExhausted, errors.Join(errs...))
}

// VerifyOwnership reports whether the claimed address currently owns the
// inscription. A non-taproot claimed address is logged as a warning but
// not rejected here.
func (o *Oracle) VerifyOwnership(ctx context.Context, id *ord.ID, claimedAddress string, network bitcoin.Network) (bool, error) {
	if parsed, err := addresses.Parse(claimedAddress, network); err != nil || parsed.Type != addresses.P2TR {
		log.WithFields(log.Fields{"address": claimedAddress, "inscription": id.String()}).
			Warn("claimed owner is not a taproot address")
	}

	owner, _, err := o.ResolveOwner(ctx, id, network)
	if err != nil {
		return false, err
	}

	return owner == claimedAddress, nil
}

// outputInscribed queries one explorer for the output's inscription list,
// falling back to HTML scraping when the backend serves no JSON.
func (o *Oracle) outputInscribed(ctx context.Context, base string, outPoint bitcoin.OutPoint) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/output/"+outPoint.String(), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("%s/output/%s: status %d", base, outPoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var output outputResponse
		if err = json.Unmarshal(body, &output); err != nil {
			return false, err
		}

		return len(output.Inscriptions) > 0, nil
	}

	// Older explorer deployments serve HTML only. The output page links
	// every inscription it holds as /inscription/{id}.
	return strings.Contains(string(body), `href=/inscription/`) ||
		strings.Contains(string(body), `href="/inscription/`), nil
}

// outputInscriptionCount queries a structured indexer for the number of
// inscriptions on the output.
func (o *Oracle) outputInscriptionCount(ctx context.Context, base string, outPoint bitcoin.OutPoint) (bool, error) {
	url := base + "/ordinals/v1/inscriptions?output=" + outPoint.String() + "&limit=1"
	body, status, err := o.getJSON(ctx, url)
	if err != nil {
		return false, err
	}
	if status < 200 || status >= 300 {
		return false, fmt.Errorf("%s: status %d", url, status)
	}

	var count countResponse
	if err = json.Unmarshal(body, &count); err != nil {
		return false, err
	}

	return count.Total > 0, nil
}

// getJSON performs one GET with JSON accept header, returning raw body and status.
func (o *Oracle) getJSON(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	return body, resp.StatusCode, nil
}

// parseOwningOutPoint extracts the owning outpoint from either the
// "output" ("txid:vout") or "satpoint" ("txid:vout:offset") field.
func parseOwningOutPoint(resp inscriptionResponse) (bitcoin.OutPoint, error) {
	if resp.Output != "" {
		return bitcoin.ParseOutPoint(resp.Output)
	}

	if resp.Satpoint != "" {
		parts := strings.Split(resp.Satpoint, ":")
		if len(parts) == 3 {
			return bitcoin.ParseOutPoint(parts[0] + ":" + parts[1])
		}
	}

	return bitcoin.OutPoint{}, fmt.Errorf("no owning output in response")
}
