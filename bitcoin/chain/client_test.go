// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package chain_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/chain"
)

const (
	testTxID    = "5aa4e4e957b467d07413aa75cdab5e4ce9ff2b714cd81b6af0e90bfee5ff070c"
	testAddress = "bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0"
	// a valid 1-in 1-out transaction serialization.
	testTxHex = "02000000010c07ffe5fe0be9f06a1bd84c712bffe94c5eabcd75aa1374d067b457e9e4a45a0000000000ffffffff0118fc0000000000002251207a66ccfdf3b2eeb62ad0629573a1c2c1c0a6ff36cb738a3656f940ad8b7c0bcc00000000"
)

func TestGetTxHex(t *testing.T) {
	t.Run("first backend wins", func(t *testing.T) {
		primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/tx/"+testTxID+"/hex", r.URL.Path)
			_, _ = w.Write([]byte(testTxHex))
		}))
		defer primary.Close()

		client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, primary.URL))

		got, err := client.GetTxHex(context.Background(), testTxID, bitcoin.NetworkMainnet)
		require.NoError(t, err)
		require.Equal(t, testTxHex, got)
	})

	t.Run("failover to second backend", func(t *testing.T) {
		broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer broken.Close()

		healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(testTxHex))
		}))
		defer healthy.Close()

		client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, broken.URL, healthy.URL))

		got, err := client.GetTxHex(context.Background(), testTxID, bitcoin.NetworkMainnet)
		require.NoError(t, err)
		require.Equal(t, testTxHex, got)
	})

	t.Run("all backends 404", func(t *testing.T) {
		missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer missing.Close()

		client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, missing.URL, missing.URL))

		_, err := client.GetTxHex(context.Background(), testTxID, bitcoin.NetworkMainnet)
		require.ErrorIs(t, err, bitcoin.ErrNotFound)
	})

	t.Run("mixed failures exhaust backends", func(t *testing.T) {
		missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer missing.Close()

		broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer broken.Close()

		client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, missing.URL, broken.URL))

		_, err := client.GetTxHex(context.Background(), testTxID, bitcoin.NetworkMainnet)
		require.ErrorIs(t, err, bitcoin.ErrBackendExhausted)
	})

	t.Run("cached after first fetch", func(t *testing.T) {
		calls := 0
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			_, _ = w.Write([]byte(testTxHex))
		}))
		defer backend.Close()

		client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, backend.URL))

		for i := 0; i < 3; i++ {
			_, err := client.GetTxHex(context.Background(), testTxID, bitcoin.NetworkMainnet)
			require.NoError(t, err)
		}
		require.Equal(t, 1, calls)
	})
}

func TestGetUTXOs(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/address/"+testAddress+"/utxo", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"txid": "` + testTxID + `", "vout": 0, "value": 200000, "status": {"confirmed": true}},
			{"txid": "` + testTxID + `", "vout": 1, "value": 1000, "status": {"confirmed": false}}
		]`))
	}))
	defer backend.Close()

	client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, backend.URL))

	utxos, err := client.GetUTXOs(context.Background(), testAddress, bitcoin.NetworkMainnet)
	require.NoError(t, err)
	require.Len(t, utxos, 2)

	require.EqualValues(t, 200000, utxos[0].Amount)
	require.True(t, utxos[0].Confirmed)
	require.Equal(t, testTxID+":0", utxos[0].OutPoint.String())
	require.NotEmpty(t, utxos[0].Script)
	require.Equal(t, utxos[0].Script, utxos[1].Script)
	require.True(t, utxos[1].IsDummy())
}

func TestGetOutspend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tx/"+testTxID+"/outspend/0", r.URL.Path)
		_, _ = w.Write([]byte(`{"spent": true, "txid": "deadbeef"}`))
	}))
	defer backend.Close()

	client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, backend.URL))

	outPoint, err := bitcoin.ParseOutPoint(testTxID + ":0")
	require.NoError(t, err)

	outspend, err := client.GetOutspend(context.Background(), outPoint, bitcoin.NetworkMainnet)
	require.NoError(t, err)
	require.True(t, outspend.Spent)
	require.Equal(t, "deadbeef", outspend.SpentBy)
}

func TestBroadcast(t *testing.T) {
	t.Run("success returns txid", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/tx", r.URL.Path)
			_, _ = w.Write([]byte(testTxID))
		}))
		defer backend.Close()

		client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, backend.URL))

		txid, err := client.Broadcast(context.Background(), testTxHex, bitcoin.NetworkMainnet)
		require.NoError(t, err)
		require.Equal(t, testTxID, txid)
	})

	t.Run("rejection preserves backend text", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("sendrawtransaction RPC error: bad-txns-inputs-missingorspent"))
		}))
		defer backend.Close()

		client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, backend.URL))

		_, err := client.Broadcast(context.Background(), testTxHex, bitcoin.NetworkMainnet)
		require.Error(t, err)

		var rejection *chain.BroadcastError
		require.ErrorAs(t, err, &rejection)
		require.Equal(t, http.StatusBadRequest, rejection.Status)
		require.Contains(t, rejection.Body, "missingorspent")
	})
}

func TestGetFeeRates(t *testing.T) {
	t.Run("advertised rates", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/fees/recommended", r.URL.Path)
			_, _ = w.Write([]byte(`{"fastestFee": 42, "halfHourFee": 30, "hourFee": 21, "economyFee": 7, "minimumFee": 0}`))
		}))
		defer backend.Close()

		client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, backend.URL))

		rates := client.GetFeeRates(context.Background(), bitcoin.NetworkMainnet)
		require.EqualValues(t, 42, rates.Fastest)
		require.EqualValues(t, 21, rates.Hour)
		// the minimum tier is clamped to the relay floor.
		require.EqualValues(t, 1, rates.Minimum)
	})

	t.Run("conservative defaults on total failure", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer backend.Close()

		client := chain.New(chain.WithEndpoints(bitcoin.NetworkMainnet, backend.URL))

		rates := client.GetFeeRates(context.Background(), bitcoin.NetworkMainnet)
		require.Equal(t, bitcoin.FeeRates{Fastest: 20, HalfHour: 15, Hour: 10, Economy: 5, Minimum: 1}, rates)
	})
}
