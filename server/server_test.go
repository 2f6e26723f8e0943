// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/broadcaster"
	"ordmarket/bitcoin/chain"
	"ordmarket/bitcoin/ord"
	"ordmarket/bitcoin/signer"
	"ordmarket/bitcoin/txbuilder"
	"ordmarket/bitcoin/utils"
	"ordmarket/marketplace"
	"ordmarket/server"
)

const (
	testTxID          = "521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79da"
	testInscriptionID = testTxID + "i0"
)

// the custody address belongs to a real key, the seller fixture signs
// with it and the packet pays the price back to it.
var (
	sellerKey      = mustPrivateKey()
	custodyAddress = utils.MustTaprootKeyAddress(&chaincfg.TestNet3Params, sellerKey).EncodeAddress()
)

func mustPrivateKey() *btcec.PrivateKey {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		panic(err)
	}

	return key
}

type fakeOwnership struct {
	owner string
}

func (f *fakeOwnership) ResolveOwner(_ context.Context, _ *ord.ID, _ bitcoin.Network) (string, bitcoin.OutPoint, error) {
	outPoint, _ := bitcoin.ParseOutPoint(testTxID + ":0")
	return f.owner, outPoint, nil
}

func (f *fakeOwnership) VerifyOwnership(_ context.Context, _ *ord.ID, claimed string, _ bitcoin.Network) (bool, error) {
	return f.owner == claimed, nil
}

type fakeAssembler struct{}

func (f *fakeAssembler) BuildSellerPSBT(_ context.Context, params txbuilder.SellerParams) (*txbuilder.SellerResult, error) {
	return &txbuilder.SellerResult{PSBTBase64: "cHNidA==", PriceSats: params.PriceSats, OrdinalValue: 10_000}, nil
}

func (f *fakeAssembler) BuildBuyerPSBT(_ context.Context, _ txbuilder.BuyerParams) (*txbuilder.BuyerResult, error) {
	return &txbuilder.BuyerResult{PSBTBase64: "cHNidA==", PriceSats: 200_000}, nil
}

func (f *fakeAssembler) BuildDummyMintPSBT(_ context.Context, _ txbuilder.DummyMintParams) (*txbuilder.DummyMintResult, error) {
	return &txbuilder.DummyMintResult{PSBTBase64: "cHNidA=="}, nil
}

type fakePublisher struct{}

func (f *fakePublisher) BroadcastPSBT(_ context.Context, _ string, _ bitcoin.Network) (*broadcaster.Result, error) {
	return &broadcaster.Result{TxID: testTxID, Status: broadcaster.StatusBroadcast}, nil
}

func newTestRouter(t *testing.T, chainClient *chain.Client) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := marketplace.OpenStore(":memory:")
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	service := marketplace.NewService(store, &fakeAssembler{}, &fakeOwnership{owner: custodyAddress}, &fakePublisher{}, log)

	return server.New(service, chainClient, log).Router()
}

// signedSellerPSBT builds a seller packet paying the price back to the
// custody address and signs it with the custody key.
func signedSellerPSBT(t *testing.T, priceSats int64) string {
	t.Helper()

	outPoint, err := bitcoin.ParseOutPoint(testTxID + ":0")
	require.NoError(t, err)

	custodyScript, err := txscript.PayToAddrScript(utils.MustTaprootKeyAddress(&chaincfg.TestNet3Params, sellerKey))
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(outPoint.Wire(), nil, nil))
	tx.AddTxOut(wire.NewTxOut(priceSats, custodyScript))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(10_000, custodyScript)
	packet.Inputs[0].SighashType = txscript.SigHashSingle | txscript.SigHashAnyOneCanPay

	require.NoError(t, signer.NewSigner().SignTaproot(signer.SignTaprootParams{
		Packet:     packet,
		Inputs:     []int{0},
		PrivateKey: sellerKey,
	}))

	encoded, err := packet.B64Encode()
	require.NoError(t, err)

	return encoded
}

func postJSON(t *testing.T, router *gin.Engine, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	return recorder
}

func TestRouter(t *testing.T) {
	router := newTestRouter(t, chain.New())

	publishBody := func(priceSats int64) map[string]any {
		return map[string]any{
			"inscriptionId":       testInscriptionID,
			"inscriptionOutpoint": testTxID + ":0",
			"priceSats":           priceSats,
			"custodyAddress":      custodyAddress,
			"network":             "testnet",
			"signedSellerPsbt":    signedSellerPSBT(t, priceSats),
		}
	}

	t.Run("seller psbt", func(t *testing.T) {
		recorder := postJSON(t, router, "/api/v0/seller-psbt", map[string]any{
			"inscriptionId":       testInscriptionID,
			"inscriptionOutpoint": testTxID + ":0",
			"priceSats":           200_000,
			"custodyAddress":      custodyAddress,
			"network":             "testnet",
		})
		require.Equal(t, http.StatusOK, recorder.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		require.Equal(t, "cHNidA==", resp["psbt"])
	})

	t.Run("publish then conflict", func(t *testing.T) {
		recorder := postJSON(t, router, "/api/v0/listings", publishBody(200_000))
		require.Equal(t, http.StatusCreated, recorder.Code)

		recorder = postJSON(t, router, "/api/v0/listings", publishBody(200_000))
		require.Equal(t, http.StatusConflict, recorder.Code)
	})

	t.Run("listings index", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v0/listings?network=testnet", nil)
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		require.Equal(t, http.StatusOK, recorder.Code)

		var resp struct {
			Listings []marketplace.Listing `json:"listings"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		require.Len(t, resp.Listings, 1)
	})

	t.Run("cancel by stranger is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v0/listings?network=testnet", nil)
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)

		var resp struct {
			Listings []marketplace.Listing `json:"listings"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Listings)

		recorder = postJSON(t, router, "/api/v0/listings/"+resp.Listings[0].ID.String()+"/cancel",
			map[string]any{"requestingAddress": "tb1p-somebody-else"})
		require.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("unknown listing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v0/listings/8b937b7a-24e3-4d9f-a837-7cb33a0f6d42", nil)
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		require.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("malformed outpoint", func(t *testing.T) {
		body := publishBody(200_000)
		body["inscriptionOutpoint"] = "not-an-outpoint"

		recorder := postJSON(t, router, "/api/v0/listings", body)
		require.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("unknown network", func(t *testing.T) {
		body := publishBody(200_000)
		body["network"] = "regtest9"

		recorder := postJSON(t, router, "/api/v0/listings", body)
		require.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestFeeRatesEndpoint(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/fees/recommended", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fastestFee":30,"halfHourFee":20,"hourFee":10,"economyFee":5,"minimumFee":2}`))
	}))
	defer backend.Close()

	router := newTestRouter(t, chain.New(chain.WithEndpoints(bitcoin.NetworkTestnet, backend.URL)))

	req := httptest.NewRequest(http.MethodGet, "/api/v0/fees?network=testnet", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var rates bitcoin.FeeRates
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &rates))
	require.EqualValues(t, 30, rates.Fastest)
	require.EqualValues(t, 2, rates.Minimum)
}
