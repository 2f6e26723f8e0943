// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package ord_test

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"ordmarket/bitcoin/ord"
)

func TestEnvelope(t *testing.T) {
	parentID, err := ord.NewIDFromString("521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79dai0")
	require.NoError(t, err)

	t.Run("script round trip", func(t *testing.T) {
		envelope := &ord.Envelope{
			Body:            []byte(`{"p":"ord","op":"test"}`),
			ContentEncoding: "br",
			ContentType:     "application/json",
			Metadata:        []byte{0xa1, 0x64, 0x6e, 0x61, 0x6d, 0x65},
			Metaprotocol:    []byte("brc-20"),
			Parents:         []*ord.ID{parentID},
			Pointer:         big.NewInt(258),
		}

		script, err := envelope.IntoScript()
		require.NoError(t, err)
		require.True(t, ord.ContainsEnvelope(script))

		parsed, err := ord.ParseEnvelope(script)
		require.NoError(t, err)
		require.Equal(t, envelope, parsed)
	})

	t.Run("body chunking", func(t *testing.T) {
		envelope := &ord.Envelope{
			Body:        bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 400),
			ContentType: "application/octet-stream",
		}

		script, err := envelope.IntoScript()
		require.NoError(t, err)

		parsed, err := ord.ParseEnvelope(script)
		require.NoError(t, err)
		require.Equal(t, envelope.Body, parsed.Body)
		require.Equal(t, envelope.ContentType, parsed.ContentType)
	})

	t.Run("minimal envelope", func(t *testing.T) {
		envelope := &ord.Envelope{
			Body:        []byte("hello"),
			ContentType: "text/plain",
		}

		script, err := envelope.IntoScript()
		require.NoError(t, err)
		require.True(t, ord.ContainsEnvelope(script))

		parsed, err := ord.ParseEnvelope(script)
		require.NoError(t, err)
		require.Equal(t, envelope, parsed)
	})

	t.Run("delegate", func(t *testing.T) {
		envelope := &ord.Envelope{
			ContentType: "text/plain",
			Delegate:    parentID,
		}

		script, err := envelope.IntoScript()
		require.NoError(t, err)

		parsed, err := ord.ParseEnvelope(script)
		require.NoError(t, err)
		require.Equal(t, envelope, parsed)
	})

	t.Run("no envelope in script", func(t *testing.T) {
		script, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_DUP).
			AddOp(txscript.OP_HASH160).
			AddData(bytes.Repeat([]byte{0x11}, 20)).
			AddOp(txscript.OP_EQUALVERIFY).
			AddOp(txscript.OP_CHECKSIG).
			Script()
		require.NoError(t, err)

		require.False(t, ord.ContainsEnvelope(script))

		_, err = ord.ParseEnvelope(script)
		require.ErrorIs(t, err, ord.ErrMalformedEnvelope)
	})

	t.Run("undecodable witness data", func(t *testing.T) {
		// OP_PUSHDATA1 with missing length byte.
		require.False(t, ord.ContainsEnvelope([]byte{0x4c}))

		_, err := ord.ParseEnvelope([]byte{0x4c})
		require.ErrorIs(t, err, ord.ErrMalformedEnvelope)
	})
}
