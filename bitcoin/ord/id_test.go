// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package ord_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"ordmarket/bitcoin/ord"
)

func TestID(t *testing.T) {
	t.Run("NewIDFromString", func(t *testing.T) {
		tests := []struct {
			value   string
			invalid bool
		}{
			{"521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79dai0", false},
			{"521f8eccffa4c41a3a7728ddi12ea5a4a02feed81f41159231251ecf1e5c79dai0", true},
			{"521f8eccffa4c41a3a7728dd012ea5a4a02feed81f411251ecf1e5c79dai0", true},
			{"521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79da", true},
		}
		for _, test := range tests {
			_, err := ord.NewIDFromString(test.value)
			if test.invalid {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		}
	})

	t.Run("NewIDFromDataPush", func(t *testing.T) {
		tx, err := hex.DecodeString("521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79da")
		require.NoError(t, err)

		txID, err := chainhash.NewHash(tx)
		require.NoError(t, err)

		tests := []struct {
			value    string
			invalid  bool
			expected *ord.ID
		}{
			{"521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79daff", false, &ord.ID{TxID: txID, Index: 255}},
			{"521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79daff00", false, &ord.ID{TxID: txID, Index: 255}},
			{"521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79da0001", false, &ord.ID{TxID: txID, Index: 256}},
			{"521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79da", false, &ord.ID{TxID: txID, Index: 0}},
			{"521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c", true, nil},
			{"521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79daffffffffff", true, nil},
		}
		for _, test := range tests {
			data, err := hex.DecodeString(test.value)
			require.NoError(t, err)

			id, err := ord.NewIDFromDataPush(data)
			if test.invalid {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.EqualValues(t, test.expected.TxID, id.TxID)
				require.EqualValues(t, test.expected.Index, id.Index)
			}
		}
	})

	t.Run("String", func(t *testing.T) {
		inscriptionID := "521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79dai0"
		id, err := ord.NewIDFromString(inscriptionID)
		require.NoError(t, err)
		require.EqualValues(t, inscriptionID, id.String())
	})

	t.Run("IndexLETrailingZerosOmitted", func(t *testing.T) {
		tests := []struct {
			index    uint32
			expected []byte
		}{
			{0, []byte{}},
			{1, []byte{1}},
			{255, []byte{255}},
			{256, []byte{0, 1}},
			{65536, []byte{0, 0, 1}},
			{16777216, []byte{0, 0, 0, 1}},
		}
		for _, test := range tests {
			id := &ord.ID{Index: test.index}
			require.EqualValues(t, test.expected, id.IndexLETrailingZerosOmitted(), "index %d", test.index)
		}
	})

	t.Run("IntoDataPush round trip", func(t *testing.T) {
		id, err := ord.NewIDFromString("521f8eccffa4c41a3a7728dd012ea5a4a02feed81f41159231251ecf1e5c79dai256")
		require.NoError(t, err)

		parsed, err := ord.NewIDFromDataPush(id.IntoDataPush())
		require.NoError(t, err)
		require.Equal(t, id.String(), parsed.String())
	})
}
