// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package sequencereader_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ordmarket/internal/sequencereader"
)

func TestSequenceReader(t *testing.T) {
	tokens := []string{"0", "OP_IF", "6f7264", "OP_ENDIF"}

	t.Run("walks the sequence in order", func(t *testing.T) {
		sr := sequencereader.New(tokens)
		require.Equal(t, len(tokens), sr.Len())

		for i := 0; sr.HasNext(); i++ {
			token, err := sr.Next()
			require.NoError(t, err)
			require.Equal(t, tokens[i], token)
			require.Equal(t, len(tokens)-i-1, sr.Len())
		}
	})

	t.Run("read past the end", func(t *testing.T) {
		sr := sequencereader.New(tokens[:1])

		_, err := sr.Next()
		require.NoError(t, err)
		require.False(t, sr.HasNext())

		_, err = sr.Next()
		require.ErrorIs(t, err, sequencereader.ErrSequenceEnded)
	})

	t.Run("empty sequence", func(t *testing.T) {
		sr := sequencereader.New[int](nil)
		require.False(t, sr.HasNext())
		require.Zero(t, sr.Len())

		_, err := sr.Next()
		require.ErrorIs(t, err, sequencereader.ErrSequenceEnded)
	})
}
