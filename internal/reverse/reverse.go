// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package reverse

// Bytes reverses value in place and returns it. Inscription protocol
// integers travel little-endian while big.Int speaks big-endian, callers
// pass a copy when the source must stay intact.
func Bytes(value []byte) []byte {
	n := len(value)
	for i := 0; i < n/2; i++ {
		value[i], value[n-1-i] = value[n-1-i], value[i]
	}

	return value
}
