// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"

	"ordmarket/bitcoin"
)

// Format tags the wire representation a PSBT arrived in.
type Format string

const (
	// FormatBase64 defines base64 PSBT representation (preferred).
	FormatBase64 Format = "base64"
	// FormatHex defines hexadecimal PSBT representation.
	FormatHex Format = "hex"
)

// psbtMagic is the BIP-174 serialization prefix "psbt" 0xff.
var psbtMagic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

// Parse decodes a PSBT from base64 or hex and reports which format
// matched. Parsing succeeds only when the magic bytes match under the
// detected framing, there is no speculative second interpretation of
// data that already framed correctly.
func Parse(data string) (*psbt.Packet, Format, error) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return nil, "", fmt.Errorf("%w: empty input", bitcoin.ErrMalformedPSBT)
	}

	if raw, err := hex.DecodeString(trimmed); err == nil {
		if !bytes.HasPrefix(raw, psbtMagic) {
			return nil, "", fmt.Errorf("%w: hex input without psbt magic", bitcoin.ErrMalformedPSBT)
		}

		packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", bitcoin.ErrMalformedPSBT, err)
		}

		return packet, FormatHex, nil
	}

	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil || !bytes.HasPrefix(raw, psbtMagic) {
		return nil, "", fmt.Errorf("%w: neither hex nor base64 psbt framing", bitcoin.ErrMalformedPSBT)
	}

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", bitcoin.ErrMalformedPSBT, err)
	}

	return packet, FormatBase64, nil
}

// Serialize returns the packet in raw BIP-174 bytes.
func Serialize(packet *psbt.Packet) ([]byte, error) {
	w := bytes.NewBuffer(nil)
	if err := packet.Serialize(w); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
