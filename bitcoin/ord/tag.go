// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package ord

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// Tag defines special tag for distinguishing inscription envelope field type.
type Tag byte

const (
	// TagContentType defines content-type tag in the inscription protocol.
	// The value is the MIME type of the body.
	TagContentType Tag = 1
	// TagPointer defines pointer tag in the inscription protocol.
	// Points on the sat at the given position in the outputs for the inscription to be made.
	TagPointer Tag = 2
	// TagParent defines parent tag in the inscription protocol.
	// For creating child inscriptions. Points to parent inscription.
	TagParent Tag = 3
	// TagMetadata defines metadata tag in the inscription protocol.
	// Additional metadata in CBOR encoding, concatenated across pushes.
	TagMetadata Tag = 5
	// TagMetaprotocol defines meta-protocol tag in the inscription protocol.
	TagMetaprotocol Tag = 7
	// TagContentEncoding defines content-encoding tag in the inscription protocol.
	TagContentEncoding Tag = 9
	// TagDelegate defines delegate tag in the inscription protocol.
	// This can be used to cheaply create copies of an inscription.
	TagDelegate Tag = 11
	// TagRune defines rune protocol tag. Tolerated but not interpreted.
	TagRune Tag = 13
	// TagNote defines note tag in the inscription protocol.
	TagNote Tag = 15
	// TagUnbound defines unbound tag in the inscription protocol.
	TagUnbound Tag = 66
	// TagNop defines nop tag in the inscription protocol.
	TagNop Tag = 255
)

// IntoDataPush returns Tag as bytes array with OP_PUSH command.
func (t Tag) IntoDataPush() []byte {
	return []byte{txscript.OP_DATA_1, byte(t)}
}

// HexString returns Tag as hexadecimal string with leading zero if needed.
func (t Tag) HexString() string {
	return fmt.Sprintf("%02x", byte(t))
}
