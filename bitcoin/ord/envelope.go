// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package ord

import (
	"encoding/hex"
	"errors"
	"math/big"
	"slices"
	"strings"

	"github.com/btcsuite/btcd/txscript"

	"ordmarket/internal/reverse"
	"ordmarket/internal/sequencereader"
)

// ErrMalformedEnvelope defines that the inscription envelope failed to parse.
var ErrMalformedEnvelope = errors.New("inscription envelope is malformed")

// ErrRepeatedFieldData defines that already filled field met while parsing.
var ErrRepeatedFieldData = errors.New("field already filled")

// envelopeOrdTag defines ord tag to disambiguate inscriptions from other uses of envelopes.
const envelopeOrdTag string = "ord"

// envelopeStartDisASM defines the start of the inscription script in disASM.
// OP_FALSE OP_IF OP_PUSH "ord" ...
const envelopeStartDisASM string = "0 OP_IF 6f7264"

// envelopeEndDisASM defines the end of the inscription script in disASM.
// ... OP_ENDIF.
const envelopeEndDisASM string = "OP_ENDIF"

// maxBodyDataPushLen defines maximum size of the data push for bitcoin scripts.
const maxBodyDataPushLen int = 520

// Envelope describes an inscription envelope carried in the witness of
// a reveal transaction, binding arbitrary content to a sat.
type Envelope struct {
	Body            []byte
	ContentEncoding string
	ContentType     string
	Delegate        *ID
	Metadata        []byte
	Metaprotocol    []byte
	Parents         []*ID
	Pointer         *big.Int
}

// ContainsEnvelope returns true if witness data carries a parseable
// inscription envelope start and end.
func ContainsEnvelope(data []byte) bool {
	_, _, _, err := disasmWitnessDataWithBoundsIndexes(data)

	return err == nil
}

// disasmWitnessDataWithBoundsIndexes returns disassembled witness data with start and end indexes of inscription script.
func disasmWitnessDataWithBoundsIndexes(data []byte) (disasm string, start int, end int, err error) {
	disasm, err = txscript.DisasmString(data)
	if err != nil {
		return disasm, start, end, ErrMalformedEnvelope
	}

	start = strings.Index(disasm, envelopeStartDisASM)
	end = strings.Index(disasm, envelopeEndDisASM)
	if start == -1 || end == -1 || end <= start {
		return disasm, start, end, ErrMalformedEnvelope
	}

	return disasm, start, end, nil
}

// ParseEnvelope parses witness data into Envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	disasm, start, end, err := disasmWitnessDataWithBoundsIndexes(data)
	if err != nil {
		return nil, err
	}

	sr := sequencereader.New[string](strings.Split(disasm[start:end+len(envelopeEndDisASM)], " "))
	// At least OP_FALSE OP_IF OP_PUSH "ord" OP_ENDIF.
	if sr.Len() < 4 {
		return nil, ErrMalformedEnvelope
	}

	// Skip OP_FALSE OP_IF OP_PUSH "ord" due to previous checks (envelopeStartDisASM).
	_, _ = sr.Next()
	_, _ = sr.Next()
	_, _ = sr.Next()

	envelope := new(Envelope)
	for sr.HasNext() {
		tag, _ := sr.Next() // skip error due to the loop condition check.
		if tag == "0" {     // OP_0, means that all next data pushes are body parts.
			err = envelope.fillBody(sr)
		} else if tag == envelopeEndDisASM {
			return envelope, nil
		} else {
			var value string
			value, err = sr.Next()
			if err != nil {
				return nil, ErrMalformedEnvelope
			}

			err = envelope.fillFieldByTag(tag, value)
		}
		if err != nil {
			return nil, err
		}
	}

	return envelope, nil
}

// fillBody fills Body field with body data pushes.
func (e *Envelope) fillBody(sr *sequencereader.SequenceReader[string]) (err error) {
	var payload string
	for sr.HasNext() {
		value, _ := sr.Next() // skip error due to the loop condition check.
		if value == envelopeEndDisASM {
			break
		}

		payload += value
	}

	e.Body, err = hex.DecodeString(payload)
	if err != nil {
		return err
	}

	return nil
}

// fillFieldByTag fills Envelope fields by provided tag.
// Little-endian values are reversed on a fresh copy, the parsed data
// push is never mutated in place.
func (e *Envelope) fillFieldByTag(tag string, value string) (err error) {
	var valueBytes = make([]byte, 0)
	if value != "0" {
		valueBytes, err = hex.DecodeString(value)
		if err != nil {
			return err
		}
	}

	switch tag {
	case TagContentType.HexString():
		if len(e.ContentType) != 0 {
			return ErrRepeatedFieldData
		}

		e.ContentType = string(valueBytes)
	case TagPointer.HexString():
		if e.Pointer != nil {
			return ErrRepeatedFieldData
		}

		e.Pointer = new(big.Int).SetBytes(reverse.Bytes(slices.Clone(valueBytes)))
	case TagParent.HexString():
		id, err := NewIDFromDataPush(valueBytes)
		if err != nil {
			return err
		}

		e.Parents = append(e.Parents, id)
	case TagMetadata.HexString():
		if len(e.Metadata) != 0 {
			return ErrRepeatedFieldData
		}

		e.Metadata = valueBytes
	case TagMetaprotocol.HexString():
		if len(e.Metaprotocol) != 0 {
			return ErrRepeatedFieldData
		}

		e.Metaprotocol = valueBytes
	case TagContentEncoding.HexString():
		if len(e.ContentEncoding) != 0 {
			return ErrRepeatedFieldData
		}

		e.ContentEncoding = string(valueBytes)
	case TagDelegate.HexString():
		if e.Delegate != nil {
			return ErrRepeatedFieldData
		}

		e.Delegate, err = NewIDFromDataPush(valueBytes)
		if err != nil {
			return err
		}
	case TagRune.HexString(), TagNote.HexString(), TagNop.HexString(), TagUnbound.HexString():
	default:
		return ErrMalformedEnvelope
	}

	return nil
}

// IntoScript returns Envelope as a script.
func (e *Envelope) IntoScript() ([]byte, error) {
	scriptBuilder := txscript.NewScriptBuilder()

	// inscription protocol start.
	scriptBuilder.AddOp(txscript.OP_FALSE)
	scriptBuilder.AddOp(txscript.OP_IF)
	scriptBuilder.AddData([]byte(envelopeOrdTag))

	// tags and content.
	if len(e.ContentType) != 0 {
		scriptBuilder.AddOps(TagContentType.IntoDataPush())
		scriptBuilder.AddData([]byte(e.ContentType))
	}

	if e.Pointer != nil {
		scriptBuilder.AddOps(TagPointer.IntoDataPush())
		scriptBuilder.AddData(reverse.Bytes(e.Pointer.Bytes()))
	}

	for _, parent := range e.Parents {
		scriptBuilder.AddOps(TagParent.IntoDataPush())
		scriptBuilder.AddData(parent.IntoDataPush())
	}

	if len(e.Metadata) != 0 {
		scriptBuilder.AddOps(TagMetadata.IntoDataPush())
		scriptBuilder.AddData(e.Metadata)
	}

	if len(e.Metaprotocol) != 0 {
		scriptBuilder.AddOps(TagMetaprotocol.IntoDataPush())
		scriptBuilder.AddData(e.Metaprotocol)
	}

	if len(e.ContentEncoding) != 0 {
		scriptBuilder.AddOps(TagContentEncoding.IntoDataPush())
		scriptBuilder.AddData([]byte(e.ContentEncoding))
	}

	if e.Delegate != nil {
		scriptBuilder.AddOps(TagDelegate.IntoDataPush())
		scriptBuilder.AddData(e.Delegate.IntoDataPush())
	}

	if len(e.Body) != 0 {
		scriptBuilder.AddOp(txscript.OP_0)
		for start := 0; start < len(e.Body); start += maxBodyDataPushLen {
			end := start + maxBodyDataPushLen
			if end > len(e.Body) {
				end = len(e.Body)
			}

			scriptBuilder.AddData(e.Body[start:end])
		}
	}

	// inscription protocol end.
	scriptBuilder.AddOp(txscript.OP_ENDIF)

	return scriptBuilder.Script()
}
