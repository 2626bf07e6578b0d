package secfeature

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Envelope wire format:
//
//	magic "VDSF" | version byte | uint32 content length | content bytes |
//	repeated blocks: uint8 name length | name | uint8 payload length | payload
//
// The content is the canonical document representation handed over by the
// rendering collaborator; blocks are the machine-readable feature payloads.
const (
	envelopeMagic   = "VDSF"
	envelopeVersion = byte(1)

	payloadSize = 32 // BLAKE2b-256
)

// block is one applied feature marker.
type block struct {
	name    Feature
	payload []byte
}

// envelope is the parsed document: content plus applied markers in order.
type envelope struct {
	content []byte
	blocks  []block
}

// encode serializes the envelope deterministically.
func (e *envelope) encode() []byte {
	size := len(envelopeMagic) + 1 + 4 + len(e.content)
	for _, b := range e.blocks {
		size += 1 + len(b.name) + 1 + len(b.payload)
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.WriteString(envelopeMagic)
	buf.WriteByte(envelopeVersion)

	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(e.content)))
	buf.Write(lenBytes[:])
	buf.Write(e.content)

	for _, b := range e.blocks {
		buf.WriteByte(byte(len(b.name)))
		buf.WriteString(string(b.name))
		buf.WriteByte(byte(len(b.payload)))
		buf.Write(b.payload)
	}
	return buf.Bytes()
}

// parseEnvelope decodes document bytes back into content and blocks.
func parseEnvelope(data []byte) (*envelope, error) {
	if len(data) < len(envelopeMagic)+1+4 {
		return nil, fmt.Errorf("document too short for envelope header")
	}
	if string(data[:len(envelopeMagic)]) != envelopeMagic {
		return nil, fmt.Errorf("bad envelope magic")
	}
	offset := len(envelopeMagic)

	if data[offset] != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", data[offset])
	}
	offset++

	contentLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if offset+contentLen > len(data) {
		return nil, fmt.Errorf("content length %d exceeds document size", contentLen)
	}

	env := &envelope{content: data[offset : offset+contentLen]}
	offset += contentLen

	for offset < len(data) {
		nameLen := int(data[offset])
		offset++
		if offset+nameLen > len(data) {
			return nil, fmt.Errorf("truncated feature name")
		}
		name := Feature(data[offset : offset+nameLen])
		offset += nameLen

		if offset >= len(data) {
			return nil, fmt.Errorf("missing payload for feature %s", name)
		}
		payloadLen := int(data[offset])
		offset++
		if offset+payloadLen > len(data) {
			return nil, fmt.Errorf("truncated payload for feature %s", name)
		}
		env.blocks = append(env.blocks, block{
			name:    name,
			payload: data[offset : offset+payloadLen],
		})
		offset += payloadLen
	}

	return env, nil
}

// Content extracts the canonical content from document bytes without
// touching the feature blocks.
func Content(docBytes []byte) ([]byte, error) {
	env, err := parseEnvelope(docBytes)
	if err != nil {
		return nil, err
	}
	return env.content, nil
}
