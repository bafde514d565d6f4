package session

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/san-kum/twinkit/internal/twin"
)

// State blobs are opaque to callers but carry a small tagged header so a
// session can reject blobs produced by a different model before handing
// the engine payload over:
//
//	magic "TWST" | format byte | uint32 header length | JSON header | engine payload
var blobMagic = []byte("TWST")

const blobFormat = 1

type blobHeader struct {
	Model        string      `json:"model"`
	ModelVersion string      `json:"model_version"`
	SessionID    string      `json:"session_id"`
	Time         float64     `json:"time"`
	Inputs       twin.Values `json:"inputs,omitempty"`
	Parameters   twin.Values `json:"parameters,omitempty"`
	Outputs      twin.Values `json:"outputs,omitempty"`
}

func encodeBlob(h blobHeader, payload []byte) ([]byte, error) {
	hdr, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(blobMagic)
	buf.WriteByte(blobFormat)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(hdr))); err != nil {
		return nil, err
	}
	buf.Write(hdr)
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decodeBlob(data []byte) (blobHeader, []byte, error) {
	var h blobHeader
	if len(data) < len(blobMagic)+1+4 || !bytes.Equal(data[:len(blobMagic)], blobMagic) {
		return h, nil, fmt.Errorf("%w: not a session state blob", twin.ErrIncompatibleState)
	}
	rest := data[len(blobMagic):]
	if rest[0] != blobFormat {
		return h, nil, fmt.Errorf("%w: unsupported blob format %d", twin.ErrIncompatibleState, rest[0])
	}
	rest = rest[1:]
	hdrLen := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < hdrLen {
		return h, nil, fmt.Errorf("%w: truncated blob header", twin.ErrIncompatibleState)
	}
	if err := json.Unmarshal(rest[:hdrLen], &h); err != nil {
		return h, nil, fmt.Errorf("%w: malformed blob header", twin.ErrIncompatibleState)
	}
	return h, rest[hdrLen:], nil
}
