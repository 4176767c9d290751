package backup

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxvault/voxvault/pkg/crypto"
)

// MagicNumber identifies voxvault backup containers: "VXLT_BKP".
var MagicNumber = [8]byte{'V', 'X', 'L', 'T', '_', 'B', 'K', 'P'}

// FormatVersion is the current container format version.
const FormatVersion = 1

const hmacLength = 32

// Upper bounds on header KDF parameters, rejected as corrupt beyond
// these. They keep a hostile header from driving Argon2 into
// multi-gigabyte allocations before the MAC is checked.
const (
	maxKDFTime      = 64
	maxKDFMemoryKiB = 2 * 1024 * 1024 // 2 GiB
)

// Header carries the plaintext container metadata. Everything needed
// to re-derive the keys lives here; the payload itself is opaque.
type Header struct {
	Version    int           `json:"version"`
	CreatedAt  time.Time     `json:"created_at"`
	KDF        crypto.Params `json:"kdf"`
	Salt       []byte        `json:"salt"`
	EntryCount int           `json:"entry_count"`
}

// writeHeader appends the magic number, a big-endian length prefix,
// and the JSON header to buf.
func writeHeader(buf *bytes.Buffer, hdr *Header) error {
	if _, err := buf.Write(MagicNumber[:]); err != nil {
		return fmt.Errorf("backup: failed to write magic number: %w", err)
	}
	headerJSON, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("backup: failed to marshal header: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return fmt.Errorf("backup: failed to write header length: %w", err)
	}
	if _, err := buf.Write(headerJSON); err != nil {
		return fmt.Errorf("backup: failed to write header: %w", err)
	}
	return nil
}

// readHeader parses the magic number and header from the start of the
// container and returns the header plus the number of bytes consumed.
func readHeader(data []byte) (*Header, int, error) {
	if len(data) < len(MagicNumber)+4 {
		return nil, 0, ErrCorrupt
	}
	if !bytes.Equal(data[:len(MagicNumber)], MagicNumber[:]) {
		return nil, 0, ErrInvalidMagic
	}

	headerLen := int(binary.BigEndian.Uint32(data[len(MagicNumber) : len(MagicNumber)+4]))
	offset := len(MagicNumber) + 4
	if headerLen <= 0 || headerLen > len(data)-offset {
		return nil, 0, ErrCorrupt
	}

	var hdr Header
	if err := json.Unmarshal(data[offset:offset+headerLen], &hdr); err != nil {
		return nil, 0, fmt.Errorf("%w: invalid header", ErrCorrupt)
	}
	if hdr.Version != FormatVersion {
		return nil, 0, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, hdr.Version)
	}
	if err := checkKDFBounds(hdr.KDF); err != nil {
		return nil, 0, err
	}
	if len(hdr.Salt) == 0 {
		return nil, 0, fmt.Errorf("%w: missing salt", ErrCorrupt)
	}
	return &hdr, offset + headerLen, nil
}

// checkKDFBounds rejects KDF parameters Argon2 would refuse or that
// would allocate unreasonable memory.
func checkKDFBounds(p crypto.Params) error {
	if p.Time < 1 || p.Time > maxKDFTime {
		return fmt.Errorf("%w: kdf time cost %d out of range", ErrCorrupt, p.Time)
	}
	if p.Threads < 1 {
		return fmt.Errorf("%w: kdf parallelism %d out of range", ErrCorrupt, p.Threads)
	}
	if p.MemoryKiB > maxKDFMemoryKiB || p.MemoryKiB < 8*uint32(p.Threads) {
		return fmt.Errorf("%w: kdf memory %d KiB out of range", ErrCorrupt, p.MemoryKiB)
	}
	return nil
}
