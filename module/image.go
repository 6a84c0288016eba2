package module

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Image Format Constants
// ---------------------------------------------------------------------------

// ImageMagic identifies a Gear module image.
var ImageMagic = [4]byte{'G', 'E', 'A', 'R'}

// ImageVersion is the current image format version.
// v1: initial format
const ImageVersion uint32 = 1

// ImageHeaderSize is magic(4) + version(4).
const ImageHeaderSize = 8

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("module: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode serializes m into an image. The payload is canonical CBOR, so equal
// modules produce identical bytes.
func Encode(m *Module) ([]byte, error) {
	payload, err := cborEncMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("module: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(ImageHeaderSize + len(payload))
	buf.Write(ImageMagic[:])
	binary.Write(&buf, binary.LittleEndian, ImageVersion)
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decode parses an image produced by Encode and validates it.
func Decode(data []byte) (*Module, error) {
	if len(data) < ImageHeaderSize {
		return nil, fmt.Errorf("module: image too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:4], ImageMagic[:]) {
		return nil, fmt.Errorf("module: bad magic %q", data[:4])
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != ImageVersion {
		return nil, fmt.Errorf("module: unsupported image version %d (want %d)", version, ImageVersion)
	}
	var m Module
	if err := cbor.Unmarshal(data[ImageHeaderSize:], &m); err != nil {
		return nil, fmt.Errorf("module: unmarshal: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("module: invalid image: %w", err)
	}
	return &m, nil
}

// WriteFile encodes m and writes it to path.
func WriteFile(path string, m *Module) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("module: write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and decodes the image at path.
func ReadFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("module: read %s: %w", path, err)
	}
	return Decode(data)
}

// ---------------------------------------------------------------------------
// Content hashing
// ---------------------------------------------------------------------------

// Hash is the SHA-256 of an encoded image.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// HashImage hashes encoded image bytes.
func HashImage(data []byte) Hash {
	return sha256.Sum256(data)
}
