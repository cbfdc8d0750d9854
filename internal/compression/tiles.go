package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"

	"github.com/rotisserie/eris"
)

const (
	// Magic number for chunk tile payloads
	TilesMagic = "TILE"
	// Current format version
	TilesVersion = 1
	// Gzip compression level (balance between size and speed)
	DefaultGzipLevel = 6
)

// ErrMalformedTiles reports a payload that cannot be decoded
var ErrMalformedTiles = eris.New("malformed tile payload")

// TilesHeader represents the binary format header
type TilesHeader struct {
	Magic       [4]byte // "TILE"
	Version     uint8
	FormatFlags uint8 // Bit 0: index size (0=8-bit, 1=16-bit)
	Width       uint16
	Height      uint16
}

// EncodeChunkTiles packs a row-major chunk of tile indices into a gzip
// compressed binary payload. Indices use one byte each when they all fit.
func EncodeChunkTiles(width, height int, indices []int) ([]byte, error) {
	if width <= 0 || height <= 0 || width > 0xffff || height > 0xffff {
		return nil, eris.Errorf("invalid chunk footprint %dx%d", width, height)
	}
	if len(indices) != width*height {
		return nil, eris.Errorf("expected %d indices, got %d", width*height, len(indices))
	}

	wide := false
	for _, idx := range indices {
		if idx < 0 || idx > 0xffff {
			return nil, eris.Errorf("tile index %d out of range", idx)
		}
		if idx > 0xff {
			wide = true
		}
	}

	var buf bytes.Buffer
	header := TilesHeader{Version: TilesVersion, Width: uint16(width), Height: uint16(height)}
	copy(header.Magic[:], TilesMagic)
	if wide {
		header.FormatFlags |= 0x01
	}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, eris.Wrap(err, "failed to write header")
	}

	if wide {
		body := make([]uint16, len(indices))
		for i, idx := range indices {
			body[i] = uint16(idx)
		}
		if err := binary.Write(&buf, binary.LittleEndian, body); err != nil {
			return nil, eris.Wrap(err, "failed to write indices")
		}
	} else {
		for _, idx := range indices {
			buf.WriteByte(byte(idx))
		}
	}

	compressed, err := gzipCompress(buf.Bytes(), DefaultGzipLevel)
	if err != nil {
		return nil, eris.Wrap(err, "failed to compress with gzip")
	}
	return compressed, nil
}

// DecodeChunkTiles reverses EncodeChunkTiles
func DecodeChunkTiles(data []byte) (width, height int, indices []int, err error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, 0, nil, eris.Wrap(ErrMalformedTiles, err.Error())
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return 0, 0, nil, eris.Wrap(ErrMalformedTiles, err.Error())
	}

	r := bytes.NewReader(raw)
	var header TilesHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return 0, 0, nil, eris.Wrap(ErrMalformedTiles, "short header")
	}
	if string(header.Magic[:]) != TilesMagic {
		return 0, 0, nil, eris.Wrapf(ErrMalformedTiles, "bad magic %q", header.Magic[:])
	}
	if header.Version != TilesVersion {
		return 0, 0, nil, eris.Wrapf(ErrMalformedTiles, "unsupported version %d", header.Version)
	}

	n := int(header.Width) * int(header.Height)
	indices = make([]int, n)
	if header.FormatFlags&0x01 != 0 {
		body := make([]uint16, n)
		if err := binary.Read(r, binary.LittleEndian, body); err != nil {
			return 0, 0, nil, eris.Wrap(ErrMalformedTiles, "short body")
		}
		for i, v := range body {
			indices[i] = int(v)
		}
	} else {
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, 0, nil, eris.Wrap(ErrMalformedTiles, "short body")
		}
		for i, v := range body {
			indices[i] = int(v)
		}
	}
	return int(header.Width), int(header.Height), indices, nil
}

// gzipCompress compresses data using gzip
func gzipCompress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create gzip writer")
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, eris.Wrap(err, "failed to write to gzip")
	}

	if err := writer.Close(); err != nil {
		return nil, eris.Wrap(err, "failed to close gzip writer")
	}

	return buf.Bytes(), nil
}
