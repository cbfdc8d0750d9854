package compression

import (
	"encoding/base64"

	"github.com/rotisserie/eris"
)

// CompressedTiles represents a compressed tile payload ready for transmission
type CompressedTiles struct {
	Format           string `json:"format"`            // "binary_gzip"
	Data             string `json:"data"`              // Base64-encoded compressed data
	Size             int    `json:"size"`              // Compressed size in bytes
	UncompressedSize int    `json:"uncompressed_size"` // Tile count
}

// FormatCompressedTiles formats a compressed payload for JSON transmission
func FormatCompressedTiles(compressedData []byte, tileCount int) *CompressedTiles {
	return &CompressedTiles{
		Format:           "binary_gzip",
		Data:             base64.StdEncoding.EncodeToString(compressedData),
		Size:             len(compressedData),
		UncompressedSize: tileCount,
	}
}

// CompressAndFormatTiles encodes and formats a chunk's tiles in one step
func CompressAndFormatTiles(width, height int, indices []int) (*CompressedTiles, error) {
	data, err := EncodeChunkTiles(width, height, indices)
	if err != nil {
		return nil, err
	}
	return FormatCompressedTiles(data, len(indices)), nil
}

// ParseCompressedTiles decodes a transmitted payload back into tile indices
func ParseCompressedTiles(c *CompressedTiles) (width, height int, indices []int, err error) {
	if c == nil || c.Format != "binary_gzip" {
		return 0, 0, nil, eris.Wrap(ErrMalformedTiles, "unsupported format")
	}
	data, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		return 0, 0, nil, eris.Wrap(ErrMalformedTiles, err.Error())
	}
	return DecodeChunkTiles(data)
}
