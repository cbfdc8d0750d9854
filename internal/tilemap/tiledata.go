package tilemap

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

var (
	// ErrTileDataNotReady means the tile data has not been loaded yet.
	// Callers skip the dependent step and retry on a later tick.
	ErrTileDataNotReady = eris.New("tile data not ready")
	// ErrTileDataInvalid means the tile data loaded but cannot be used.
	ErrTileDataInvalid = eris.New("tile data invalid")
)

// PlaceholderTile is the tile index used when no strategy picks one
const PlaceholderTile = 8

// TileData is the declarative tile and chunk metadata record
type TileData struct {
	Dimensions  `yaml:",inline"`
	Placeholder int   `yaml:"placeholder"`
	Palette     []int `yaml:"palette"`
}

// ParseTileData decodes and validates a YAML tile data document
func ParseTileData(data []byte) (*TileData, error) {
	td := &TileData{Placeholder: PlaceholderTile}
	if err := yaml.Unmarshal(data, td); err != nil {
		return nil, eris.Wrap(ErrTileDataInvalid, err.Error())
	}
	if err := td.Validate(); err != nil {
		return nil, err
	}
	if len(td.Palette) == 0 {
		td.Palette = []int{td.Placeholder}
	}
	return td, nil
}

// Source resolves the tile data asset
type Source interface {
	TileData() (*TileData, error)
}

// StaticSource serves tile data that is already in memory
type StaticSource struct {
	Data *TileData
}

// TileData implements Source
func (s StaticSource) TileData() (*TileData, error) {
	if s.Data == nil {
		return nil, ErrTileDataNotReady
	}
	if err := s.Data.Validate(); err != nil {
		return nil, err
	}
	return s.Data, nil
}

// FileSource loads tile data from a YAML file on first successful read and
// caches it. A missing file reports ErrTileDataNotReady, a malformed one
// ErrTileDataInvalid; both are retried on the next call.
type FileSource struct {
	path string

	mu     sync.Mutex
	loaded *TileData
}

// NewFileSource returns a source reading path
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// TileData implements Source
func (s *FileSource) TileData() (*TileData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded != nil {
		return s.loaded, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrTileDataNotReady, "%s", s.path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read tile data %s", s.path)
	}

	td, err := ParseTileData(data)
	if err != nil {
		return nil, eris.Wrapf(err, "parse tile data %s", s.path)
	}
	s.loaded = td
	return td, nil
}
