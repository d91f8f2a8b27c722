package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a block/problem index does not resolve
var ErrNotFound = errors.New("not found")

// Problem is the opaque content payload for a single task within a block.
// The server never inspects it; it is relayed to clients as-is.
type Problem = json.RawMessage

// Block represents a named group of problems presented together
type Block struct {
	ID       int       `json:"id"`
	Name     string    `json:"name,omitempty"`
	Problems []Problem `json:"problems"`
}

// Catalog is the immutable ordered sequence of blocks loaded at startup.
// Read-only after Load; concurrent reads are safe.
type Catalog struct {
	blocks []Block
}

// Load reads the catalog from a JSON file. A missing or malformed file
// is logged and yields an empty catalog so the server can still run.
func Load(path string) *Catalog {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to read content catalog, starting empty")
		return &Catalog{}
	}

	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to parse content catalog, starting empty")
		return &Catalog{}
	}

	log.Info().Str("path", path).Int("blocks", len(blocks)).Msg("content catalog loaded")
	return &Catalog{blocks: blocks}
}

// Parse builds a catalog from raw JSON, failing on malformed input
func Parse(data []byte) (*Catalog, error) {
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &Catalog{blocks: blocks}, nil
}

// Blocks returns the full ordered block sequence
func (c *Catalog) Blocks() []Block {
	return c.blocks
}

// Block returns the block at the given index
func (c *Catalog) Block(blockIdx int) (*Block, error) {
	if blockIdx < 0 || blockIdx >= len(c.blocks) {
		return nil, ErrNotFound
	}
	return &c.blocks[blockIdx], nil
}

// Get returns the problem at (blockIdx, problemIdx)
func (c *Catalog) Get(blockIdx, problemIdx int) (Problem, error) {
	block, err := c.Block(blockIdx)
	if err != nil {
		return nil, err
	}
	if problemIdx < 0 || problemIdx >= len(block.Problems) {
		return nil, ErrNotFound
	}
	return block.Problems[problemIdx], nil
}

// ProblemCount returns how many problems the block at blockIdx holds,
// or 0 when the index is out of range.
func (c *Catalog) ProblemCount(blockIdx int) int {
	block, err := c.Block(blockIdx)
	if err != nil {
		return 0
	}
	return len(block.Problems)
}
