package simulation

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

const HashLength = 32

type Hash [HashLength]byte

// SetBytes sets the hash to the value of b.
// If b is larger than len(h), b will be cropped from the left.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > len(h) {
		b = b[len(b)-HashLength:]
	}

	copy(h[HashLength-len(b):], b)
}

func (h Hash) String() string {
	enc := make([]byte, len(h[:])*2+2)
	copy(enc, "0x")
	hex.Encode(enc[2:], h[:])
	return string(enc)
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash %q: %w", text, err)
	}
	if len(b) != HashLength {
		return fmt.Errorf("invalid hash length %d, want %d", len(b), HashLength)
	}
	h.SetBytes(b)
	return nil
}

// Placeholder values carried by rewind blocks.
const (
	RewindBlockHash     = -1
	RewindOnlineTickets = -1
)

// Block is one entry of an adversary's chain. BlockHash is the integer drawn
// in the cycle that produced it; every adversary that won PoW in that cycle
// shares it.
type Block struct {
	Height        int   `json:"height"`
	BlockHash     int   `json:"block_hash"`
	FromCycle     int   `json:"from_cycle"`
	OnlineTickets int   `json:"online_tickets"`
	OwnedTickets  []int `json:"owned_tickets"`
	Synthetic     bool  `json:"synthetic,omitempty"`
	ParentID      Hash  `json:"-"`

	// computed once on append
	id Hash
}

func newRewindBlock(height int) *Block {
	return &Block{
		Height:        height,
		BlockHash:     RewindBlockHash,
		FromCycle:     -1,
		OnlineTickets: RewindOnlineTickets,
		Synthetic:     true,
	}
}

// ID returns a digest of the block and, through ParentID, of its ancestors.
func (b *Block) ID() Hash {
	return b.id
}

func (b *Block) seal() {
	buf := make([]byte, 0, HashLength+8*5+8*len(b.OwnedTickets))
	buf = append(buf, b.ParentID[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(b.Height))
	buf = binary.BigEndian.AppendUint64(buf, uint64(int64(b.BlockHash)))
	buf = binary.BigEndian.AppendUint64(buf, uint64(int64(b.FromCycle)))
	buf = binary.BigEndian.AppendUint64(buf, uint64(int64(b.OnlineTickets)))
	if b.Synthetic {
		buf = append(buf, 1)
	}
	for _, t := range b.OwnedTickets {
		buf = binary.BigEndian.AppendUint64(buf, uint64(t))
	}
	sum := blake3.Sum256(buf)
	b.id.SetBytes(sum[:])
}

func (b *Block) String() string {
	return fmt.Sprintf("{ Height: %v, BlockHash: %v, FromCycle: %v, OnlineTickets: %v, OwnedTickets: %v}",
		b.Height, b.BlockHash, b.FromCycle, b.OnlineTickets, b.OwnedTickets)
}

// ResealChain recomputes parent links and IDs of blocks restored from a
// serialized record.
func ResealChain(blocks []*Block) {
	var parent Hash
	for _, b := range blocks {
		b.ParentID = parent
		b.seal()
		parent = b.id
	}
}

// Chain is an append-only sequence of blocks indexed by local height.
type Chain struct {
	blocks []*Block
}

func NewChain() *Chain {
	return &Chain{
		blocks: make([]*Block, 0),
	}
}

// Append links b to the current head, sets its height and seals it.
func (c *Chain) Append(b *Block) {
	b.Height = len(c.blocks)
	if head := c.Head(); head != nil {
		b.ParentID = head.ID()
	}
	b.seal()
	c.blocks = append(c.blocks, b)
}

func (c *Chain) Len() int {
	return len(c.blocks)
}

// Head returns the last block, or nil for an empty chain.
func (c *Chain) Head() *Block {
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// Block returns the block at height, or nil.
func (c *Chain) Block(height int) *Block {
	if height < 0 || height >= len(c.blocks) {
		return nil
	}
	return c.blocks[height]
}

// Blocks returns a copy of the block slice.
func (c *Chain) Blocks() []*Block {
	out := make([]*Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}
