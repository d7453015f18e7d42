package cache

import "math/bits"

// Decoder splits a 64-bit byte address into tag, set index and block
// offset.
//
//	|****** TAG ******|**** SET ****|** OFFSET **|
type Decoder struct {
	OffsetBits uint
	SetBits    uint
	NumSets    int
	SetMask    uint64
}

// NewDecoder derives the bit layout from a cache configuration.
func NewDecoder(config Config) (*Decoder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	numSets := config.NumSets()

	return &Decoder{
		OffsetBits: uint(bits.TrailingZeros(uint(config.BlockSize))),
		SetBits:    uint(bits.TrailingZeros(uint(numSets))),
		NumSets:    numSets,
		SetMask:    uint64(numSets - 1),
	}, nil
}

// SetIndex returns the set an address maps to.
func (d *Decoder) SetIndex(addr uint64) int {
	return int((addr >> d.OffsetBits) & d.SetMask)
}

// Tag returns the high-order bits above the set index.
func (d *Decoder) Tag(addr uint64) uint64 {
	return addr >> (d.OffsetBits + d.SetBits)
}

// Offset returns the byte offset within the block.
func (d *Decoder) Offset(addr uint64) uint64 {
	return addr & (1<<d.OffsetBits - 1)
}

// Compose rebuilds an address from its three fields.
func (d *Decoder) Compose(tag uint64, setIndex int, offset uint64) uint64 {
	return tag<<(d.OffsetBits+d.SetBits) |
		uint64(setIndex)<<d.OffsetBits |
		offset
}
