package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bartossh/Rollupis/hashing"
)

// GenesisPrevBlock is the previous block hash of the block at height zero.
var GenesisPrevBlock = hashing.Zero

var ErrChainBroken = errors.New("block does not follow previous block")

// Header is the persisted part of the rollup block.
// CID addresses the archived transactions the block was forged from.
type Header struct {
	Height     uint64       `json:"height"`
	CurBlock   hashing.Hash `json:"cur_block"`
	PrevBlock  hashing.Hash `json:"prev_block"`
	MerkleRoot hashing.Hash `json:"merkle_root"`
	Timestamp  int64        `json:"timestamp"`
	CID        string       `json:"cid"`
}

// NewHeader creates header for the given height on top of the prev block hash.
// Merkle root is calculated from transactions hashes and CurBlock is left empty,
// it is set by Seal when the block is persisted with its archive CID.
func NewHeader(height uint64, prev hashing.Hash, trxHashes []hashing.Hash, timestamp int64) Header {
	return Header{
		Height:     height,
		PrevBlock:  prev,
		MerkleRoot: MerkleRoot(trxHashes),
		Timestamp:  timestamp,
	}
}

// ComputeHash returns Keccak-256 over height, timestamp, previous block and merkle root.
// CID is stored along the header but is not part of the hash.
func (h *Header) ComputeHash() hashing.Hash {
	data := make([]byte, 0, 16)
	data = binary.BigEndian.AppendUint64(data, h.Height)
	data = binary.BigEndian.AppendUint64(data, uint64(h.Timestamp))
	return hashing.Sum(data, h.PrevBlock[:], h.MerkleRoot[:])
}

// Seal sets the CID and recalculates the block hash.
func (h *Header) Seal(cid string) {
	h.CID = cid
	h.CurBlock = h.ComputeHash()
}

// Follows checks that h is the direct successor of prev and h hash is not corrupted.
func (h *Header) Follows(prev *Header) error {
	if h.CurBlock != h.ComputeHash() {
		return errors.Join(ErrChainBroken, fmt.Errorf("block at height %d has corrupted hash", h.Height))
	}
	if prev == nil {
		return nil
	}
	if h.Height != prev.Height+1 {
		return errors.Join(ErrChainBroken, fmt.Errorf("expected height %d, got %d", prev.Height+1, h.Height))
	}
	if h.PrevBlock != prev.CurBlock {
		return errors.Join(ErrChainBroken, fmt.Errorf("block at height %d points to %s not %s", h.Height, h.PrevBlock, prev.CurBlock))
	}
	return nil
}

// MerkleRoot calculates merkle tree root of given hashes.
// Odd levels are padded with the last node. Empty input gives the zero hash.
func MerkleRoot(hashes []hashing.Hash) hashing.Hash {
	tree := newMerkleTree(hashes)
	if tree == nil {
		return hashing.Zero
	}
	return tree.rootNode.hash
}

type merkleTree struct {
	rootNode *merkleNode
}

type merkleNode struct {
	left  *merkleNode
	right *merkleNode
	hash  hashing.Hash
}

func newMerkleNode(left, right *merkleNode, hash hashing.Hash) *merkleNode {
	node := merkleNode{left: left, right: right}
	if left == nil && right == nil {
		node.hash = hash
		return &node
	}
	node.hash = hashing.Sum(left.hash[:], right.hash[:])
	return &node
}

func newMerkleTree(hashes []hashing.Hash) *merkleTree {
	if len(hashes) == 0 {
		return nil
	}

	nodes := make([]merkleNode, 0, len(hashes))
	for _, h := range hashes {
		nodes = append(nodes, *newMerkleNode(nil, nil, h))
	}

	for len(nodes) > 1 {
		if len(nodes)%2 != 0 {
			nodes = append(nodes, nodes[len(nodes)-1])
		}
		level := make([]merkleNode, 0, len(nodes)/2)
		for i := 0; i < len(nodes); i += 2 {
			level = append(level, *newMerkleNode(&nodes[i], &nodes[i+1], hashing.Zero))
		}
		nodes = level
	}

	return &merkleTree{&nodes[0]}
}
