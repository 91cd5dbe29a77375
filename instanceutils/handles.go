package instanceutils

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FheType identifies the encrypted value type carried by a handle.
type FheType uint8

const (
	FheBool    FheType = 0
	FheUint8   FheType = 2
	FheUint16  FheType = 3
	FheUint32  FheType = 4
	FheUint64  FheType = 5
	FheUint128 FheType = 6
	FheAddress FheType = 7
	FheUint256 FheType = 8
)

// HandleVersion is the layout version written in the last handle byte.
const HandleVersion = 0

var fheTypeBits = map[FheType]int{
	FheBool:    2,
	FheUint8:   8,
	FheUint16:  16,
	FheUint32:  32,
	FheUint64:  64,
	FheUint128: 128,
	FheAddress: 160,
	FheUint256: 256,
}

// Bits is the packing width of the type, 0 for an unknown type.
func (t FheType) Bits() int {
	return fheTypeBits[t]
}

func (t FheType) String() string {
	switch t {
	case FheBool:
		return "ebool"
	case FheAddress:
		return "eaddress"
	default:
		if bits, ok := fheTypeBits[t]; ok {
			return fmt.Sprintf("euint%d", bits)
		}
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ComputeHandles derives one handle per value from the ciphertext blob, the
// ACL address and the chain id.
func ComputeHandles(ciphertext []byte, types []FheType, acl common.Address, chainID uint64) []common.Hash {
	blobHash := crypto.Keccak256(ciphertext)

	var chainIDWord [32]byte
	binary.BigEndian.PutUint64(chainIDWord[24:], chainID)

	handles := make([]common.Hash, len(types))
	for i, t := range types {
		digest := crypto.Keccak256(blobHash, []byte{byte(i)}, acl.Bytes(), chainIDWord[:])

		var h common.Hash
		copy(h[:21], digest[:21])
		h[21] = byte(i)
		binary.BigEndian.PutUint64(h[22:30], chainID)
		h[30] = byte(t)
		h[31] = HandleVersion
		handles[i] = h
	}
	return handles
}

// HandleType returns the value type encoded in a handle.
func HandleType(h common.Hash) FheType {
	return FheType(h[30])
}

// HandleChainID returns the chain id encoded in a handle.
func HandleChainID(h common.Hash) uint64 {
	return binary.BigEndian.Uint64(h[22:30])
}

// IsZeroHandle reports the handle of a never-written value.
func IsZeroHandle(h common.Hash) bool {
	return h == (common.Hash{})
}
