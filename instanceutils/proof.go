package instanceutils

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// InputProof is the unpacked form of the proof passed to contracts.
type InputProof struct {
	Handles    []common.Hash
	Signatures [][]byte
	ExtraData  []byte
}

// PackInputProof lays out handles and coprocessor signatures in the format
// the input verifier contract expects.
func PackInputProof(handles []common.Hash, signatures [][]byte, extraData []byte) ([]byte, error) {
	if len(handles) > 255 || len(signatures) > 255 {
		return nil, fmt.Errorf("too many entries: %d handles, %d signatures", len(handles), len(signatures))
	}

	out := make([]byte, 0, 2+len(handles)*common.HashLength+len(signatures)*crypto.SignatureLength+len(extraData))
	out = append(out, byte(len(handles)), byte(len(signatures)))
	for _, h := range handles {
		out = append(out, h.Bytes()...)
	}
	for i, sig := range signatures {
		if len(sig) != crypto.SignatureLength {
			return nil, fmt.Errorf("signature %d has length %d", i, len(sig))
		}
		out = append(out, sig...)
	}
	return append(out, extraData...), nil
}

func UnpackInputProof(proof []byte) (*InputProof, error) {
	if len(proof) < 2 {
		return nil, errors.New("input proof too short")
	}

	numHandles, numSigners := int(proof[0]), int(proof[1])
	offset := 2
	need := offset + numHandles*common.HashLength + numSigners*crypto.SignatureLength
	if len(proof) < need {
		return nil, fmt.Errorf("input proof of %d bytes cannot hold %d handles and %d signatures", len(proof), numHandles, numSigners)
	}

	unpacked := &InputProof{}
	for i := 0; i < numHandles; i++ {
		unpacked.Handles = append(unpacked.Handles, common.BytesToHash(proof[offset:offset+common.HashLength]))
		offset += common.HashLength
	}
	for i := 0; i < numSigners; i++ {
		sig := make([]byte, crypto.SignatureLength)
		copy(sig, proof[offset:offset+crypto.SignatureLength])
		unpacked.Signatures = append(unpacked.Signatures, sig)
		offset += crypto.SignatureLength
	}
	unpacked.ExtraData = append([]byte(nil), proof[offset:]...)
	return unpacked, nil
}
