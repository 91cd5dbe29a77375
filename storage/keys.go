package storage

import (
	"crypto/sha256"
	"encoding/hex"
)

// objectName maps an arbitrary key onto a fixed-length path component.
func objectName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
