package pv

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// ContentHash computes the content fingerprint of everything read from r,
// as a lowercase hex string. The hash is the dedup key for the whole system:
// two byte-identical files always produce the same hash and collapse to one
// catalog entry and one stored object.
func ContentHash(r io.Reader) (string, int64, error) {
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ContentHashBytes computes the content fingerprint of data.
func ContentHashBytes(data []byte) string {
	h := md5.Sum(data)
	return hex.EncodeToString(h[:])
}
