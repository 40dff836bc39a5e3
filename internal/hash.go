package internal

import (
	"crypto/md5"
	"encoding/hex"
)

// HashURL returns a stable hex digest used as cache and ledger key for a URL.
func HashURL(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
