// Package xid generates prefixed, time-ordered identifiers for ledger rows
// (prod-, sale-, item-, mv-). The nanosecond component keeps ids sortable by
// creation time, the random suffix keeps them unique.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
