package accrual

import (
	"encoding/binary"
	"fmt"
)

var (
	mintPrefix    = []byte("accrual/mint/")
	claimPrefix   = []byte("accrual/claim/")
	tombPrefix    = []byte("accrual/gone/")
	yieldPrefix   = []byte("accrual/yield/")
	vestingPrefix = []byte("accrual/vest/")

	watermarkKey    = []byte("accrual/meta/watermark")
	nextIDKey       = []byte("accrual/meta/next-id")
	totalsKey       = []byte("accrual/meta/totals")
	vestingStateKey = []byte("accrual/meta/vesting")
	saleKey         = []byte("accrual/meta/sale")
)

func indexKey(prefix []byte, n uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], n)
	return key
}

func parseIndexKey(prefix, key []byte) (uint64, error) {
	if len(key) != len(prefix)+8 {
		return 0, fmt.Errorf("accrual: malformed key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(prefix):]), nil
}

func encodeUint64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeUint64(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("accrual: malformed counter value (%d bytes)", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}
