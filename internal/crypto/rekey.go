package crypto

import "phantomvault/internal/util"

// RekeyThreshold is the number of bytes a single stream may process under one
// chunk nonce before a fresh nonce/Serpent-IV pair must be drawn from the
// HKDF stream. This keeps XChaCha20's 24-byte nonce space far from any
// realistic reuse, even for vault entries holding tens of gigabytes.
const RekeyThreshold = 60 * util.GiB

// Counter tracks bytes processed by a stream cipher and reports when the
// rekey threshold has been crossed.
type Counter struct {
	count     int64
	threshold int64
}

// NewCounter creates a byte counter with the standard 60 GiB threshold.
func NewCounter() *Counter {
	return &Counter{threshold: RekeyThreshold}
}

// Add increments the counter by n bytes. Returns true once the threshold has
// been reached, signalling the caller must rekey before encrypting further.
func (c *Counter) Add(n int) bool {
	c.count += int64(n)
	return c.count >= c.threshold
}

// Reset zeroes the counter after a rekey.
func (c *Counter) Reset() {
	c.count = 0
}

// Count reports bytes processed since the last reset.
func (c *Counter) Count() int64 {
	return c.count
}
