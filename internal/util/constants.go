// Package util provides common helpers shared across phantomvault's packages:
// byte-size constants, progress/size formatting, a reusable buffer pool, and
// a general-purpose password generator (GenPassword, which the CLI does not
// call).
//
// All utilities are stateless and safe for concurrent use.
package util

// Size constants for byte calculations.
const (
	KiB = 1 << 10 // 1024
	MiB = 1 << 20 // 1,048,576
	GiB = 1 << 30 // 1,073,741,824
	TiB = 1 << 40 // 1,099,511,627,776
)
