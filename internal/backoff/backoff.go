// Package backoff computes retry delays aligned to the remote API's
// rate-limit reset windows.
package backoff

import (
	"math/rand/v2"
	"time"
)

const (
	// SlotWindow matches the remote API's rate-limit reset granularity.
	// Naive exponential backoff clusters retries right after a reset;
	// aligning slots to the window and randomizing within one smooths the
	// load out.
	SlotWindow = 15 * time.Minute

	// MaxSlot caps the lookahead at roughly 23 hours so a scheduled retry
	// never exceeds the queue's maximum delay window.
	MaxSlot = 23 * 4
)

// Delay picks a retry delay: a slot is chosen by binary exponential backoff
// over 15-minute windows, then a uniform offset within that slot. The
// result is always at least base, which callers use to carry a known
// "time remaining until reset" floor.
func Delay(base time.Duration, retries int) time.Duration {
	maxSlot := MaxSlot
	if retries < 7 { // 2^7-1 > MaxSlot
		if s := 1<<uint(retries) - 1; s < maxSlot {
			maxSlot = s
		}
	}
	slot := rand.IntN(maxSlot + 1)
	low := time.Duration(slot) * SlotWindow
	offset := low + rand.N(SlotWindow)
	return base + offset
}
