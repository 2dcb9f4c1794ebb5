// Package quota implements the continuous-refill token bucket that caps a
// user's outbound mutation volume.
package quota

import (
	"time"

	apperrors "github.com/graphwarden/warden-server-go/internal/errors"
)

// TokenBucket is an immutable token bucket observed at a point in time.
// Value holds the tokens available as of Time; reading the balance at any
// later instant goes through ValueAt. Withdrawals produce a new bucket,
// persisting the result is the caller's job. Times are unix seconds, which
// is also how the four fields are stored on the user row.
type TokenBucket struct {
	Rate  float64 // tokens replenished per second
	Max   float64 // capacity ceiling
	Value float64 // tokens available as of Time
	Time  float64 // unix seconds of last observation
}

// Seconds converts a time.Time to the unix-seconds form the bucket uses.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// ValueAt returns the tokens available at now, clamped to [0, Max].
// Clock monotonicity is the caller's responsibility: now is assumed to be
// at or after Time.
func (b TokenBucket) ValueAt(now float64) float64 {
	v := b.Value + b.Rate*(now-b.Time)
	if v > b.Max {
		return b.Max
	}
	if v < 0 {
		return 0
	}
	return v
}

// Withdraw removes amount tokens at now and returns the resulting bucket.
// There is no partial withdrawal: if amount exceeds the balance the bucket
// is returned unchanged with an INSUFFICIENT_QUOTA error.
func (b TokenBucket) Withdraw(now, amount float64) (TokenBucket, error) {
	available := b.ValueAt(now)
	if amount > available {
		return b, apperrors.InsufficientQuota("not enough tokens for withdrawal")
	}
	return TokenBucket{
		Rate:  b.Rate,
		Max:   b.Max,
		Value: available - amount,
		Time:  now,
	}, nil
}
