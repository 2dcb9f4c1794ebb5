package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/graphwarden/warden-server-go/internal/errors"
)

func TestValueAt(t *testing.T) {
	b := TokenBucket{Rate: 2.0, Max: 200.0, Value: 100.0, Time: 50.0}

	t.Run("returns stored value at observation time", func(t *testing.T) {
		assert.Equal(t, 100.0, b.ValueAt(50))
	})

	t.Run("refills at rate per second", func(t *testing.T) {
		assert.Equal(t, 198.0, b.ValueAt(99))
	})

	t.Run("saturates at max", func(t *testing.T) {
		assert.Equal(t, 200.0, b.ValueAt(101))
		assert.Equal(t, 200.0, b.ValueAt(500))
	})

	t.Run("never goes below zero", func(t *testing.T) {
		assert.Equal(t, 0.0, b.ValueAt(-500))
	})

	t.Run("non-decreasing until saturation", func(t *testing.T) {
		prev := 0.0
		for now := 50.0; now <= 120.0; now += 1.0 {
			v := b.ValueAt(now)
			assert.GreaterOrEqual(t, v, prev)
			assert.LessOrEqual(t, v, b.Max)
			prev = v
		}
	})
}

func TestWithdraw(t *testing.T) {
	b := TokenBucket{Rate: 2.0, Max: 200.0, Value: 100.0, Time: 50.0}

	t.Run("reduces balance by amount", func(t *testing.T) {
		before := b.ValueAt(100)

		got, err := b.Withdraw(100, 100)
		require.NoError(t, err)
		assert.Equal(t, before-100, got.ValueAt(100))
		assert.Equal(t, 100.0, got.Time)
	})

	t.Run("successive withdrawals refill in between", func(t *testing.T) {
		got, err := b.Withdraw(100, 100)
		require.NoError(t, err)
		got, err = got.Withdraw(101, 100)
		require.NoError(t, err)
		assert.Equal(t, 2.0, got.Value)
	})

	t.Run("fails when amount exceeds balance", func(t *testing.T) {
		_, err := b.Withdraw(50, 100.5)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientQuota))
	})

	t.Run("no partial withdrawal on failure", func(t *testing.T) {
		got, err := b.Withdraw(50, 1e9)
		require.Error(t, err)
		assert.Equal(t, b, got)
	})

	t.Run("exact balance is allowed", func(t *testing.T) {
		got, err := b.Withdraw(50, 100)
		require.NoError(t, err)
		assert.Equal(t, 0.0, got.Value)
	})
}
