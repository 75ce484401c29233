package worker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelaySchedule(t *testing.T) {
	cases := []struct {
		attempts int32
		want     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{4, 32 * time.Second},
		{5, 64 * time.Second},
		{6, 64 * time.Second},
		{10, 64 * time.Second},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("attempts=%d", tc.attempts), func(t *testing.T) {
			assert.Equal(t, tc.want, retryDelay(tc.attempts))
		})
	}
}

func TestPermanentErrorClassification(t *testing.T) {
	assert.True(t, isPermanent(permanentf("payment not found: %s", "pay-1")))
	assert.True(t, isPermanent(fmt.Errorf("wrapped: %w", permanentf("unexpected event"))))
	assert.False(t, isPermanent(errors.New("connection reset")))
	assert.False(t, isPermanent(nil))
}
