package domain_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parlor/domain"
)

func TestHistoryEvictsOldestFirst(t *testing.T) {
	h := domain.NewHistory(4)

	for i := 1; i <= 6; i++ {
		h.Append(domain.UserMessage(fmt.Sprintf("m%d", i)))
	}

	got := h.Snapshot()
	require.Len(t, got, 4)
	assert.Equal(t, "m3", got[0].Content)
	assert.Equal(t, "m6", got[3].Content)
}

func TestHistoryDefaultCapacity(t *testing.T) {
	t.Run("zero falls back to default", func(t *testing.T) {
		h := domain.NewHistory(0)
		assert.Equal(t, domain.DefaultHistoryCapacity, h.Capacity())
	})

	t.Run("negative falls back to default", func(t *testing.T) {
		h := domain.NewHistory(-3)
		assert.Equal(t, domain.DefaultHistoryCapacity, h.Capacity())
	})
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	h := domain.NewHistory(4)
	h.Append(domain.UserMessage("original"))

	snap := h.Snapshot()
	snap[0].Content = "mutated"

	assert.Equal(t, "original", h.Snapshot()[0].Content)
}

func TestHistoryReset(t *testing.T) {
	h := domain.NewHistory(4)
	h.Append(domain.UserMessage("hello"))
	h.Append(domain.AssistantMessage("hi"))
	require.Equal(t, 2, h.Len())

	h.Reset()

	assert.Zero(t, h.Len())
	assert.Empty(t, h.Snapshot())
	assert.Equal(t, 4, h.Capacity())
}
