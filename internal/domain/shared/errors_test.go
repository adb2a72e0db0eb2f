package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError(t *testing.T) {
	t.Run("matches wrapped sentinel by code", func(t *testing.T) {
		err := fmt.Errorf("failed to load payment: %w", NewNotFoundError("Payment"))

		assert.True(t, errors.Is(err, ErrNotFound))
		assert.False(t, errors.Is(err, ErrInvalidState))
		assert.Equal(t, "NOT_FOUND", ErrorCode(err))
		assert.Equal(t, "failed to load payment: Payment not found", err.Error())
	})

	t.Run("error code is empty for plain errors", func(t *testing.T) {
		assert.Equal(t, "", ErrorCode(errors.New("boom")))
	})
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]int{1, 2, 3}, 41, 2, 20)

	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(41), p.Total)
	assert.Equal(t, 2, p.Page)

	empty := NewPaginated([]int{}, 0, 1, 0)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestFilter_Normalize(t *testing.T) {
	f := Filter{Page: 0, PageSize: 1000}.Normalize()

	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 200, f.PageSize)
	assert.Equal(t, 0, f.Offset())

	f = Filter{Page: 3, PageSize: 10}.Normalize()
	assert.Equal(t, 20, f.Offset())
}
