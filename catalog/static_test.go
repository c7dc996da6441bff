package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticQueryFiltersAndOrders(t *testing.T) {
	c := NewStatic(
		Question{ID: 3, SubjectID: 1, Type: "single", Difficulty: "easy"},
		Question{ID: 1, SubjectID: 1, Type: "single", Difficulty: "medium"},
		Question{ID: 2, SubjectID: 2, Type: "multi", Difficulty: "easy"},
		Question{ID: 4, SubjectID: 1, Type: "single", Difficulty: "easy"},
	)

	got, err := c.Query(context.Background(), Filter{SubjectID: 1, Type: "single"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 3, 4}, []int64{got[0].ID, got[1].ID, got[2].ID})

	got, err = c.Query(context.Background(), Filter{Difficulty: "easy"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStaticLookupSkipsUnknown(t *testing.T) {
	c := NewStatic(Question{ID: 1}, Question{ID: 2})
	c.Remove(2)

	got, err := c.Lookup(context.Background(), []int64{1, 2, 9})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, int64(1))
}
