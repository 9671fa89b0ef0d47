package wisdom

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBase_Seeds(t *testing.T) {
	b := NewBase(0)
	require.Equal(t, len(Seeds), b.Len())

	top := b.Top(5)
	assert.Equal(t, 10.0, top[0].Score)
	assert.Equal(t, 6.0, top[4].Score)
	assert.False(t, top[0].Timestamp.IsZero())
}

func TestBase_EvictsOldest(t *testing.T) {
	b := NewBase(6)
	b.Append(Entry{Lesson: "new-1", Score: 1})
	b.Append(Entry{Lesson: "new-2", Score: 1})

	entries := b.Entries()
	require.Len(t, entries, 6)
	assert.Equal(t, "seed_2", entries[0].SourceID)
	assert.Equal(t, "new-2", entries[5].Lesson)
}

func TestBase_TopOrdering(t *testing.T) {
	b := NewBase(100)
	b.Append(Entry{Lesson: "best", Score: 20})
	b.Append(Entry{Lesson: "tie-a", Score: 8})

	assert.Equal(t, []string{"best", Seeds[0].Lesson}, b.TopLessons(2))

	top := b.Top(-1)
	require.Len(t, top, 7)
	// equal scores keep append order
	assert.Equal(t, Seeds[2].Lesson, top[3].Lesson)
	assert.Equal(t, "tie-a", top[4].Lesson)
}

func TestBase_ConcurrentAppend(t *testing.T) {
	b := NewBase(50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Append(Entry{Lesson: fmt.Sprintf("%d-%d", i, j), Score: 1})
				_ = b.Top(3)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
}
