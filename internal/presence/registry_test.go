package presence

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/npezzotti/go-docsync/internal/types"
	"github.com/stretchr/testify/assert"
)

func intPtr(i int) *int { return &i }

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	e, err := r.Add("a", "alice", now)
	assert.NoError(t, err)
	assert.Equal(t, "a", e.UserId)
	assert.Nil(t, e.Position, "expected cursor to start null")
	assert.Nil(t, e.SelectionStart)
	assert.Nil(t, e.SelectionEnd)
	assert.Equal(t, now, e.LastSeen)

	_, err = r.Add("a", "alice again", now)
	assert.ErrorIs(t, err, ErrDuplicateUser)
	assert.Equal(t, 1, r.Len())

	removed, ok := r.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, "alice", removed.Username)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Remove("a")
	assert.False(t, ok, "expected second removal to report missing user")
}

func TestRegistry_RosterSize(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 20; round++ {
		r := NewRegistry()
		n := rng.Intn(30) + 1
		var present []string
		joins, leaves := 0, 0

		for i := 0; i < n; i++ {
			id := fmt.Sprintf("u%d", i)
			_, err := r.Add(id, id, time.Now())
			assert.NoError(t, err)
			present = append(present, id)
			joins++

			// interleave leaves with joins
			if len(present) > 0 && rng.Intn(2) == 0 {
				k := rng.Intn(len(present))
				_, ok := r.Remove(present[k])
				assert.True(t, ok)
				present = append(present[:k], present[k+1:]...)
				leaves++
			}
		}

		assert.Equal(t, joins-leaves, r.Len(), "expected roster size N-M")
		assert.Len(t, r.Snapshot(), joins-leaves)
	}
}

func TestRegistry_ColorShiftsOnDeparture(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"A", "B", "C"} {
		_, err := r.Add(id, id, time.Now())
		assert.NoError(t, err)
	}

	assert.Equal(t, Colors[0], r.Color("A"))
	assert.Equal(t, Colors[1], r.Color("B"))
	assert.Equal(t, Colors[2], r.Color("C"))
	assert.Equal(t, Icons[2], r.Icon("C"))

	beforeColor, beforeIcon := r.Color("C"), r.Icon("C")
	r.Remove("B")

	assert.NotEqual(t, beforeColor, r.Color("C"), "expected C's color to change after B leaves")
	assert.NotEqual(t, beforeIcon, r.Icon("C"), "expected C's icon to change after B leaves")
	assert.Equal(t, Colors[1], r.Color("C"))
	assert.Equal(t, Icons[1], r.Icon("C"))
	assert.Equal(t, Colors[0], r.Color("A"), "expected A to keep its ordinal")
	assert.Equal(t, "", r.Color("B"), "expected departed user to have no color")
}

func TestColor_Cycles(t *testing.T) {
	var order []string
	for i := 0; i < 10; i++ {
		order = append(order, fmt.Sprintf("u%d", i))
	}

	assert.Equal(t, Colors[0], Color(order, "u8"), "expected palette to wrap after 8 entries")
	assert.Equal(t, Icons[1], Icon(order, "u9"))
	assert.Equal(t, "", Icon(order, "missing"))
}

func TestRegistry_UpdateCursorAndTouch(t *testing.T) {
	r := NewRegistry()
	start := time.Now()
	r.Add("a", "alice", start)

	later := start.Add(time.Second)
	e, ok := r.UpdateCursor("a", types.Cursor{
		Position:       intPtr(4),
		SelectionStart: intPtr(2),
		SelectionEnd:   intPtr(4),
	}, later)
	assert.True(t, ok)
	assert.Equal(t, 4, *e.Position)
	assert.Equal(t, 2, *e.SelectionStart)
	assert.Equal(t, later, e.LastSeen, "expected cursor update to refresh lastSeen")

	_, ok = r.UpdateCursor("missing", types.Cursor{}, later)
	assert.False(t, ok)

	latest := later.Add(time.Second)
	assert.True(t, r.Touch("a", latest))
	got, _ := r.Get("a")
	assert.Equal(t, latest, got.LastSeen)
	assert.False(t, r.Touch("missing", latest))
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	r.Add("a", "alice", time.Now())
	r.Add("b", "bob", time.Now())
	r.UpdateCursor("b", types.Cursor{Position: intPtr(7)}, time.Now())

	snap := r.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].UserId, "expected join order")
	assert.Equal(t, Colors[0], snap[0].Color)
	assert.Equal(t, Icons[1], snap[1].Icon)
	assert.Nil(t, snap[0].CursorPosition)
	assert.Equal(t, 7, *snap[1].CursorPosition)

	keys := r.Keys()
	keys[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, r.Keys(), "expected Keys to return a copy")
}
