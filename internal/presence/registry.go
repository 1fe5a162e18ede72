package presence

import (
	"errors"
	"slices"
	"time"

	"github.com/npezzotti/go-docsync/internal/types"
)

var (
	Colors = []string{
		"#4285f4", // blue
		"#ea4335", // red
		"#fbbc04", // yellow
		"#34a853", // green
		"#9334e6", // purple
		"#ff6d01", // orange
		"#46bdc6", // cyan
		"#e91e63", // pink
	}
	Icons = []string{"🐕", "🐈", "🐇", "🦊", "🐻", "🐼", "🦁", "🐯"}
)

var ErrDuplicateUser = errors.New("user already present")

type Entry struct {
	UserId   string
	Username string
	types.Cursor
	LastSeen time.Time
}

// Registry tracks the participants of one room in join order. Like
// document.Store it is owned by a single room goroutine.
type Registry struct {
	order   []string
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Color returns the palette color for userId given an ordered participant
// list, or "" if userId is not in the list.
func Color(order []string, userId string) string {
	i := slices.Index(order, userId)
	if i < 0 {
		return ""
	}
	return Colors[i%len(Colors)]
}

// Icon is the icon counterpart of Color.
func Icon(order []string, userId string) string {
	i := slices.Index(order, userId)
	if i < 0 {
		return ""
	}
	return Icons[i%len(Icons)]
}

func (r *Registry) Add(userId, username string, now time.Time) (*Entry, error) {
	if _, ok := r.entries[userId]; ok {
		return nil, ErrDuplicateUser
	}

	e := &Entry{
		UserId:   userId,
		Username: username,
		LastSeen: now,
	}
	r.entries[userId] = e
	r.order = append(r.order, userId)
	return e, nil
}

func (r *Registry) Remove(userId string) (*Entry, bool) {
	e, ok := r.entries[userId]
	if !ok {
		return nil, false
	}

	delete(r.entries, userId)
	if i := slices.Index(r.order, userId); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return e, true
}

func (r *Registry) Get(userId string) (*Entry, bool) {
	e, ok := r.entries[userId]
	return e, ok
}

func (r *Registry) Has(userId string) bool {
	_, ok := r.entries[userId]
	return ok
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Keys returns a copy of the participant ids in join order.
func (r *Registry) Keys() []string {
	return slices.Clone(r.order)
}

func (r *Registry) Touch(userId string, now time.Time) bool {
	e, ok := r.entries[userId]
	if !ok {
		return false
	}
	e.LastSeen = now
	return true
}

func (r *Registry) UpdateCursor(userId string, c types.Cursor, now time.Time) (*Entry, bool) {
	e, ok := r.entries[userId]
	if !ok {
		return nil, false
	}
	e.Cursor = c
	e.LastSeen = now
	return e, true
}

func (r *Registry) Color(userId string) string {
	return Color(r.order, userId)
}

func (r *Registry) Icon(userId string) string {
	return Icon(r.order, userId)
}

// Snapshot returns the full roster in join order with colors and icons
// computed against the current ordering.
func (r *Registry) Snapshot() []types.UserInfo {
	users := make([]types.UserInfo, 0, len(r.order))
	for i, id := range r.order {
		e := r.entries[id]
		users = append(users, types.UserInfo{
			UserId:         e.UserId,
			Username:       e.Username,
			Color:          Colors[i%len(Colors)],
			Icon:           Icons[i%len(Icons)],
			CursorPosition: e.Position,
			SelectionStart: e.SelectionStart,
			SelectionEnd:   e.SelectionEnd,
			LastSeen:       e.LastSeen,
		})
	}
	return users
}
