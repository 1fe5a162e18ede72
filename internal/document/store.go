package document

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/npezzotti/go-docsync/internal/types"
)

// Store holds the authoritative content of one room. It is not safe for
// concurrent use; the owning room serializes every call.
type Store struct {
	content   string
	version   int64
	hash      string
	updatedAt time.Time
}

// Submission is a candidate content together with the version and hash the
// client last synced to.
type Submission struct {
	Content string
	Version int64
	Hash    string
}

type Result struct {
	Accepted bool
	Conflict bool
	types.DocumentState
}

func NewStore(content string, version int64) *Store {
	return &Store{
		content:   content,
		version:   version,
		hash:      Digest(content),
		updatedAt: time.Now(),
	}
}

// Digest returns the lowercase hex MD5 of content.
func Digest(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (s *Store) State() types.DocumentState {
	return types.DocumentState{
		Content: s.content,
		Version: s.version,
		Hash:    s.hash,
	}
}

func (s *Store) Version() int64 {
	return s.version
}

func (s *Store) UpdatedAt() time.Time {
	return s.updatedAt
}

// Submit applies a submission last-writer-wins. The candidate always becomes
// the authoritative content and the version always advances by one; a
// submission based on a stale version or hash is flagged as a conflict.
func (s *Store) Submit(sub Submission) Result {
	conflict := sub.Version != s.version || sub.Hash != s.hash

	s.content = sub.Content
	s.version++
	s.hash = Digest(sub.Content)
	s.updatedAt = time.Now()

	return Result{
		Accepted:      true,
		Conflict:      conflict,
		DocumentState: s.State(),
	}
}
