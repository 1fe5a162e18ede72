package document

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStore(t *testing.T) {
	s := NewStore("", 0)
	state := s.State()
	assert.Equal(t, "", state.Content, "expected empty content")
	assert.Equal(t, int64(0), state.Version, "expected version to start at 0")
	assert.Equal(t, Digest(""), state.Hash, "expected hash of empty content")

	s = NewStore("loaded", 12)
	assert.Equal(t, int64(12), s.Version(), "expected version to continue from snapshot")
	assert.Equal(t, Digest("loaded"), s.State().Hash)
}

func TestDigest(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Digest(""), "expected md5 of empty string")
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", Digest("hello"), "expected md5 of hello")
}

func TestSubmit(t *testing.T) {
	t.Run("matching base is accepted without conflict", func(t *testing.T) {
		s := NewStore("", 0)
		h0 := s.State().Hash

		res := s.Submit(Submission{Content: "v2", Version: 0, Hash: h0})
		assert.True(t, res.Accepted)
		assert.False(t, res.Conflict, "expected no conflict for current base")
		assert.Equal(t, int64(1), res.Version)
		assert.Equal(t, "v2", res.Content)
		assert.Equal(t, Digest("v2"), res.Hash)
		assert.Equal(t, res.DocumentState, s.State(), "expected result to match stored state")
	})

	t.Run("stale version is accepted and flagged", func(t *testing.T) {
		s := NewStore("base", 5)
		h5 := s.State().Hash

		first := s.Submit(Submission{Content: "from a", Version: 5, Hash: h5})
		second := s.Submit(Submission{Content: "from b", Version: 5, Hash: h5})

		assert.False(t, first.Conflict)
		assert.Equal(t, int64(6), first.Version)

		assert.True(t, second.Accepted, "expected stale submission to still be accepted")
		assert.True(t, second.Conflict, "expected stale submission to be flagged")
		assert.Equal(t, int64(7), second.Version)
		assert.Equal(t, "from b", second.Content, "expected last writer to win")
		assert.Equal(t, "from b", s.State().Content)
	})

	t.Run("hash mismatch at same version is a conflict", func(t *testing.T) {
		s := NewStore("base", 3)
		res := s.Submit(Submission{Content: "x", Version: 3, Hash: "not-the-hash"})
		assert.True(t, res.Conflict)
		assert.Equal(t, int64(4), res.Version)
	})

	t.Run("identical submissions are not deduplicated", func(t *testing.T) {
		s := NewStore("", 0)
		st := s.State()
		first := s.Submit(Submission{Content: "same", Version: st.Version, Hash: st.Hash})
		second := s.Submit(Submission{Content: "same", Version: first.Version, Hash: first.Hash})

		assert.False(t, first.Conflict)
		assert.False(t, second.Conflict)
		assert.Equal(t, int64(1), first.Version)
		assert.Equal(t, int64(2), second.Version)
	})
}

func TestSubmit_VersionAndHashInvariant(t *testing.T) {
	s := NewStore("", 0)
	for i := 0; i < 50; i++ {
		before := s.Version()
		// alternate between current and stale bases
		base := s.State()
		if i%3 == 0 {
			base.Version -= 1
		}

		res := s.Submit(Submission{
			Content: fmt.Sprintf("content %d", i),
			Version: base.Version,
			Hash:    base.Hash,
		})

		assert.Equal(t, before+1, res.Version, "expected version to advance by exactly one")
		assert.Equal(t, Digest(s.State().Content), s.State().Hash, "expected hash to match stored content")
	}
}
