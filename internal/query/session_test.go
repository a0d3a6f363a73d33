package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Recent(t *testing.T) {
	s := NewSession()
	assert.Empty(t, s.Recent(5))

	for i := 0; i < 7; i++ {
		s.Append(ChatMessage{Role: RoleUser, Content: string(rune('a' + i))})
	}

	recent := s.Recent(5)
	require.Len(t, recent, 5)
	assert.Equal(t, "c", recent[0].Content)
	assert.Equal(t, "g", recent[4].Content)

	assert.Len(t, s.Recent(100), 7)
	assert.Empty(t, s.Recent(0))
}

func TestSession_MessagesIsACopy(t *testing.T) {
	s := NewSession()
	s.Append(ChatMessage{Role: RoleUser, Content: "hello"})

	msgs := s.Messages()
	msgs[0].Content = "changed"

	assert.Equal(t, "hello", s.Messages()[0].Content)
}

func TestSessionStore_GetOrCreate(t *testing.T) {
	st := NewSessionStore(time.Minute)

	s1 := st.GetOrCreate("")
	require.NotEmpty(t, s1.ID)
	assert.Same(t, s1, st.GetOrCreate(s1.ID))

	s2 := st.GetOrCreate("unknown-id")
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 2, st.Len())

	got, ok := st.Get(s2.ID)
	assert.True(t, ok)
	assert.Same(t, s2, got)

	st.Delete(s2.ID)
	_, ok = st.Get(s2.ID)
	assert.False(t, ok)
}

func TestSessionStore_Evict(t *testing.T) {
	st := NewSessionStore(time.Minute)
	idle := st.GetOrCreate("")
	active := st.GetOrCreate("")

	removed := st.Evict(time.Now().Add(30 * time.Second))
	assert.Zero(t, removed)

	active.Append(ChatMessage{Role: RoleUser, Content: "still here"})
	idle.mu.Lock()
	idle.lastUsed = time.Now().Add(-2 * time.Minute)
	idle.mu.Unlock()

	removed = st.Evict(time.Now())
	assert.Equal(t, 1, removed)

	_, ok := st.Get(idle.ID)
	assert.False(t, ok)
	_, ok = st.Get(active.ID)
	assert.True(t, ok)
}
