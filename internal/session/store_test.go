package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtitan/flowtitan/internal/events"
)

func newTestStore(t *testing.T, ttl time.Duration, sliding bool) *Store {
	t.Helper()
	adapter := NewSQLiteAdapter(":memory:")
	s, err := New(adapter, ttl, sliding, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestCreateThenGetRoundTripsMetadataAndContext(t *testing.T) {
	s := newTestStore(t, 0, false)
	rec := s.Create("sess-1", map[string]interface{}{"user": "ada"}, map[string]interface{}{"turn": 1})
	assert.Equal(t, 1, rec.Version)

	got, ok := s.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "ada", got.Metadata["user"])
	assert.Equal(t, 1, got.Context["turn"])
}

func TestUpdateBumpsVersionMonotonically(t *testing.T) {
	s := newTestStore(t, 0, false)
	s.Create("sess-1", nil, nil)

	rec, err := s.Update("sess-1", func(r *Record) { r.Context["turn"] = 2 })
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version)

	rec, err = s.Update("sess-1", func(r *Record) { r.Context["turn"] = 3 })
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Version)
}

func TestUpdateUnknownSessionReturnsError(t *testing.T) {
	s := newTestStore(t, 0, false)
	_, err := s.Update("missing", func(r *Record) {})
	assert.Error(t, err)
}

func TestDeleteRemovesSessionFromMemory(t *testing.T) {
	s := newTestStore(t, 0, false)
	s.Create("sess-1", nil, nil)
	require.NoError(t, s.Delete("sess-1"))

	_, ok := s.Get("sess-1")
	assert.False(t, ok)
}

func TestAppendProvenanceStampsIDAndTimestampWhenAbsent(t *testing.T) {
	s := newTestStore(t, 0, false)
	s.Create("sess-1", nil, nil)

	entry, _ := events.New(events.TaskStarted, "sess-1", "plan-1", "n1", nil).ToProvenanceEntry("")
	entry.Event.ID = ""
	entry.Event.Timestamp = ""

	rec, err := s.AppendProvenance("sess-1", entry)
	require.NoError(t, err)
	require.Len(t, rec.Provenance, 1)
	assert.NotEmpty(t, rec.Provenance[0].Event.ID)
	assert.NotEmpty(t, rec.Provenance[0].Event.Timestamp)
}

func TestSweeperEvictsExpiredSessionsUnderSlidingTTL(t *testing.T) {
	s := newTestStore(t, 20*time.Millisecond, true)
	s.Create("sess-1", nil, nil)
	s.StartSweeper(5 * time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	_, ok := s.Get("sess-1")
	assert.False(t, ok, "sweeper should have evicted the session past its TTL")
}

func TestGetTouchesLastTouchUnderSlidingTTL(t *testing.T) {
	s := newTestStore(t, 30*time.Millisecond, true)
	s.Create("sess-1", nil, nil)
	s.StartSweeper(5 * time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	_, ok := s.Get("sess-1") // touches last_touch, pushing the deadline out
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = s.Get("sess-1")
	assert.True(t, ok, "a recent touch should have kept the session alive")
}

func TestReloadFromAdapterRestoresSessionsAcrossRestart(t *testing.T) {
	adapter := NewSQLiteAdapter(t.TempDir() + "/sessions.db")
	s1, err := New(adapter, 0, false, 16)
	require.NoError(t, err)
	s1.Create("sess-1", map[string]interface{}{"k": "v"}, nil)
	require.NoError(t, s1.Stop())

	adapter2 := NewSQLiteAdapter(adapter.path)
	s2, err := New(adapter2, 0, false, 16)
	require.NoError(t, err)
	defer s2.Stop()

	rec, ok := s2.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "v", rec.Metadata["k"])
}
