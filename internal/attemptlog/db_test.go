package attemptlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attempts.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_RunsMigrations(t *testing.T) {
	db := openTestDB(t)

	version, err := db.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	require.NoError(t, db.Health())
}

func TestRecord_BumpsVersion(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Record(Event{
		ManagerKey: "example.com:443",
		AttemptID:  1,
		EventType:  EventAttemptStarted,
		Family:     "ipv4",
		Endpoint:   "93.184.216.34:443",
	}))

	version, err := db.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestEventsForManager_OrderedNewestFirst(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Record(Event{ManagerKey: "a.example:443", EventType: EventAttemptStarted}))
	require.NoError(t, db.Record(Event{ManagerKey: "a.example:443", EventType: EventAttemptFinished, Outcome: "success"}))
	require.NoError(t, db.Record(Event{ManagerKey: "b.example:443", EventType: EventAttemptStarted}))

	events, err := db.EventsForManager("a.example:443", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAttemptFinished, events[0].EventType)
	assert.Equal(t, EventAttemptStarted, events[1].EventType)
}

func TestRecentEvents_LimitsAcrossManagers(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Record(Event{ManagerKey: "a.example:443", EventType: EventAttemptStarted}))
	}

	events, err := db.RecentEvents(3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestPruneOlderThan(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Record(Event{ManagerKey: "a.example:443", EventType: EventAttemptStarted}))

	n, err := db.PruneOlderThan(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := db.RecentEvents(10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
