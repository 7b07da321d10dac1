package attemptlog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_RecordsAllEventKinds(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db, nil)

	sink.AttemptStarted("a.example:443", "1.2.3.4:443", "ipv4")
	sink.AttemptFinished("a.example:443", "1.2.3.4:443", nil, 42)
	sink.AttemptFinished("a.example:443", "5.6.7.8:443", errors.New("boom"), 10)
	sink.AttemptRetried("a.example:443", "1.2.3.4:443", "ech")
	sink.AttemptCancelled("a.example:443", "5.6.7.8:443", "spdy_session_created")
	sink.SessionEstablished("a.example:443", "h2", 50*time.Millisecond)
	sink.ManagerClosed("a.example:443", "pool_closed")

	events, err := db.EventsForManager("a.example:443", 10)
	require.NoError(t, err)
	assert.Len(t, events, 7)

	var sawError bool
	for _, ev := range events {
		if ev.EventType == EventAttemptFinished && ev.Outcome == "error" {
			sawError = true
			assert.Equal(t, "boom", ev.ErrorClass)
		}
	}
	assert.True(t, sawError, "expected one finished event with error outcome")
}
