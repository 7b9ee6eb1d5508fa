package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLogCapTrimsOldest(t *testing.T) {
	log := NewActivityLog(3, nil)

	for i := 1; i <= 5; i++ {
		log.Append("govapi", LogInfo, fmt.Sprintf("entry %d", i))
		time.Sleep(time.Millisecond)
	}

	entries := log.Query("govapi", 0)
	require.Len(t, entries, 3)
	assert.Equal(t, "entry 5", entries[0].Message)
	assert.Equal(t, "entry 4", entries[1].Message)
	assert.Equal(t, "entry 3", entries[2].Message)
}

func TestActivityLogQueryMergesNewestFirst(t *testing.T) {
	log := NewActivityLog(10, nil)

	log.Append("govapi", LogInfo, "first")
	time.Sleep(time.Millisecond)
	log.Append("library", LogWarn, "second")
	time.Sleep(time.Millisecond)
	log.Append("govapi", LogError, "third")

	merged := log.Query("", 0)
	require.Len(t, merged, 3)
	assert.Equal(t, "third", merged[0].Message)
	assert.Equal(t, "second", merged[1].Message)
	assert.Equal(t, "first", merged[2].Message)

	scoped := log.Query("library", 0)
	require.Len(t, scoped, 1)
	assert.Equal(t, LogWarn, scoped[0].Level)

	limited := log.Query("", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "third", limited[0].Message)
}

func TestActivityLogClear(t *testing.T) {
	log := NewActivityLog(10, nil)
	log.Append("govapi", LogInfo, "a")
	log.Append("library", LogInfo, "b")

	log.Clear("govapi")
	assert.Empty(t, log.Query("govapi", 0))
	assert.Len(t, log.Query("", 0), 1)

	log.Clear("")
	assert.Empty(t, log.Query("", 0))
}

func TestActivityLogSubscribe(t *testing.T) {
	log := NewActivityLog(10, nil)

	ch, cancel := log.Subscribe()
	defer cancel()

	log.Append("govapi", LogInfo, "hello")

	select {
	case entry := <-ch:
		assert.Equal(t, "govapi", entry.Collector)
		assert.Equal(t, "hello", entry.Message)
	case <-time.After(time.Second):
		t.Fatal("no entry delivered to subscriber")
	}
}

func TestActivityLogAppendNeverBlocksOnSlowSubscriber(t *testing.T) {
	log := NewActivityLog(200, nil)

	// Subscriber that never reads; its channel fills up and overflowing
	// entries are dropped rather than stalling Append.
	_, cancel := log.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 150; i++ {
			log.Append("govapi", LogInfo, "burst")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked on a slow subscriber")
	}

	assert.Len(t, log.Query("govapi", 0), 150)
}
