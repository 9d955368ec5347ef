package changefeed_test

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/changefeed"
)

var quiet = log.New(io.Discard, "", 0)

type recorder struct {
	mu      sync.Mutex
	changes []changefeed.Change
}

func (r *recorder) add(c changefeed.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) snapshot() []changefeed.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]changefeed.Change(nil), r.changes...)
}

func TestTopicMatch(t *testing.T) {
	c := changefeed.NewChange(changefeed.TableVotes, changefeed.Insert, nil, map[string]string{"group_id": "g1"})

	assert.True(t, changefeed.Topic{Table: changefeed.TableVotes}.Match(c))
	assert.True(t, changefeed.Topic{Table: changefeed.TableVotes, Filter: changefeed.Filter{Column: "group_id", Value: "g1"}}.Match(c))
	assert.False(t, changefeed.Topic{Table: changefeed.TableVotes, Filter: changefeed.Filter{Column: "group_id", Value: "g2"}}.Match(c))
	assert.False(t, changefeed.Topic{Table: changefeed.TableProposals}.Match(c))

	resync := changefeed.Change{Table: changefeed.TableVotes, Op: changefeed.Resync}
	assert.True(t, changefeed.Topic{Table: changefeed.TableVotes, Filter: changefeed.Filter{Column: "group_id", Value: "g2"}}.Match(resync))
}

func TestBroker(t *testing.T) {
	t.Run("DeliversMatching", func(t *testing.T) {
		b := changefeed.NewBroker(8, quiet)
		defer b.Close()

		var rec recorder
		cancel := b.Subscribe(changefeed.Topic{Table: "messages", Filter: changefeed.Filter{Column: "chat_id", Value: "c1"}}, rec.add)
		defer cancel()

		b.Publish(changefeed.NewChange("messages", changefeed.Insert, map[string]string{"id": "m1"}, map[string]string{"chat_id": "c1"}))
		b.Publish(changefeed.NewChange("messages", changefeed.Insert, map[string]string{"id": "m2"}, map[string]string{"chat_id": "c2"}))
		b.Publish(changefeed.NewChange("chats", changefeed.Update, nil, map[string]string{"chat_id": "c1"}))

		assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
		var row map[string]string
		require.NoError(t, rec.snapshot()[0].Decode(&row))
		assert.Equal(t, "m1", row["id"])
	})

	t.Run("CancelStopsDelivery", func(t *testing.T) {
		b := changefeed.NewBroker(8, quiet)
		defer b.Close()

		var rec recorder
		cancel := b.Subscribe(changefeed.Topic{Table: "votes"}, rec.add)
		assert.Equal(t, 1, b.Subscribers())
		cancel()
		cancel()
		assert.Equal(t, 0, b.Subscribers())

		b.Publish(changefeed.NewChange("votes", changefeed.Insert, nil, nil))
		time.Sleep(20 * time.Millisecond)
		assert.Empty(t, rec.snapshot())
	})

	t.Run("LaggingSubscriberGetsResync", func(t *testing.T) {
		b := changefeed.NewBroker(1, quiet)
		defer b.Close()

		release := make(chan struct{})
		var rec recorder
		cancel := b.Subscribe(changefeed.Topic{Table: "votes"}, func(c changefeed.Change) {
			<-release
			rec.add(c)
		})
		defer cancel()

		for i := 0; i < 5; i++ {
			b.Publish(changefeed.NewChange("votes", changefeed.Insert, nil, nil))
		}
		close(release)

		assert.Eventually(t, func() bool {
			got := rec.snapshot()
			return len(got) > 0 && got[len(got)-1].Op == changefeed.Resync
		}, time.Second, 5*time.Millisecond)
		assert.Less(t, len(rec.snapshot()), 6)
	})

	t.Run("SubscribeAfterClose", func(t *testing.T) {
		b := changefeed.NewBroker(1, quiet)
		b.Close()
		cancel := b.Subscribe(changefeed.Topic{Table: "votes"}, func(changefeed.Change) {})
		cancel()
		assert.Equal(t, 0, b.Subscribers())
	})
}

func TestRedisRelay(t *testing.T) {
	addr := os.Getenv("HUDDLE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HUDDLE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	localA, localB := changefeed.NewBroker(8, quiet), changefeed.NewBroker(8, quiet)
	relayA := changefeed.NewRedisRelay(client, "huddle:test", localA, quiet)
	relayB := changefeed.NewRedisRelay(client, "huddle:test", localB, quiet)
	go relayA.Run(ctx)
	go relayB.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	var onA, onB recorder
	defer localA.Subscribe(changefeed.Topic{Table: "votes"}, onA.add)()
	defer localB.Subscribe(changefeed.Topic{Table: "votes"}, onB.add)()

	relayA.Publish(changefeed.NewChange("votes", changefeed.Insert, nil, nil))

	assert.Eventually(t, func() bool { return len(onB.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, onA.snapshot(), 1)
}
