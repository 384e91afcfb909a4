package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/notify"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/store/memory"
)

func note(id string, user points.UserID) points.Notification {
	return points.Notification{
		ID:        id,
		UserID:    user,
		Kind:      points.NotifyPointsAwarded,
		Title:     "Points Awarded",
		Message:   "You received 10 points",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newInbox(t *testing.T, notes ...points.Notification) *notify.Inbox {
	t.Helper()
	log, _ := test.NewNullLogger()
	inbox := notify.NewInbox(memory.New(), log)
	for _, n := range notes {
		require.NoError(t, inbox.Send(context.Background(), n))
	}
	return inbox
}

// =============================================================================
// INBOX
// =============================================================================

func TestInbox_ListNewestFirstPerUser(t *testing.T) {
	inbox := newInbox(t, note("n1", "ann"), note("n2", "bob"), note("n3", "ann"))

	got, err := inbox.List(context.Background(), "ann")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n3", got[0].ID)
	assert.Equal(t, "n1", got[1].ID)
}

func TestInbox_SendRequiresRecipient(t *testing.T) {
	inbox := newInbox(t)

	err := inbox.Send(context.Background(), note("n1", ""))

	assert.ErrorIs(t, err, points.ErrInvalidInput)
}

func TestInbox_MarkReadAndUnreadCount(t *testing.T) {
	ctx := context.Background()
	inbox := newInbox(t, note("n1", "ann"), note("n2", "ann"))

	count, err := inbox.UnreadCount(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, inbox.MarkRead(ctx, "ann", "n1"))
	count, err = inbox.UnreadCount(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Marking twice is harmless
	require.NoError(t, inbox.MarkRead(ctx, "ann", "n1"))
}

func TestInbox_OwnershipIsEnforced(t *testing.T) {
	ctx := context.Background()
	inbox := newInbox(t, note("n1", "ann"), note("n2", "bob"))

	assert.ErrorIs(t, inbox.MarkRead(ctx, "bob", "n1"), points.ErrUnauthorized)
	assert.ErrorIs(t, inbox.Delete(ctx, "bob", "n1"), points.ErrUnauthorized)
	assert.True(t, points.IsNotFound(inbox.MarkRead(ctx, "ann", "missing")))

	got, err := inbox.List(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Read)
}

func TestInbox_DeleteManyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	inbox := newInbox(t, note("n1", "ann"), note("n2", "ann"), note("n3", "bob"))

	err := inbox.DeleteMany(ctx, "ann", []string{"n1", "n3"})
	assert.ErrorIs(t, err, points.ErrUnauthorized)
	got, err := inbox.List(ctx, "ann")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, inbox.DeleteMany(ctx, "ann", []string{"n1", "n2"}))
	got, err = inbox.List(ctx, "ann")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, inbox.DeleteMany(ctx, "ann", nil), points.ErrInvalidInput)
}

// =============================================================================
// SINKS
// =============================================================================

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	var got []string
	ok := points.NotificationSinkFunc(func(_ context.Context, n points.Notification) error {
		got = append(got, n.ID)
		return nil
	})
	broken := points.NotificationSinkFunc(func(context.Context, points.Notification) error {
		return errors.New("broker down")
	})

	err := notify.Multi{broken, nil, ok, notify.Discard}.Send(context.Background(), note("n1", "ann"))

	assert.EqualError(t, err, "broker down")
	assert.Equal(t, []string{"n1"}, got)
}

func TestLogSink(t *testing.T) {
	log, hook := test.NewNullLogger()

	require.NoError(t, notify.NewLogSink(log).Send(context.Background(), note("n1", "ann")))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "Points Awarded", entry.Message)
	assert.Equal(t, points.UserID("ann"), entry.Data["user_id"])
	assert.Equal(t, "notifications", entry.Data["component"])
}

type published struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.msgs = append(p.msgs, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func TestRedisSink_PublishesToBroadcastAndUserChannels(t *testing.T) {
	pub := &fakePublisher{}

	require.NoError(t, notify.NewRedisSink(pub, "recognition:notifications").Send(context.Background(), note("n1", "ann")))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "recognition:notifications", pub.msgs[0].channel)
	assert.Equal(t, "recognition:notifications:ann", pub.msgs[1].channel)
	var decoded points.Notification
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &decoded))
	assert.Equal(t, "n1", decoded.ID)
	assert.Equal(t, points.NotifyPointsAwarded, decoded.Kind)
}

func TestRedisSink_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}

	err := notify.NewRedisSink(pub, "events").Send(context.Background(), note("n1", "ann"))

	assert.ErrorContains(t, err, "publish events")
}

func TestRedisSink_LiveServer(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	sub := client.Subscribe(ctx, "test-notifications:ann")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, notify.NewRedisSink(client, "test-notifications").Send(ctx, note("n1", "ann")))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var decoded points.Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
	assert.Equal(t, "n1", decoded.ID)
}
