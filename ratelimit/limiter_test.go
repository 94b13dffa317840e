package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/go-redis/redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run delivers one message through handler and returns the failure it was
// answered with.
func run(t *testing.T, handler eventbus.Handler, headers map[string]string) error {
	t.Helper()
	var failure error
	msg := eventbus.NewMessage("data.handle", headers, nil, func(body any, headers map[string]string, err error) {
		failure = err
	})
	handler(context.Background(), msg)
	require.True(t, msg.Replied())
	return failure
}

func okHandler(ctx context.Context, msg *eventbus.Message) {
	msg.Reply(nil)
}

var rejected = eventbus.NewReplyError(eventbus.FailureRecipient, CodeRateLimited, "rate limited: data.handle")

func TestFixWindowLimiter(t *testing.T) {
	now := time.Unix(100, 0)
	l := NewFixWindowLimiter(time.Second, 2)
	l.now = func() time.Time { return now }
	h := l.Interceptor()(okHandler)

	for i := 0; i < 2; i++ {
		err := run(t, h, nil)
		assert.NoError(t, err)
	}
	err := run(t, h, nil)
	assert.Equal(t, rejected, err)

	now = now.Add(time.Second)
	err = run(t, h, nil)
	assert.NoError(t, err)
}

func TestSlideWindowLimiter(t *testing.T) {
	now := time.Unix(100, 0)
	l := NewSlideWindowLimiter(2, time.Second)
	l.now = func() time.Time { return now }
	h := l.Interceptor()(okHandler)

	err := run(t, h, nil)
	assert.NoError(t, err)
	now = now.Add(500 * time.Millisecond)
	err = run(t, h, nil)
	assert.NoError(t, err)
	err = run(t, h, nil)
	assert.Equal(t, rejected, err)

	// the first request left the window
	now = now.Add(500 * time.Millisecond)
	err = run(t, h, nil)
	assert.NoError(t, err)
	err = run(t, h, nil)
	assert.Equal(t, rejected, err)
}

func TestTokenBucketLimiter(t *testing.T) {
	h := NewTokenBucketLimiter(1, time.Hour).Interceptor()(okHandler)
	err := run(t, h, nil)
	assert.NoError(t, err)
	err = run(t, h, nil)
	assert.Equal(t, rejected, err)
}

func TestMarkLimitedRejection(t *testing.T) {
	var flags []bool
	h := NewTokenBucketLimiter(1, time.Hour).OnReject(MarkLimitedRejection).Interceptor()(
		func(ctx context.Context, msg *eventbus.Message) {
			flags = append(flags, Limited(ctx))
			msg.Reply(nil)
		})
	for i := 0; i < 2; i++ {
		err := run(t, h, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []bool{false, true}, flags)
}

func TestActionLimiter(t *testing.T) {
	h := NewActionLimiter("login", NewTokenBucketLimiter(1, time.Hour)).Interceptor()(okHandler)
	login := map[string]string{"action": "login"}
	other := map[string]string{"action": "logout"}

	err := run(t, h, login)
	assert.NoError(t, err)
	err = run(t, h, login)
	assert.Equal(t, rejected, err)
	for i := 0; i < 3; i++ {
		err = run(t, h, other)
		assert.NoError(t, err)
	}
}

type fakeEvaler struct {
	keys []string
	args []interface{}
	val  interface{}
	err  error
}

func (f *fakeEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.keys = keys
	f.args = args
	return redis.NewCmdResult(f.val, f.err)
}

func TestRedisSlideWindowLimiter(t *testing.T) {
	testCases := []struct {
		name    string
		val     interface{}
		err     error
		wantErr error
	}{
		{
			name: "allowed",
			val:  "false",
		},
		{
			name:    "limited",
			val:     "true",
			wantErr: rejected,
		},
		{
			name: "redis down lets the message through",
			err:  errors.New("connection refused"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeEvaler{val: tc.val, err: tc.err}
			h := NewRedisSlideWindowLimiter(client, "data.handle", 10, time.Second).Interceptor()(okHandler)
			err := run(t, h, nil)
			assert.Equal(t, tc.wantErr, err)
			assert.Equal(t, []string{"data.handle"}, client.keys)
			require.Len(t, client.args, 3)
			assert.Equal(t, int64(1000), client.args[0])
			assert.Equal(t, 10, client.args[1])
		})
	}
}
