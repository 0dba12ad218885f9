package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSub struct {
	recvErr error
	ch      chan *redis.Message
	closed  atomic.Bool
}

func (f *fakeSub) Receive(context.Context) (interface{}, error) { return nil, f.recvErr }

func (f *fakeSub) Channel(...redis.ChannelOption) <-chan *redis.Message { return f.ch }

func (f *fakeSub) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeSubscriber struct {
	mu    sync.Mutex
	subs  []*fakeSub
	calls int
}

func (f *fakeSubscriber) Subscribe(context.Context, string) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.subs) == 0 {
		return &fakeSub{ch: make(chan *redis.Message)}
	}
	sub := f.subs[0]
	f.subs = f.subs[1:]
	return sub
}

func (f *fakeSubscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func shortDelays(t *testing.T) {
	retry, resub := subscribeRetryDelay, resubscribeDelay
	subscribeRetryDelay, resubscribeDelay = 10*time.Millisecond, 10*time.Millisecond
	t.Cleanup(func() { subscribeRetryDelay, resubscribeDelay = retry, resub })
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListen_ResetsOnSubscribeAndEvictsOnMessage(t *testing.T) {
	c := newFakeClient()
	s := NewStore(c, Options{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, sample("a")))
	require.NoError(t, s.Put(ctx, sample("b")))
	require.Equal(t, 2, s.Cached())

	sub := &fakeSub{ch: make(chan *redis.Message)}
	fs := &fakeSubscriber{subs: []*fakeSub{sub}}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Listen(ctx, fs)
	}()

	// Канал небуферизованный: отправка проходит только после сброса L1
	sub.ch <- &redis.Message{Payload: "unknown"}
	assert.Zero(t, s.Cached())

	require.NoError(t, s.Put(ctx, sample("a")))
	require.NoError(t, s.Put(ctx, sample("b")))

	sub.ch <- &redis.Message{Payload: "a"}
	sub.ch <- &redis.Message{Payload: ""} // пропускается; дожидаемся обработки "a"
	assert.Equal(t, 1, s.Cached())

	gets := c.gets
	_, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, gets, c.gets)

	cancel()
	waitDone(t, done)
	assert.True(t, sub.closed.Load())
}

func TestListenResilient_RetriesAndResubscribes(t *testing.T) {
	shortDelays(t)

	failed := &fakeSub{recvErr: errors.New("connection refused")}
	first := &fakeSub{ch: make(chan *redis.Message)}
	second := &fakeSub{ch: make(chan *redis.Message)}
	fs := &fakeSubscriber{subs: []*fakeSub{failed, first, second}}

	var reconnects atomic.Int32
	got := make(chan string, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ListenResilient(ctx, fs, zap.NewNop(), "chan",
			func() error {
				reconnects.Add(1)
				return errors.New("sync failed")
			},
			func(p string) { got <- p },
		)
	}()

	first.ch <- &redis.Message{Payload: "one"}
	assert.Equal(t, "one", <-got)
	assert.True(t, failed.closed.Load())

	// Redis закрыл канал: слушатель должен переподписаться
	close(first.ch)
	second.ch <- &redis.Message{Payload: "two"}
	assert.Equal(t, "two", <-got)

	assert.Equal(t, 3, fs.Calls())
	assert.Equal(t, int32(2), reconnects.Load())
	assert.True(t, first.closed.Load())

	cancel()
	waitDone(t, done)
}

func TestListenResilient_StopsWhileSubscribeFails(t *testing.T) {
	fs := &fakeSubscriber{subs: []*fakeSub{{recvErr: errors.New("connection refused")}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ListenResilient(ctx, fs, zap.NewNop(), "chan",
			func() error { return nil },
			func(string) {},
		)
	}()

	require.Eventually(t, func() bool { return fs.Calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	waitDone(t, done)
	assert.Equal(t, 1, fs.Calls())
}
