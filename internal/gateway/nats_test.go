package gateway

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/warden/internal/events"
)

func newTestNATSSource(t *testing.T) (*NATSSource, *mockJetStream, *mockConsumer, *mockConsumeContext) {
	t.Helper()

	js := &mockJetStream{}
	cons := newMockConsumer()
	cc := &mockConsumeContext{}

	js.On("CreateOrUpdateStream", mock.Anything, mock.MatchedBy(func(cfg jetstream.StreamConfig) bool {
		return cfg.Name == "GATEWAY" && len(cfg.Subjects) == 1 && cfg.Subjects[0] == "GATEWAY.>"
	})).Return(nil, nil)
	js.On("CreateOrUpdateConsumer", mock.Anything, "GATEWAY", mock.MatchedBy(func(cfg jetstream.ConsumerConfig) bool {
		return cfg.Durable == "warden" && cfg.AckPolicy == jetstream.AckExplicitPolicy
	})).Return(cons, nil)
	cons.On("Consume", mock.Anything).Return(cc, nil)
	cc.On("Stop").Return()

	t.Cleanup(setJetStreamConnect(js, nil))

	src, err := NewNATSSource(NATSOptions{URL: "nats://localhost:4222"})
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src, js, cons, cc
}

func TestNewNATSSource_RequiresURL(t *testing.T) {
	_, err := NewNATSSource(NATSOptions{})
	assert.Error(t, err)
}

func TestNewNATSSource_Defaults(t *testing.T) {
	src, err := NewNATSSource(NATSOptions{URL: "nats://x"})
	require.NoError(t, err)
	assert.Equal(t, "GATEWAY", src.opts.Stream)
	assert.Equal(t, "warden", src.opts.Consumer)
	assert.Equal(t, 64, src.opts.Buffer)
}

func TestNATSSource_NextDecodesAndAcks(t *testing.T) {
	src, _, cons, _ := newTestNATSSource(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg := newMockMsg("GATEWAY.MESSAGE_CREATE", []byte(`{"t":"MESSAGE_CREATE","id":"m1","guild_id":"g1","d":{"content":"hi"}}`))
	msg.On("Ack").Return(nil)

	go func() {
		if h := waitHandler(cons.handlers); h != nil {
			h(msg)
		}
	}()

	evt, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.KindMessageCreate, evt.Kind)
	assert.Equal(t, "m1", evt.ID)
	assert.Equal(t, "g1", evt.GuildID)
	msg.AssertCalled(t, "Ack")
}

func TestNATSSource_KindFromSubject(t *testing.T) {
	src, _, cons, _ := newTestNATSSource(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg := newMockMsg("GATEWAY.INTERACTION_CREATE", []byte(`{"id":"i1"}`))
	msg.On("Ack").Return(nil)

	go func() {
		if h := waitHandler(cons.handlers); h != nil {
			h(msg)
		}
	}()

	evt, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.KindInteractionCreate, evt.Kind)
}

func TestNATSSource_TermsUndecodable(t *testing.T) {
	src, _, cons, _ := newTestNATSSource(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bad := newMockMsg("GATEWAY.X", []byte(`not json`))
	bad.On("Term").Return(nil)
	good := newMockMsg("GATEWAY.READY", []byte(`{"t":"READY"}`))
	good.On("Ack").Return(nil)

	go func() {
		if h := waitHandler(cons.handlers); h != nil {
			h(bad)
			h(good)
		}
	}()

	evt, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.KindReady, evt.Kind)
	bad.AssertCalled(t, "Term")
	bad.AssertNotCalled(t, "Ack")
}

func TestNATSSource_ConsumeErrorResubscribes(t *testing.T) {
	src, _, cons, cc := newTestNATSSource(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := src.subscription(ctx)
	require.NoError(t, err)
	<-cons.handlers

	src.mu.Lock()
	src.errs <- errors.New("heartbeat missed")
	src.mu.Unlock()

	_, err = src.Next(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat missed")
	cc.AssertCalled(t, "Stop")

	src.mu.Lock()
	assert.Nil(t, src.msgs)
	src.mu.Unlock()

	// The next subscription call consumes again.
	_, _, err = src.subscription(ctx)
	require.NoError(t, err)
	cons.AssertNumberOfCalls(t, "Consume", 2)
}

func TestNATSSource_ConnectError(t *testing.T) {
	defer setJetStreamConnect(nil, errors.New("no servers"))()

	src, err := NewNATSSource(NATSOptions{URL: "nats://localhost:1"})
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no servers")
}

func TestNATSSource_StreamError(t *testing.T) {
	js := &mockJetStream{}
	js.On("CreateOrUpdateStream", mock.Anything, mock.Anything).Return(nil, errors.New("denied"))
	defer setJetStreamConnect(js, nil)()

	src, err := NewNATSSource(NATSOptions{URL: "nats://x"})
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ensure stream")
}

func TestNATSSource_ContextCancel(t *testing.T) {
	src, _, _, _ := newTestNATSSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNATSSource_CloseReturnsEOF(t *testing.T) {
	src, _, _, _ := newTestNATSSource(t)
	require.NoError(t, src.Close())

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
