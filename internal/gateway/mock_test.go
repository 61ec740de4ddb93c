package gateway

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/mock"
)

type mockJetStream struct {
	mock.Mock
}

func (m *mockJetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.Stream), args.Error(1)
}

func (m *mockJetStream) CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	args := m.Called(ctx, stream, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.Consumer), args.Error(1)
}

// mockConsumer captures the handler and error callback passed to Consume.
type mockConsumer struct {
	mock.Mock
	jetstream.Consumer
	handlers chan jetstream.MessageHandler
}

func newMockConsumer() *mockConsumer {
	return &mockConsumer{handlers: make(chan jetstream.MessageHandler, 4)}
}

func (m *mockConsumer) Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error) {
	args := m.Called(handler)
	m.handlers <- handler
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.ConsumeContext), args.Error(1)
}

type mockConsumeContext struct {
	mock.Mock
	jetstream.ConsumeContext
}

func (m *mockConsumeContext) Stop() {
	m.Called()
}

type mockMsg struct {
	mock.Mock
	jetstream.Msg
	subject string
	data    []byte
}

func newMockMsg(subject string, data []byte) *mockMsg {
	return &mockMsg{subject: subject, data: data}
}

func (m *mockMsg) Data() []byte         { return m.data }
func (m *mockMsg) Subject() string      { return m.subject }
func (m *mockMsg) Headers() nats.Header { return nil }

func (m *mockMsg) Ack() error {
	return m.Called().Error(0)
}

func (m *mockMsg) Nak() error {
	return m.Called().Error(0)
}

func (m *mockMsg) Term() error {
	return m.Called().Error(0)
}

// setJetStreamConnect swaps the connect hook and returns a restore func.
func setJetStreamConnect(js JetStream, err error) func() {
	original := JetStreamConnect
	JetStreamConnect = func(string) (*nats.Conn, JetStream, error) {
		if err != nil {
			return nil, nil, err
		}
		return nil, js, nil
	}
	return func() { JetStreamConnect = original }
}

func waitHandler(ch <-chan jetstream.MessageHandler) jetstream.MessageHandler {
	select {
	case h := <-ch:
		return h
	case <-time.After(2 * time.Second):
		return nil
	}
}
