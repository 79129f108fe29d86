package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"authbot/internal/address"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = address.New("teams", "conv-1", "user-1")

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"address":{"transportId":"teams","conversationId":"conv-1","userId":"user-1"},"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, testAddr, env.Address)
	assert.Equal(t, "hi", env.Text)

	_, err = DecodeEnvelope([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = DecodeEnvelope([]byte(`{"address":{"transportId":"teams"},"text":"hi"}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestWebhookMessenger_Deliver(t *testing.T) {
	var got Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewWebhookMessenger(srv.URL, "secret", 0, 5*time.Second)
	require.NoError(t, m.Deliver(context.Background(), testAddr, "hello"))
	assert.Equal(t, Envelope{Address: testAddr, Text: "hello"}, got)
}

func TestWebhookMessenger_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewWebhookMessenger(srv.URL, "", 2, 5*time.Second)
	require.NoError(t, m.Deliver(context.Background(), testAddr, "hello"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookMessenger_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewWebhookMessenger(srv.URL, "", 3, 5*time.Second)
	err := m.Deliver(context.Background(), testAddr, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConsoleMessenger(t *testing.T) {
	var buf bytes.Buffer
	m := NewConsoleMessenger(&buf, testAddr)

	require.NoError(t, m.Deliver(context.Background(), testAddr, "hello"))
	require.NoError(t, m.Deliver(context.Background(), address.New("teams", "conv-2", "user-2"), "other"))

	assert.Equal(t, "bot> hello\nbot [teams/conv-2/user-2]> other\n", buf.String())
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaMessenger_Deliver(t *testing.T) {
	w := &fakeWriter{}
	m := &KafkaMessenger{writer: w, topic: "replies"}

	require.NoError(t, m.Deliver(context.Background(), testAddr, "hello"))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, testAddr.Key(), string(w.msgs[0].Key))

	env, err := DecodeEnvelope(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "hello", env.Text)

	require.NoError(t, m.Close())
	assert.True(t, w.closed)
}

func TestKafkaMessenger_DeliverError(t *testing.T) {
	w := &fakeWriter{err: context.DeadlineExceeded}
	m := &KafkaMessenger{writer: w, topic: "replies"}

	err := m.Deliver(context.Background(), testAddr, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "(timeout)")
}

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m, ok := <-f.msgs:
		if !ok {
			return kafka.Message{}, io.EOF
		}
		return m, nil
	}
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestKafkaConsumer_Run(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 3)}
	valid, _ := json.Marshal(Envelope{Address: testAddr, Text: "email"})
	reader.msgs <- kafka.Message{Offset: 1, Value: valid}
	reader.msgs <- kafka.Message{Offset: 2, Value: []byte("garbage")}
	reader.msgs <- kafka.Message{Offset: 3, Value: valid}
	close(reader.msgs)

	var mu sync.Mutex
	var turns []string
	handler := TurnHandlerFunc(func(_ context.Context, addr address.Address, text string) error {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, testAddr, addr)
		turns = append(turns, text)
		if len(turns) == 2 {
			return errors.New("dialog failed")
		}
		return nil
	})

	c := &KafkaConsumer{reader: reader, handler: handler, topic: "turns"}
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []string{"email", "email"}, turns)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed, "every message is committed, including failures")
	assert.True(t, reader.closed)
}

func TestKafkaConsumer_StopsOnCancel(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message)}
	c := &KafkaConsumer{reader: reader, handler: TurnHandlerFunc(func(context.Context, address.Address, string) error { return nil }), topic: "turns"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestClassifyKafkaError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"cancelled", context.Canceled, "cancelled"},
		{"refused", errors.New("dial tcp: connection refused"), "network"},
		{"sasl", errors.New("SASL handshake failed"), "auth"},
		{"leader", errors.New("not leader for partition"), "broker"},
		{"topic", errors.New("unknown topic or partition"), "topic"},
		{"other", errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyKafkaError(tt.err))
		})
	}
}
