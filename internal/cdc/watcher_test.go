package cdc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/docsync/internal/domain/changeModel"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeStream replays events; a nil event makes TryNext fail with err.
type fakeStream struct {
	mu     sync.Mutex
	events []*changeModel.ChangeEvent
	err    error
	next   *changeModel.ChangeEvent
	seen   int
	closed bool
}

func (f *fakeStream) TryNext(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return false
	}
	ev := f.events[0]
	f.events = f.events[1:]
	if ev == nil {
		f.err = errors.New("cursor killed")
		return false
	}
	f.err = nil
	f.next = ev
	f.seen++
	return true
}

func (f *fakeStream) Decode(val interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*(val.(*changeModel.ChangeEvent)) = *f.next
	return nil
}

func (f *fakeStream) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeStream) ResumeToken() bson.Raw {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == 0 {
		return nil
	}
	raw, _ := bson.Marshal(bson.D{{Key: "_data", Value: f.seen}})
	return raw
}

func (f *fakeStream) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type watchCall struct {
	collection string
	resumed    bool
}

type fakeSource struct {
	mu      sync.Mutex
	streams map[string][]*fakeStream
	calls   []watchCall
	OnWatch func(collection string) error
}

func (f *fakeSource) Watch(ctx context.Context, collection string, operations []string, resumeAfter bson.Raw) (ChangeStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, watchCall{collection: collection, resumed: resumeAfter != nil})
	if f.OnWatch != nil {
		if err := f.OnWatch(collection); err != nil {
			return nil, err
		}
	}
	queue := f.streams[collection]
	if len(queue) == 0 {
		return &fakeStream{}, nil
	}
	f.streams[collection] = queue[1:]
	return queue[0], nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []changeModel.ChangeMessage
	OnPublish func(msg changeModel.ChangeMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, msg changeModel.ChangeMessage) error {
	if f.OnPublish != nil {
		if err := f.OnPublish(msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) Messages() []changeModel.ChangeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]changeModel.ChangeMessage(nil), f.published...)
}

func insertEvent(id string) *changeModel.ChangeEvent {
	return &changeModel.ChangeEvent{
		OperationType: "insert",
		FullDocument:  map[string]any{"_id": id, "title": "T " + id},
		DocumentKey:   map[string]any{"_id": id},
	}
}

func deleteEvent(id primitive.ObjectID) *changeModel.ChangeEvent {
	return &changeModel.ChangeEvent{OperationType: "delete", DocumentKey: map[string]any{"_id": id}}
}

func runFor(t *testing.T, w *Watcher, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return w.Run(ctx)
}

func TestWatcher_PublishesOneMessagePerEvent(t *testing.T) {
	oid := primitive.NewObjectID()
	politics := &fakeStream{events: []*changeModel.ChangeEvent{insertEvent("a"), insertEvent("b")}}
	tech := &fakeStream{events: []*changeModel.ChangeEvent{deleteEvent(oid), {OperationType: "drop"}}}
	source := &fakeSource{streams: map[string][]*fakeStream{"chinh-tri": {politics}, "cong-nghe": {tech}}}
	pub := &fakePublisher{}

	w := NewWatcher(Config{
		Source:       source,
		Publisher:    pub,
		Collections:  []string{"chinh-tri", "cong-nghe"},
		PollInterval: time.Millisecond,
	})
	if err := runFor(t, w, 100*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 3 {
		t.Fatalf("published %d messages, want 3: %+v", len(msgs), msgs)
	}
	// round robin: one event per stream per sweep
	if msgs[0].DocumentId != "a" || msgs[1].DocumentId != oid.Hex() || msgs[2].DocumentId != "b" {
		t.Errorf("unexpected order: %s, %s, %s", msgs[0].DocumentId, msgs[1].DocumentId, msgs[2].DocumentId)
	}
	if msgs[1].Operation != changeModel.OperationDelete || msgs[1].Collection != "cong-nghe" {
		t.Errorf("delete message = %+v", msgs[1])
	}
	for _, m := range msgs {
		if m.TraceId == "" {
			t.Error("every message needs a trace id")
		}
	}
	if !politics.closed || !tech.closed {
		t.Error("streams must be closed when Run returns")
	}
}

func TestWatcher_PublishFailureIsDropped(t *testing.T) {
	stream := &fakeStream{events: []*changeModel.ChangeEvent{insertEvent("a"), insertEvent("b")}}
	source := &fakeSource{streams: map[string][]*fakeStream{"the-gioi": {stream}}}
	calls := 0
	pub := &fakePublisher{OnPublish: func(msg changeModel.ChangeMessage) error {
		calls++
		if msg.DocumentId == "a" {
			return errors.New("broker unreachable")
		}
		return nil
	}}

	w := NewWatcher(Config{Source: source, Publisher: pub, Collections: []string{"the-gioi"}, PollInterval: time.Millisecond})
	if err := runFor(t, w, 50*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Errorf("publish attempts = %d, want exactly one per event", calls)
	}
	if msgs := pub.Messages(); len(msgs) != 1 || msgs[0].DocumentId != "b" {
		t.Errorf("published = %+v", msgs)
	}
}

func TestWatcher_ReopensWithResumeToken(t *testing.T) {
	first := &fakeStream{events: []*changeModel.ChangeEvent{insertEvent("a"), nil}}
	second := &fakeStream{events: []*changeModel.ChangeEvent{insertEvent("b")}}
	source := &fakeSource{streams: map[string][]*fakeStream{"doi-song": {first, second}}}
	pub := &fakePublisher{}

	w := NewWatcher(Config{Source: source, Publisher: pub, Collections: []string{"doi-song"}, PollInterval: time.Millisecond})
	if err := runFor(t, w, 100*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(source.calls) != 2 || source.calls[0].resumed || !source.calls[1].resumed {
		t.Errorf("watch calls = %+v, want a fresh open then a resumed one", source.calls)
	}
	if !first.closed {
		t.Error("failed stream should be closed before reopening")
	}
	if msgs := pub.Messages(); len(msgs) != 2 {
		t.Errorf("published %d messages, want 2", len(msgs))
	}
}

func TestWatcher_GivesUpAfterRepeatedFailures(t *testing.T) {
	source := &fakeSource{streams: map[string][]*fakeStream{}}
	opened := false
	source.OnWatch = func(string) error {
		if !opened {
			opened = true
			return nil
		}
		return errors.New("no primary")
	}
	source.streams["phap-luat"] = []*fakeStream{{events: []*changeModel.ChangeEvent{nil}}}

	w := NewWatcher(Config{
		Source:          source,
		Publisher:       &fakePublisher{},
		Collections:     []string{"phap-luat"},
		PollInterval:    time.Millisecond,
		MaxStreamErrors: 3,
	})
	err := runFor(t, w, 2*time.Second)
	if !errors.Is(err, ErrTooManyStreamErrors) {
		t.Fatalf("Run() = %v, want ErrTooManyStreamErrors", err)
	}
}

func TestWatcher_OpenFailureIsReturned(t *testing.T) {
	good := &fakeStream{}
	source := &fakeSource{streams: map[string][]*fakeStream{"a": {good}}}
	source.OnWatch = func(collection string) error {
		if collection == "b" {
			return errors.New("not authorized")
		}
		return nil
	}

	w := NewWatcher(Config{Source: source, Publisher: &fakePublisher{}, Collections: []string{"a", "b"}})
	if err := w.Open(context.Background()); err == nil {
		t.Fatal("expected open error")
	}
	if !good.closed {
		t.Error("streams opened before the failure must be closed")
	}
}
