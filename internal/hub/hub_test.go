// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/mindmap-editor/internal/docstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSub struct {
	id   string
	fail bool

	mu     sync.Mutex
	events []Event
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Send(_ context.Context, ev Event) error {
	if f.fail {
		return errors.New("connection closed")
	}
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeSub) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func TestHub_BroadcastReachesAll(t *testing.T) {
	h := New(nil)
	a, b := &fakeSub{id: "a"}, &fakeSub{id: "b"}
	h.Subscribe(a)
	h.Subscribe(b)

	n := h.Broadcast(context.Background(), FileUpdated("m/content.md", "x"))
	assert.Equal(t, 2, n)
	assert.Equal(t, []Event{FileUpdated("m/content.md", "x")}, a.received())
	assert.Equal(t, []Event{FileUpdated("m/content.md", "x")}, b.received())
}

func TestHub_FailingSubscriberIsSkipped(t *testing.T) {
	h := New(nil)
	good, bad := &fakeSub{id: "good"}, &fakeSub{id: "bad", fail: true}
	h.Subscribe(good)
	h.Subscribe(bad)

	n := h.Broadcast(context.Background(), FileUpdated("p", "c"))
	assert.Equal(t, 1, n)
	assert.Len(t, good.received(), 1)
	assert.Equal(t, 2, h.Len())
}

func TestHub_Unsubscribe(t *testing.T) {
	h := New(nil)
	a := &fakeSub{id: "a"}
	h.Subscribe(a)
	h.Unsubscribe("a")
	h.Unsubscribe("never-registered")

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.Broadcast(context.Background(), FileUpdated("p", "c")))
	assert.Empty(t, a.received())
}

func TestHub_DocumentChangedBroadcasts(t *testing.T) {
	h := New(nil)
	a := &fakeSub{id: "a"}
	h.Subscribe(a)

	var n docstore.Notifier = h
	n.DocumentChanged(context.Background(), "01_a/content.md", "new")

	require.Len(t, a.received(), 1)
	assert.Equal(t, TypeFileUpdated, a.received()[0].Type)
	assert.Equal(t, "new", a.received()[0].Content)
}

func TestHub_ConcurrentSubscribeAndBroadcast(t *testing.T) {
	h := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sub-%d", i)
			h.Subscribe(&fakeSub{id: id})
			if i%2 == 0 {
				h.Unsubscribe(id)
			}
		}(i)
		go func() {
			defer wg.Done()
			h.Broadcast(context.Background(), FileUpdated("p", "c"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 25, h.Len())
}

func TestEvent_MarshalJSON(t *testing.T) {
	tree := &docstore.Tree{Title: "T", Modules: []*docstore.Node{}}

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"file_updated", FileUpdated("a/content.md", ""), `{"type":"file_updated","path":"a/content.md","content":""}`},
		{"sync", Sync(tree), `{"type":"sync","tree":{"title":"T","modules":[]}}`},
		{"update_success", UpdateSuccess("a/content.md"), `{"type":"update_success","path":"a/content.md"}`},
		{"error", ErrorEvent("Invalid update message"), `{"type":"error","message":"Invalid update message"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}

	_, err := json.Marshal(Event{Type: "bogus"})
	assert.Error(t, err)
}
