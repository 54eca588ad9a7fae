package live

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/onnwee/crimson-live/backend/twitchapi"
)

type call struct {
	Action       string
	ChannelID    string
	Ref          MessageRef
	Announcement Announcement
	Locked       bool
	Presence     Presence
}

// fakePlatform records every side effect in order.
type fakePlatform struct {
	mu      sync.Mutex
	calls   []call
	next    int
	postErr error
	editErr error
	lockErr error
	presErr error
}

func (f *fakePlatform) PostAnnouncement(_ context.Context, channelID string, a Announcement) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Action: "post", ChannelID: channelID, Announcement: a})
	if f.postErr != nil {
		return MessageRef{}, f.postErr
	}
	f.next++
	return MessageRef{ChannelID: channelID, MessageID: "msg-" + strconv.Itoa(f.next)}, nil
}

func (f *fakePlatform) EditAnnouncement(_ context.Context, ref MessageRef, a Announcement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Action: "edit", Ref: ref, Announcement: a})
	return f.editErr
}

func (f *fakePlatform) SetChannelLocked(_ context.Context, channelID string, locked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Action: "lock", ChannelID: channelID, Locked: locked})
	return f.lockErr
}

func (f *fakePlatform) SetPresence(_ context.Context, p Presence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Action: "presence", Presence: p})
	return f.presErr
}

func (f *fakePlatform) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakePlatform) byAction(action string) []call {
	var out []call
	for _, c := range f.Calls() {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

type fakeFetcher struct {
	mu    sync.Mutex
	snap  *twitchapi.StreamSnapshot
	err   error
	calls int
}

func (f *fakeFetcher) GetStream(_ context.Context, _ string) (*twitchapi.StreamSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.snap == nil {
		return nil, nil
	}
	s := *f.snap
	return &s, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *fakeRecorder) RecordLiveEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

var errPlatform = errors.New("discord unavailable")
