// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package feedui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/crowdsync/crowdsync/feed"
	"github.com/crowdsync/crowdsync/locality"
)

type stateMsg feed.State

type notificationMsg feed.Notification

type localitiesMsg locality.TrackerState

// eventsMsg carries everything queued since the model last listened.
type eventsMsg []tea.Msg

// Events carries controller callbacks into the bubbletea program. Pass
// Events.OnChange as feed.Config.OnChange and the Events itself as
// feed.Config.Notifier. Callbacks never block; the queue is drained
// each time the model listens.
type Events struct {
	mu      sync.Mutex
	pending []tea.Msg
	signal  chan struct{}
	closed  bool
}

func NewEvents() *Events {
	return &Events{signal: make(chan struct{}, 1)}
}

// OnChange queues a state snapshot.
func (e *Events) OnChange(state feed.State) {
	e.push(stateMsg(state))
}

// Notify implements feed.Notifier.
func (e *Events) Notify(notification feed.Notification) {
	e.push(notificationMsg(notification))
}

// OnLocalities queues a pincode lookup update. Pass it as the
// locality.Tracker's onChange.
func (e *Events) OnLocalities(state locality.TrackerState) {
	e.push(localitiesMsg(state))
}

// Close ends the listen loop.
func (e *Events) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.signal)
	}
}

func (e *Events) push(message tea.Msg) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.pending = append(e.pending, message)
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

func (e *Events) listen() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-e.signal; !ok {
			return nil
		}
		e.mu.Lock()
		batch := e.pending
		e.pending = nil
		e.mu.Unlock()
		return eventsMsg(batch)
	}
}
