// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const defaultQueueSize = 1000

// Subscription is a handle for a registered subscriber.
type Subscription struct {
	ID          string
	Event       HookEvent
	Callback    func(*EventContext)
	Filter      func(*EventContext) bool
	Unsubscribe func()
}

// EventBus manages event distribution to subscribers.
type EventBus struct {
	subscribers  map[HookEvent][]*Subscription
	mu           sync.RWMutex
	eventQueue   chan *EventContext
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewEventBus creates a new event bus and starts its async dispatcher.
func NewEventBus() *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	bus := &EventBus{
		subscribers: make(map[HookEvent][]*Subscription),
		eventQueue:  make(chan *EventContext, defaultQueueSize),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go bus.processQueue()

	return bus
}

// Subscribe registers a callback for a specific event type.
func (b *EventBus) Subscribe(event HookEvent, callback func(*EventContext)) *Subscription {
	return b.SubscribeWithFilter(event, callback, nil)
}

// SubscribeWithFilter registers a callback with an optional filter function.
func (b *EventBus) SubscribeWithFilter(event HookEvent, callback func(*EventContext), filter func(*EventContext) bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:       uuid.NewString(),
		Event:    event,
		Callback: callback,
		Filter:   filter,
	}
	sub.Unsubscribe = func() {
		b.unsubscribe(sub)
	}

	b.subscribers[event] = append(b.subscribers[event], sub)
	return sub
}

func (b *EventBus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.Event]
	for i, s := range subs {
		if s.ID == sub.ID {
			next := make([]*Subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			b.subscribers[sub.Event] = append(next, subs[i+1:]...)
			break
		}
	}
}

// Publish distributes an event to all subscribers synchronously.
// A panicking subscriber is logged and does not affect the others.
func (b *EventBus) Publish(ctx *EventContext) {
	if ctx == nil {
		return
	}

	b.mu.RLock()
	subs := b.subscribers[ctx.Event]
	active := make([]*Subscription, len(subs))
	copy(active, subs)
	b.mu.RUnlock()

	for _, sub := range active {
		if sub.Filter != nil && !sub.Filter(ctx) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("panic in event subscriber for %s: %v", ctx.Event, r)
				}
			}()
			sub.Callback(ctx)
		}()
	}
}

// PublishAsync queues an event for the dispatcher. Events are dropped when
// the queue is full or the bus has been shut down.
func (b *EventBus) PublishAsync(ctx *EventContext) {
	if ctx == nil || b.ctx.Err() != nil {
		return
	}

	select {
	case <-b.ctx.Done():
	case b.eventQueue <- ctx:
	default:
		log.Warnf("event queue full, dropping event: %s", ctx.Event)
	}
}

func (b *EventBus) processQueue() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventQueue:
			b.Publish(event)
		}
	}
}

// Shutdown stops the dispatcher. Queued events not yet dispatched are dropped.
func (b *EventBus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.cancel()
		<-b.done
	})
}
