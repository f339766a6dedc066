/*
 * Copyright 2025 Harborwatch, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bus

import (
	"context"
	"sync"

	"github.com/harborwatch/harborwatch/pkg/logger"
)

// InMemBus is a synchronous, in-process Bus used by tests and local
// development. Delivery is in-order and single-shot; it intentionally keeps
// the Bus contract's error isolation (one handler failure never blocks the
// next message or the next handler).
type InMemBus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[int]*inMemSub
	logger  logger.Logger
	history []Message
}

type inMemSub struct {
	id      int
	pattern string
	handler Handler
	bus     *InMemBus
}

// NewInMem creates an empty in-memory bus.
func NewInMem(log logger.Logger) *InMemBus {
	return &InMemBus{
		subs:   make(map[int]*inMemSub),
		logger: log.WithComponent("bus.inmem"),
	}
}

// Publish delivers data to every matching subscriber synchronously.
func (b *InMemBus) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.Lock()
	b.history = append(b.history, Message{Subject: subject, Data: data})

	matching := make([]*inMemSub, 0, len(b.subs))
	for _, sub := range b.subs {
		if MatchSubject(sub.pattern, subject) {
			matching = append(matching, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range matching {
		if err := sub.handler(ctx, Message{Subject: subject, Data: data}); err != nil {
			b.logger.Error().
				Err(err).
				Str("subject", subject).
				Msg("Subscription handler failed")
		}
	}

	return nil
}

// Subscribe binds a handler to a subject pattern.
func (b *InMemBus) Subscribe(_ context.Context, subject string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &inMemSub{id: b.nextID, pattern: subject, handler: handler, bus: b}
	b.subs[sub.id] = sub

	return sub, nil
}

// Published returns a copy of every message published so far, for test
// assertions.
func (b *InMemBus) Published() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Message, len(b.history))
	copy(out, b.history)

	return out
}

func (s *inMemSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s.id)

	return nil
}
