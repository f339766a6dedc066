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
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/harborwatch/harborwatch/pkg/logger"
)

const (
	// StreamName is the JetStream stream carrying every pipeline subject.
	StreamName = "PIPELINE"
)

var streamSubjects = []string{
	"*.*." + StageFetched,
	"*.*." + StageAnalysis,
}

// NATSBus is the production Bus over NATS JetStream. It is constructed
// explicitly and injected into whichever component needs to publish or
// subscribe; there is no shared global connection.
type NATSBus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.Logger
}

// ConnectNATS dials NATS, ensures the pipeline stream exists, and returns
// the bus. Close releases the connection.
func ConnectNATS(ctx context.Context, url string, log logger.Logger, opts ...nats.Option) (*NATSBus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: streamSubjects,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create or update stream %s: %w", StreamName, err)
	}

	return &NATSBus{
		nc:     nc,
		js:     js,
		logger: log.WithComponent("bus.nats"),
	}, nil
}

// Publish writes one message to the stream.
func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return &PublishError{Subject: subject, Err: err}
	}

	return nil
}

// Subscribe creates a durable consumer for the subject pattern and starts
// delivery. Handler failures are logged and the message is NAKed for
// redelivery; the consume loop itself keeps running.
func (b *NATSBus) Subscribe(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	cons, err := b.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:        durableName(subject),
		FilterSubjects: []string{subject},
		AckPolicy:      jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", subject, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if handlerErr := handler(ctx, Message{Subject: msg.Subject(), Data: msg.Data()}); handlerErr != nil {
			b.logger.Error().
				Err(handlerErr).
				Str("subject", msg.Subject()).
				Msg("Subscription handler failed; message will be redelivered")

			if nakErr := msg.Nak(); nakErr != nil {
				b.logger.Error().Err(nakErr).Str("subject", msg.Subject()).Msg("Failed to NAK message")
			}

			return
		}

		if ackErr := msg.Ack(); ackErr != nil {
			b.logger.Error().Err(ackErr).Str("subject", msg.Subject()).Msg("Failed to ACK message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consume for %s: %w", subject, err)
	}

	return &natsSub{cc: cc}, nil
}

// Close drains the underlying connection.
func (b *NATSBus) Close() {
	b.nc.Close()
}

type natsSub struct {
	cc jetstream.ConsumeContext
}

func (s *natsSub) Unsubscribe() error {
	s.cc.Stop()
	return nil
}

// durableName derives a valid JetStream durable name from a subject
// pattern (durable names may not contain '.' or '*').
func durableName(subject string) string {
	name := strings.ReplaceAll(subject, ".", "_")
	name = strings.ReplaceAll(name, Wildcard, "any")

	return "pipeline_" + name
}
