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

// Package bus is the durable publish/subscribe transport connecting
// adapters to processors to analyzers to the alert aggregator. Subjects are
// hierarchical: <tenantId>.<entityKind>.<stage>. This is a cross-process,
// at-least-once transport; it is deliberately not an in-process observer
// list and must not be used as one.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harborwatch/harborwatch/pkg/models"
)

// Lifecycle stages carried in the subject's third token.
const (
	StageFetched  = "fetched"
	StageAnalysis = "analysis"
)

// Wildcard matches any single subject token.
const Wildcard = "*"

var (
	errInvalidSubject = errors.New("invalid subject")
	errInvalidStage   = errors.New("invalid subject stage")
)

// Handler processes one delivered message. A returned error is logged and
// the message is redelivered per the at-least-once contract; handlers must
// be idempotent with respect to the entity hash.
type Handler func(ctx context.Context, msg Message) error

// Message is one delivered bus payload.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is a live subject binding.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the transport contract. Implementations deliver at-least-once and
// never let one message's handler failure terminate the subscription loop.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler Handler) (Subscription, error)
}

// Subject builds the subject for one (tenant, entity kind, stage).
func Subject(tenantID string, kind models.EntityKind, stage string) string {
	return fmt.Sprintf("%s.%s.%s", tenantID, kind, stage)
}

// WildcardSubject builds the all-tenants subject for one entity kind, e.g.
// "*.endpoints.fetched", letting a single analyzer deployment serve every
// tenant.
func WildcardSubject(kind models.EntityKind, stage string) string {
	return fmt.Sprintf("%s.%s.%s", Wildcard, kind, stage)
}

// ParseSubject splits a concrete subject back into its parts.
func ParseSubject(subject string) (tenantID string, kind models.EntityKind, stage string, err error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", "", "", fmt.Errorf("%w: %q", errInvalidSubject, subject)
	}

	kind = models.EntityKind(parts[1])
	if !kind.Valid() {
		return "", "", "", fmt.Errorf("%w: %q", errInvalidSubject, subject)
	}

	stage = parts[2]
	if stage != StageFetched && stage != StageAnalysis {
		return "", "", "", fmt.Errorf("%w: %q", errInvalidStage, stage)
	}

	return parts[0], kind, stage, nil
}

// MatchSubject reports whether a concrete subject matches a pattern that
// may contain * wildcards.
func MatchSubject(pattern, subject string) bool {
	pp := strings.Split(pattern, ".")
	sp := strings.Split(subject, ".")

	if len(pp) != len(sp) {
		return false
	}

	for i := range pp {
		if pp[i] != Wildcard && pp[i] != sp[i] {
			return false
		}
	}

	return true
}

// PublishError marks a bus publish failure. It is fatal for the run that
// produced the payload: the run is marked failed so the scheduler retries
// the whole fetch, rather than treating the records as delivered.
type PublishError struct {
	Subject string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed: %v", e.Subject, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
