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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

func TestSubjectRoundTrip(t *testing.T) {
	subject := Subject("tenant-1", models.EntityEndpoints, StageFetched)
	assert.Equal(t, "tenant-1.endpoints.fetched", subject)

	tenantID, kind, stage, err := ParseSubject(subject)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
	assert.Equal(t, models.EntityEndpoints, kind)
	assert.Equal(t, StageFetched, stage)
}

func TestParseSubjectRejectsMalformed(t *testing.T) {
	for _, subject := range []string{
		"",
		"tenant-1.endpoints",
		"tenant-1.endpoints.fetched.extra",
		".endpoints.fetched",
		"tenant-1.widgets.fetched",
		"tenant-1.endpoints.published",
	} {
		_, _, _, err := ParseSubject(subject)
		assert.Error(t, err, subject)
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"tenant-1.endpoints.fetched", "tenant-1.endpoints.fetched", true},
		{"*.endpoints.fetched", "tenant-1.endpoints.fetched", true},
		{"*.endpoints.fetched", "tenant-2.endpoints.fetched", true},
		{"*.*.analysis", "tenant-1.identities.analysis", true},
		{"*.endpoints.fetched", "tenant-1.identities.fetched", false},
		{"tenant-1.endpoints.fetched", "tenant-1.endpoints.analysis", false},
		{"*.endpoints", "tenant-1.endpoints.fetched", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchSubject(tt.pattern, tt.subject), tt.pattern+" vs "+tt.subject)
	}
}

func TestInMemBusDeliversToWildcardSubscribers(t *testing.T) {
	ctx := context.Background()
	b := NewInMem(logger.NewTestLogger())

	var got []string

	_, err := b.Subscribe(ctx, WildcardSubject(models.EntityEndpoints, StageFetched), func(_ context.Context, msg Message) error {
		got = append(got, msg.Subject)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "t1.endpoints.fetched", []byte("a")))
	require.NoError(t, b.Publish(ctx, "t2.endpoints.fetched", []byte("b")))
	require.NoError(t, b.Publish(ctx, "t1.identities.fetched", []byte("c")))

	assert.Equal(t, []string{"t1.endpoints.fetched", "t2.endpoints.fetched"}, got)
	assert.Len(t, b.Published(), 3)
}

func TestInMemBusHandlerFailureDoesNotBlockDelivery(t *testing.T) {
	ctx := context.Background()
	b := NewInMem(logger.NewTestLogger())

	var delivered int

	_, err := b.Subscribe(ctx, "*.*.analysis", func(_ context.Context, _ Message) error {
		return errors.New("boom")
	})
	require.NoError(t, err)

	_, err = b.Subscribe(ctx, "*.*.analysis", func(_ context.Context, _ Message) error {
		delivered++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "t1.endpoints.analysis", []byte("x")))
	require.NoError(t, b.Publish(ctx, "t1.endpoints.analysis", []byte("y")))

	assert.Equal(t, 2, delivered)
}

func TestInMemBusUnsubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewInMem(logger.NewTestLogger())

	var delivered int

	sub, err := b.Subscribe(ctx, "t1.endpoints.fetched", func(_ context.Context, _ Message) error {
		delivered++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "t1.endpoints.fetched", nil))
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, b.Publish(ctx, "t1.endpoints.fetched", nil))

	assert.Equal(t, 1, delivered)
}

func TestDurableName(t *testing.T) {
	assert.Equal(t, "pipeline_any_endpoints_fetched", durableName("*.endpoints.fetched"))
	assert.Equal(t, "pipeline_t1_endpoints_fetched", durableName("t1.endpoints.fetched"))
}
