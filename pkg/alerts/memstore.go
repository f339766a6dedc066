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

package alerts

import (
	"context"
	"fmt"
	"sync"

	"github.com/harborwatch/harborwatch/pkg/models"
)

// MemStore is an in-memory Store used by tests and local development. It
// keeps every episode per key so reopen history is observable.
type MemStore struct {
	mu       sync.RWMutex
	episodes map[string][]*models.Alert
	byID     map[string]*models.Alert
}

// NewMemStore creates an empty in-memory alert store.
func NewMemStore() *MemStore {
	return &MemStore{
		episodes: make(map[string][]*models.Alert),
		byID:     make(map[string]*models.Alert),
	}
}

func alertKey(tenantID, entityID string, category models.AlertCategory) string {
	return tenantID + "|" + entityID + "|" + string(category)
}

// GetLatest returns a copy of the newest episode for the key, or nil.
func (s *MemStore) GetLatest(_ context.Context, tenantID, entityID string, category models.AlertCategory) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eps := s.episodes[alertKey(tenantID, entityID, category)]
	if len(eps) == 0 {
		return nil, nil
	}

	latest := *eps[len(eps)-1]

	return &latest, nil
}

// Insert appends a new episode.
func (s *MemStore) Insert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[alert.ID]; exists {
		return fmt.Errorf("alert %s already exists", alert.ID)
	}

	stored := *alert
	key := alertKey(stored.TenantID, stored.EntityID, stored.Category)
	s.episodes[key] = append(s.episodes[key], &stored)
	s.byID[stored.ID] = &stored

	return nil
}

// Update applies a compare-and-swap on Version and bumps it on success.
func (s *MemStore) Update(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[alert.ID]
	if !ok {
		return fmt.Errorf("alert %s not found", alert.ID)
	}

	if current.Version != alert.Version {
		return ErrReconcileConflict
	}

	alert.Version++
	*current = *alert

	return nil
}

// Episodes returns copies of every episode recorded for the key, oldest
// first.
func (s *MemStore) Episodes(tenantID, entityID string, category models.AlertCategory) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eps := s.episodes[alertKey(tenantID, entityID, category)]
	out := make([]models.Alert, 0, len(eps))

	for _, ep := range eps {
		out = append(out, *ep)
	}

	return out
}
