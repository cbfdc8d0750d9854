package streaming

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/slimedodge/server/internal/tilemap"
)

// Manager tracks what each connected observer has been sent so that chunk
// updates can be delivered as deltas.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	maxRadius     int
}

// Subscription tracks an individual observer's view of the chunk set
type Subscription struct {
	ID         string
	ObserverID string
	Request    SubscriptionRequest
	Known      []tilemap.ChunkCoord
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SubscriptionRequest is sent by observers to begin receiving stream data
type SubscriptionRequest struct {
	Radius        int  `json:"radius" validate:"min=0"`
	IncludeChunks bool `json:"include_chunks"`
	IncludeAgents bool `json:"include_agents"`
}

// SubscriptionPlan captures the initial server response for a subscription
type SubscriptionPlan struct {
	SubscriptionID string `json:"subscription_id"`
	Radius         int    `json:"radius"`
}

// ObserverDelta describes the chunk changes an observer has not seen yet
type ObserverDelta struct {
	SubscriptionID string
	Added          []tilemap.ChunkCoord
	Removed        []tilemap.ChunkCoord
	Current        []tilemap.ChunkCoord
}

// NewManager builds a manager. Observers cannot request more than maxRadius.
func NewManager(maxRadius int) *Manager {
	return &Manager{
		subscriptions: make(map[string]*Subscription),
		maxRadius:     maxRadius,
	}
}

// PlanSubscription validates the request and registers the subscription
func (m *Manager) PlanSubscription(observerID string, req SubscriptionRequest) (*SubscriptionPlan, error) {
	if observerID == "" {
		return nil, eris.New("observer id is required")
	}
	if req.Radius < 0 {
		return nil, eris.New("radius must not be negative")
	}
	if req.Radius > m.maxRadius {
		return nil, eris.Errorf("radius cannot exceed %d", m.maxRadius)
	}
	if !req.IncludeChunks && !req.IncludeAgents {
		return nil, eris.New("at least one of include_chunks/include_agents must be true")
	}

	now := time.Now()
	sub := &Subscription{
		ID:         uuid.NewString(),
		ObserverID: observerID,
		Request:    req,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	m.subscriptions[sub.ID] = sub
	m.mu.Unlock()

	return &SubscriptionPlan{SubscriptionID: sub.ID, Radius: req.Radius}, nil
}

// Sync diffs the live chunk set, restricted to the subscription radius
// around center, against what the observer already knows.
func (m *Manager) Sync(subscriptionID string, center tilemap.ChunkCoord, live []tilemap.ChunkCoord) (*ObserverDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[subscriptionID]
	if !ok {
		return nil, eris.Errorf("subscription %s not found", subscriptionID)
	}

	visible := make([]tilemap.ChunkCoord, 0, len(live))
	for _, c := range live {
		if c.Chebyshev(center) <= sub.Request.Radius {
			visible = append(visible, c)
		}
	}
	added, removed := diffChunkSets(sub.Known, visible)
	sub.Known = visible
	sub.UpdatedAt = time.Now()

	return &ObserverDelta{
		SubscriptionID: subscriptionID,
		Added:          added,
		Removed:        removed,
		Current:        visible,
	}, nil
}

// Unsubscribe forgets a subscription
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	delete(m.subscriptions, subscriptionID)
	m.mu.Unlock()
}

// GetSubscription retrieves a subscription by ID
func (m *Manager) GetSubscription(subscriptionID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subscriptions[subscriptionID]
	if !ok {
		return nil, eris.Errorf("subscription %s not found", subscriptionID)
	}
	return sub, nil
}

// Count returns the number of active subscriptions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}
