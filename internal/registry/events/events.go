// Package events carries registry notifications to subscribers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Topic names one notification stream.
type Topic string

const (
	TopicProfileRegistered Topic = "profile_registered"
	TopicProfileUpdated    Topic = "profile_updated"
	TopicClaimAdded        Topic = "claim_added"
	TopicClaimApproved     Topic = "claim_approved"
	TopicClaimRejected     Topic = "claim_rejected"
	TopicDIDLinked         Topic = "did_linked"
)

// AllTopics lists every topic the registry emits.
func AllTopics() []Topic {
	return []Topic{
		TopicProfileRegistered,
		TopicProfileUpdated,
		TopicClaimAdded,
		TopicClaimApproved,
		TopicClaimRejected,
		TopicDIDLinked,
	}
}

// Event is one notification. AggregateID orders events of the same profile or claim.
type Event struct {
	ID          uuid.UUID
	Topic       Topic
	AggregateID string
	OccurredAt  time.Time
	Payload     any
}

type ProfileRegistered struct {
	Owner       string `json:"owner"`
	MetadataURI string `json:"metadata_uri"`
}

type ProfileUpdated struct {
	Owner       string `json:"owner"`
	MetadataURI string `json:"metadata_uri"`
}

type ClaimAdded struct {
	ClaimID   uint64 `json:"claim_id"`
	Issuer    string `json:"issuer"`
	Receiver  string `json:"receiver"`
	ClaimType string `json:"claim_type"`
}

// ClaimDecided is the payload of both claim_approved and claim_rejected.
type ClaimDecided struct {
	ClaimID  uint64 `json:"claim_id"`
	Issuer   string `json:"issuer"`
	Receiver string `json:"receiver"`
}

type DIDLinked struct {
	Owner string `json:"owner"`
	DID   string `json:"did"`
}

// New stamps a fresh event id.
func New(topic Topic, aggregateID string, occurredAt time.Time, payload any) Event {
	return Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		OccurredAt:  occurredAt,
		Payload:     payload,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
