package model

import (
	"time"
)

// ChangeType names a resource change a subscription can ask for.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// AllChangeTypes is the set requested for every chat subscription.
func AllChangeTypes() []ChangeType {
	return []ChangeType{ChangeCreated, ChangeUpdated, ChangeDeleted}
}

// SubscriptionDefinition is the create-subscription request body sent over
// the notification channel.
type SubscriptionDefinition struct {
	Resource       string       `json:"resource"`
	ExpirationTime time.Time    `json:"expirationTime"`
	ChangeTypes    []ChangeType `json:"changeTypes"`
	ResourceData   bool         `json:"resourceData"`
	ConnectionID   string       `json:"connectionId"`
}

// SubscriptionRecord is a confirmed, time-limited registration with the
// remote API. Resource is the natural key used for deduplication; ID is the
// unique identity assigned by the server.
type SubscriptionRecord struct {
	UserID         string    `json:"userId"`
	ID             string    `json:"subscriptionId"`
	Resource       string    `json:"resource"`
	ExpirationTime time.Time `json:"expirationTime"`
}

// Expired reports whether the record is past its expiration at the given
// instant.
func (r SubscriptionRecord) Expired(now time.Time) bool {
	return !r.ExpirationTime.After(now)
}

// ExpiresWithin reports whether the record expires at or before now+d.
func (r SubscriptionRecord) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !r.ExpirationTime.After(now.Add(d))
}

// Notification is an inbound push frame payload before decryption.
type Notification struct {
	SubscriptionID   string `json:"subscriptionId"`
	EncryptedContent string `json:"encryptedContent"`
}
