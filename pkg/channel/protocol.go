package channel

import (
	"encoding/json"

	"github.com/go-go-golems/graphwatch/pkg/model"
)

// Server methods invoked by the client.
const (
	MethodCreateSubscription = "CreateSubscription"
	MethodRenewSubscription  = "RenewSubscription"
)

// Server-initiated message targets.
const (
	TargetNewMessage                 = "newMessage"
	TargetSubscriptionCreated        = "SubscriptionCreated"
	TargetSubscriptionRenewed        = "SubscriptionRenewed"
	TargetSubscriptionRenewalFailed  = "SubscriptionRenewalFailed"
	TargetSubscriptionCreationFailed = "SubscriptionCreationFailed"
	TargetSubscriptionRenewalIgnored = "SubscriptionRenewalIgnored"
	TargetEcho                       = "EchoMessage"
)

// Topic maps a server-initiated target to the in-process bus topic its
// payloads are published on.
func Topic(target string) string {
	return "notifications." + target
}

// frame is the wire envelope exchanged over the push connection.
//
// The server sends a "welcome" frame carrying the connection id right
// after the handshake, "invocation" frames for server-initiated targets
// and "ack" frames answering client invocations.
type frame struct {
	Type         string            `json:"type"`
	ConnectionID string            `json:"connectionId,omitempty"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	AccessToken  string            `json:"accessToken,omitempty"`
	Error        string            `json:"error,omitempty"`
}

const (
	frameWelcome    = "welcome"
	frameInvocation = "invocation"
	frameAck        = "ack"
)

// InboundMessage is the decoded form of a push notification, published on
// the newMessage topic for the subscription manager to route.
type InboundMessage struct {
	SubscriptionID string          `json:"subscriptionId"`
	Event          model.ChatEvent `json:"event"`
}
