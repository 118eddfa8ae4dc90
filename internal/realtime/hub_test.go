package realtime

import (
	"encoding/json"
	"testing"
)

func TestHubDropRemovesClientAndSubscriptions(t *testing.T) {
	h := NewHub()
	client := NewClient(h, nil, 7)
	h.add(client)

	channel := ConversationChannel(7, 9)
	h.join(client, channel)

	payload := []byte(`{}`)
	for i := 0; i <= cap(client.send); i++ {
		h.push(client, payload)
	}

	if _, ok := h.clients[7]; ok {
		t.Fatalf("expected slow client to be dropped")
	}
	if _, ok := h.subscriptions[channel]; ok {
		t.Fatalf("expected dropped client removed from %s", channel)
	}
}

func TestHubIgnoresSubscribeFromDroppedClient(t *testing.T) {
	h := NewHub()
	client := NewClient(h, nil, 7)
	h.add(client)

	channel := ConversationChannel(7, 9)

	// Fill the send buffer until push drops the client.
	payload := []byte(`{}`)
	for i := 0; i <= cap(client.send); i++ {
		h.push(client, payload)
	}

	h.join(client, channel)
	if _, ok := h.subscriptions[channel]; ok {
		t.Fatalf("dropped client must not rejoin %s", channel)
	}

	// Routing after the refused rejoin must not write to the closed send
	// channel.
	h.route(&Envelope{Channel: channel, Event: EventNewMessage, Data: json.RawMessage(`{}`)})
	h.route(&Envelope{Channel: UserChannel(7), Event: EventInfoUpdate, Data: json.RawMessage(`{}`)})
}

func TestHubSubscribeRequiresRegistration(t *testing.T) {
	h := NewHub()
	client := NewClient(h, nil, 7)

	channel := ConversationChannel(7, 9)
	h.join(client, channel)
	if _, ok := h.subscriptions[channel]; ok {
		t.Fatalf("unregistered client must not join %s", channel)
	}
}
