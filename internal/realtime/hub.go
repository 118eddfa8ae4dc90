package realtime

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/redis/go-redis/v9"
)

// Hub tracks connected websocket clients and routes envelopes to them. Every
// client implicitly receives its own user channel; conversation channels are
// joined with an explicit subscribe frame.
type Hub struct {
	clients       map[int64]map[*Client]struct{}
	subscriptions map[string]map[*Client]struct{}
	register      chan *Client
	unregister    chan *Client
	subscribe     chan subscription
	deliver       chan *Envelope
}

type subscription struct {
	client  *Client
	channel string
	join    bool
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   int64
	channels map[string]struct{}
	send     chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[int64]map[*Client]struct{}),
		subscriptions: make(map[string]map[*Client]struct{}),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan subscription),
		deliver:       make(chan *Envelope, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		channels: make(map[string]struct{}),
		send:     make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.drop(client)
		case sub := <-h.subscribe:
			if sub.join {
				h.join(sub.client, sub.channel)
			} else {
				h.leave(sub.client, sub.channel)
			}
		case envelope := <-h.deliver:
			h.route(envelope)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish makes the hub usable as a local transport when no redis is
// configured: envelopes go straight to this instance's clients.
func (h *Hub) Publish(_ context.Context, channel string, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	h.deliver <- &Envelope{Channel: channel, Event: event, Data: data}
	return nil
}

// RunBridge forwards redis pub/sub traffic into the hub until ctx ends.
func (h *Hub) RunBridge(ctx context.Context, client *redis.Client) {
	pubsub := client.PSubscribe(ctx, "dm:*")
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var envelope Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				log.Printf("realtime bridge: bad envelope on %s: %v", msg.Channel, err)
				continue
			}
			h.deliver <- &envelope
		}
	}
}

func (h *Hub) route(envelope *Envelope) {
	encoded, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("realtime hub encode envelope: %v", err)
		return
	}

	if userID, ok := userChannelID(envelope.Channel); ok {
		h.sendToUser(userID, encoded)
		return
	}

	set, ok := h.subscriptions[envelope.Channel]
	if !ok {
		return
	}
	for client := range set {
		h.push(client, encoded)
	}
}

func (h *Hub) sendToUser(userID int64, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}
	for client := range set {
		h.push(client, payload)
	}
}

func (h *Hub) add(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.userID] = set
	}
	set[client] = struct{}{}
}

// join ignores clients that are no longer registered. A dropped client has a
// closed send channel; re-adding it would make the next push panic.
func (h *Hub) join(client *Client, channel string) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, registered := set[client]; !registered {
		return
	}
	subs, ok := h.subscriptions[channel]
	if !ok {
		subs = make(map[*Client]struct{})
		h.subscriptions[channel] = subs
	}
	subs[client] = struct{}{}
	client.channels[channel] = struct{}{}
}

func (h *Hub) push(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := set[client]; !exists {
		return
	}
	delete(set, client)
	close(client.send)
	// Closing the connection ends ReadPump, so a dropped client cannot keep
	// sending subscribe frames.
	if client.conn != nil {
		_ = client.conn.Close()
	}
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	for channel := range client.channels {
		h.leave(client, channel)
	}
}

func (h *Hub) leave(client *Client, channel string) {
	delete(client.channels, channel)
	set, ok := h.subscriptions[channel]
	if !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.subscriptions, channel)
	}
}

// userChannelID parses "dm:user:<id>" channel names.
func userChannelID(channel string) (int64, bool) {
	rest, ok := strings.CutPrefix(channel, "dm:user:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// conversationChannelMembers parses "dm:conv:<lo>:<hi>" channel names.
func conversationChannelMembers(channel string) (int64, int64, bool) {
	rest, ok := strings.CutPrefix(channel, "dm:conv:")
	if !ok {
		return 0, 0, false
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// ReadPump consumes subscribe/unsubscribe frames until the connection drops.
// Messages themselves are sent over HTTP; the websocket is push only.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type    string `json:"type"`
			Channel string `json:"channel"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			continue
		}

		switch incoming.Type {
		case "subscribe":
			lo, hi, ok := conversationChannelMembers(incoming.Channel)
			if !ok || (c.userID != lo && c.userID != hi) {
				continue
			}
			c.hub.subscribe <- subscription{client: c, channel: incoming.Channel, join: true}
		case "unsubscribe":
			c.hub.subscribe <- subscription{client: c, channel: incoming.Channel, join: false}
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
