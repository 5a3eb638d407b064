package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

// Envelope types sent by pages.
const (
	TypeAudio       = "audio"
	TypeMessageText = "message_text"
	TypeNavigate    = "navigate"
	TypePing        = "ping"
)

// Envelope types sent to pages.
const (
	TypePong         = "pong"
	TypeAck          = "ack"
	TypeError        = "error"
	TypeDownloaded   = "download_completed"
	TypeStoreChanged = "store_changed"
	TypeNowPlaying   = "now_playing"
	TypeDownloadAll  = "download_all"
	TypeSay          = "say"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32

	// maxMessageSize bounds inbound frames; audio arrives base64 encoded.
	maxMessageSize = 64 << 20
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// MessageText reports the rendered text of a message.
type MessageText struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// Navigate reports the URL the page moved to.
type Navigate struct {
	URL string `json:"url"`
}

// StoreChange describes a store event to clients.
type StoreChange struct {
	Kind           string `json:"kind"`
	ItemID         string `json:"itemId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// DownloadAll asks the page to request synthesis for every message of a
// conversation except the listed ones.
type DownloadAll struct {
	ConversationID string   `json:"conversationId"`
	Skip           []string `json:"skip"`
}

// Say asks the page to type text into the chat input and send it.
type Say struct {
	Text string `json:"text"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HubOptions configures a Hub.
type HubOptions struct {
	Handler *Handler
	// Index learns message texts reported by the page.
	Index *intercept.MessageIndex
	// OnNavigate is called for every page navigation.
	OnNavigate func(url string)
}

// Hub is the websocket endpoint pages connect to. It accepts bridge
// messages and broadcasts store and now-playing updates. Hub implements
// nowplaying.Surface.
type Hub struct {
	opts HubOptions

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub.
func NewHub(opts HubOptions) *Hub {
	return &Hub{
		opts:    opts,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and serves it until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	log.Debug("Bridge client connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		log.Debug("Bridge client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Bridge read failed", "error", err)
			}
			return
		}
		h.dispatch(c, env)
	}
}

func (h *Hub) dispatch(c *client, env Envelope) {
	switch env.Type {
	case TypeAudio:
		if h.opts.Handler == nil {
			h.reply(c, Envelope{Type: TypeError, Error: "downloads are not accepted"})
			return
		}
		if err := h.opts.Handler.HandleJSON(context.Background(), env.Data); err != nil {
			h.reply(c, Envelope{Type: TypeError, Error: err.Error()})
			return
		}
		h.reply(c, Envelope{Type: TypeAck})

	case TypeMessageText:
		var mt MessageText
		if err := json.Unmarshal(env.Data, &mt); err != nil || mt.MessageID == "" {
			h.reply(c, Envelope{Type: TypeError, Error: "invalid message_text payload"})
			return
		}
		if h.opts.Index != nil {
			h.opts.Index.Record(mt.MessageID, mt.Text)
		}

	case TypeNavigate:
		var nav Navigate
		if err := json.Unmarshal(env.Data, &nav); err != nil || nav.URL == "" {
			h.reply(c, Envelope{Type: TypeError, Error: "invalid navigate payload"})
			return
		}
		if h.opts.OnNavigate != nil {
			h.opts.OnNavigate(nav.URL)
		}

	case TypePing:
		h.reply(c, Envelope{Type: TypePong})

	default:
		h.reply(c, Envelope{Type: TypeError, Error: "Unknown message type"})
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) reply(c *client, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.enqueueLocked(c, data)
	}
}

// Broadcast sends an envelope to every client. Clients that cannot keep up
// are disconnected.
func (h *Hub) Broadcast(typ string, v any) {
	env := Envelope{Type: typ}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			log.Warn("Could not encode broadcast", "type", typ, "error", err)
			return
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueueLocked(c, frame)
	}
}

func (h *Hub) enqueueLocked(c *client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		log.Debug("Dropping slow bridge client")
		delete(h.clients, c)
		c.close()
	}
}

// WatchStore broadcasts store events until the returned function is called.
func (h *Hub) WatchStore(s *store.Store) func() {
	return s.Subscribe(func(ev store.Event) {
		if ev.Kind == store.EventAdded {
			h.Broadcast(TypeDownloaded, ev.Item)
		}
		h.Broadcast(TypeStoreChanged, StoreChange{
			Kind:           ev.Kind.String(),
			ItemID:         ev.Item.ID,
			MessageID:      ev.Item.MessageID,
			ConversationID: ev.ConversationID,
		})
	})
}

// RequestDownloadAll asks connected pages to synthesize every message of the
// conversation that is not downloaded yet.
func (h *Hub) RequestDownloadAll(s *store.Store, conversationID string) int {
	skip := s.DownloadedMessageIDs(conversationID)
	if skip == nil {
		skip = []string{}
	}
	h.Broadcast(TypeDownloadAll, DownloadAll{ConversationID: conversationID, Skip: skip})
	return h.Clients()
}

// RequestSay broadcasts text for the page to send to the chat. It returns the
// number of clients that were connected.
func (h *Hub) RequestSay(text string) int {
	h.Broadcast(TypeSay, Say{Text: text})
	return h.Clients()
}

// Publish implements nowplaying.Surface.
func (h *Hub) Publish(info nowplaying.Info) error {
	h.Broadcast(TypeNowPlaying, info)
	return nil
}

// Clear implements nowplaying.Surface.
func (h *Hub) Clear() {
	h.Broadcast(TypeNowPlaying, nil)
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	return nil
}
