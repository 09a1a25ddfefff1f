package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wabot/pkg/config"
	"wabot/pkg/logger"
	"wabot/pkg/message"
)

const requestTimeout = 15 * time.Second

// frame is the envelope for every bridge message, both directions.
type frame struct {
	Type    string            `json:"type"`
	ID      string            `json:"id,omitempty"`
	To      string            `json:"to,omitempty"`
	Content json.RawMessage   `json:"content,omitempty"`
	Event   *message.RawEvent `json:"event,omitempty"`
	JID     string            `json:"jid,omitempty"`
	Name    string            `json:"name,omitempty"`
	OK      bool              `json:"ok,omitempty"`
	Error   string            `json:"error,omitempty"`
	Data    json.RawMessage   `json:"data,omitempty"`
}

// Bridge implements Client over a WebSocket bridge speaking JSON frames.
type Bridge struct {
	log *logger.Logger
	cfg config.BridgeConfig

	conn      *websocket.Conn
	writeMu   sync.Mutex
	connMu    sync.Mutex
	connected bool
	running   bool

	handlers   []EventHandler
	handlersMu sync.RWMutex

	pending   map[string]chan frame
	pendingMu sync.Mutex

	botJID  string
	botName string
	idMu    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a bridge client for the configured URL.
func NewBridge(log *logger.Logger, cfg config.BridgeConfig) (*Bridge, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bridge url is required")
	}
	if cfg.ReconnectSeconds <= 0 {
		cfg.ReconnectSeconds = 2
	}

	return &Bridge{
		log:     log,
		cfg:     cfg,
		pending: make(map[string]chan frame),
	}, nil
}

// Start connects to the bridge and begins the receive loop.
func (b *Bridge) Start(ctx context.Context) error {
	b.log.Info("Starting WhatsApp bridge", zap.String("url", b.cfg.URL))

	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running = true

	if err := b.connect(); err != nil {
		return fmt.Errorf("connecting to bridge: %w", err)
	}

	go b.listen()

	return nil
}

// Stop closes the bridge connection.
func (b *Bridge) Stop(ctx context.Context) error {
	b.log.Info("Stopping WhatsApp bridge")
	b.running = false

	if b.cancel != nil {
		b.cancel()
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			b.log.Warn("Error closing bridge connection", zap.Error(err))
		}
		b.conn = nil
	}
	b.connected = false

	return nil
}

// OnEvent registers an inbound event handler.
func (b *Bridge) OnEvent(handler EventHandler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// BotJID returns the connected account jid reported by the bridge.
func (b *Bridge) BotJID() string {
	b.idMu.RLock()
	defer b.idMu.RUnlock()
	return b.botJID
}

// BotName returns the connected account display name.
func (b *Bridge) BotName() string {
	b.idMu.RLock()
	defer b.idMu.RUnlock()
	return b.botName
}

// SendText sends a text message, optionally quoting and mentioning.
func (b *Bridge) SendText(ctx context.Context, chatID, text string, opts *SendOptions) (message.Key, error) {
	content := map[string]interface{}{"text": text}
	if opts != nil {
		if opts.Quoted != nil {
			content["quoted"] = opts.Quoted
		}
		if len(opts.Mentions) > 0 {
			content["mentions"] = opts.Mentions
		}
	}

	resp, err := b.request(ctx, "send", chatID, content)
	if err != nil {
		return message.Key{}, err
	}

	var key message.Key
	if len(resp) > 0 {
		if err := json.Unmarshal(resp, &key); err != nil {
			b.log.Warn("Unparseable send receipt", zap.Error(err))
		}
	}
	return key, nil
}

// SendReaction reacts to a message.
func (b *Bridge) SendReaction(ctx context.Context, chatID string, key message.Key, emoji string) error {
	_, err := b.request(ctx, "send", chatID, map[string]interface{}{
		"react": map[string]interface{}{"text": emoji, "key": key},
	})
	return err
}

// EditMessage replaces the text of a previously sent message.
func (b *Bridge) EditMessage(ctx context.Context, chatID string, key message.Key, text string) error {
	_, err := b.request(ctx, "send", chatID, map[string]interface{}{
		"text": text,
		"edit": key,
	})
	return err
}

// DeleteMessage revokes a message.
func (b *Bridge) DeleteMessage(ctx context.Context, chatID string, key message.Key) error {
	_, err := b.request(ctx, "send", chatID, map[string]interface{}{
		"delete": key,
	})
	return err
}

// GroupMetadata fetches group metadata through the bridge.
func (b *Bridge) GroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error) {
	resp, err := b.request(ctx, "group_metadata", chatID, nil)
	if err != nil {
		return nil, err
	}

	var meta GroupMetadata
	if err := json.Unmarshal(resp, &meta); err != nil {
		return nil, fmt.Errorf("decoding group metadata: %w", err)
	}
	return &meta, nil
}

// UpdateParticipants applies a participant mutation.
func (b *Bridge) UpdateParticipants(ctx context.Context, chatID string, jids []string, action ParticipantAction) error {
	_, err := b.request(ctx, "participants_update", chatID, map[string]interface{}{
		"participants": jids,
		"action":       action,
	})
	return err
}

// connect establishes the WebSocket connection.
func (b *Bridge) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(b.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dialing bridge: %w", err)
	}

	b.connMu.Lock()
	b.conn = conn
	b.connected = true
	b.connMu.Unlock()

	b.log.Info("Connected to WhatsApp bridge")
	return nil
}

// listen is the receive loop. Inbound events fan out to handlers on fresh
// goroutines so a slow handler never blocks the loop.
func (b *Bridge) listen() {
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		b.connMu.Lock()
		conn := b.conn
		b.connMu.Unlock()

		if conn == nil {
			if !b.running {
				return
			}
			b.log.Warn("Bridge connection lost, reconnecting...")
			time.Sleep(time.Duration(b.cfg.ReconnectSeconds) * time.Second)
			if err := b.connect(); err != nil {
				b.log.Error("Failed to reconnect", zap.Error(err))
			}
			continue
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !b.running {
				return
			}
			b.log.Error("Bridge read error", zap.Error(err))
			b.connMu.Lock()
			b.conn = nil
			b.connected = false
			b.connMu.Unlock()
			continue
		}

		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			b.log.Warn("Unparseable bridge frame", zap.Error(err))
			continue
		}

		switch f.Type {
		case "ready":
			b.idMu.Lock()
			b.botJID = f.JID
			b.botName = f.Name
			b.idMu.Unlock()
			b.log.Info("Bridge session ready", zap.String("jid", f.JID))

		case "message":
			if f.Event == nil {
				continue
			}
			b.handlersMu.RLock()
			handlers := make([]EventHandler, len(b.handlers))
			copy(handlers, b.handlers)
			b.handlersMu.RUnlock()
			for _, h := range handlers {
				go h(f.Event)
			}

		case "response":
			b.deliverResponse(f)
		}
	}
}

// request performs a correlated request/response exchange with the bridge.
func (b *Bridge) request(ctx context.Context, frameType, to string, content interface{}) (json.RawMessage, error) {
	id := uuid.NewString()

	f := frame{Type: frameType, ID: id, To: to}
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("marshaling content: %w", err)
		}
		f.Content = raw
	}

	ch := make(chan frame, 1)
	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}()

	if err := b.write(f); err != nil {
		return nil, err
	}

	timeout := time.NewTimer(requestTimeout)
	defer timeout.Stop()

	select {
	case resp := <-ch:
		if !resp.OK && resp.Error != "" {
			return nil, fmt.Errorf("bridge error: %s", resp.Error)
		}
		return resp.Data, nil
	case <-timeout.C:
		return nil, fmt.Errorf("bridge request %s timed out", frameType)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// deliverResponse routes a response frame to its waiting request.
func (b *Bridge) deliverResponse(f frame) {
	b.pendingMu.Lock()
	ch, ok := b.pending[f.ID]
	b.pendingMu.Unlock()

	if !ok {
		b.log.Debug("Response for unknown request", zap.String("id", f.ID))
		return
	}

	select {
	case ch <- f:
	default:
	}
}

// write sends one frame, serialized by the write mutex.
func (b *Bridge) write(f frame) error {
	b.connMu.Lock()
	conn := b.conn
	b.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("bridge connection not established")
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
