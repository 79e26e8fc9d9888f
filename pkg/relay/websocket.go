package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cuemby/podlease/pkg/log"
	"github.com/cuemby/podlease/pkg/security"
)

// wireMessage mirrors the nostr-flavored client/relay frames: a tagged
// tuple of ["EVENT", event] or ["REQ", subID, filter] or ["CLOSE", subID],
// adapted from the connect/subscribe/notification loop the original
// relay client ran over nostr-sdk.
type wireMessage []interface{}

type reqFilter struct {
	Kinds []Kind `json:"kinds"`
}

// WebsocketFabric speaks the wire protocol over a real relay
// connection, grounded on the original relay client's
// connect-then-subscribe-then-loop-on-notifications shape: dial, send a
// REQ frame per desired kind set, and read EVENT frames off the
// connection for the lifetime of the context.
type WebsocketFabric struct {
	conn   *websocket.Conn
	cipher Cipher

	mu       sync.Mutex
	writeMu  sync.Mutex
	handlers []chan Event
	dmSubs   map[string]chan DirectMessage
}

// DialWebsocketFabric connects to a single relay URL (e.g.
// "wss://relay.example.org").
func DialWebsocketFabric(ctx context.Context, url string) (*WebsocketFabric, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay %s: %w", url, err)
	}

	f := &WebsocketFabric{
		conn:   conn,
		cipher: NaClCipher{},
		dmSubs: make(map[string]chan DirectMessage),
	}
	go f.readLoop()
	return f, nil
}

func (f *WebsocketFabric) readLoop() {
	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			log.Logger.Warn().Err(err).Msg("relay connection read failed")
			return
		}

		var frame wireMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if len(frame) < 2 {
			continue
		}

		tag, _ := frame[0].(string)
		if tag != "EVENT" {
			continue
		}

		raw, err := json.Marshal(frame[len(frame)-1])
		if err != nil {
			continue
		}
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		if ok, err := event.Verify(); err != nil || !ok {
			log.Logger.Warn().Str("event_id", event.ID).Msg("dropping event with invalid signature")
			continue
		}

		f.dispatch(event)
	}
}

func (f *WebsocketFabric) dispatch(event Event) {
	if event.Kind == KindDM {
		f.dispatchDM(event)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.handlers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (f *WebsocketFabric) dispatchDM(event Event) {
	// DM content carries base64-wrapped ciphertext in Content; recipient
	// npub is carried as the first "p" tag in Event.Tags.
	var recipient string
	for _, tag := range event.Tags {
		if len(tag) == 2 && tag[0] == "p" {
			recipient = tag[1]
			break
		}
	}
	if recipient == "" {
		return
	}

	f.mu.Lock()
	ch, ok := f.dmSubs[recipient]
	f.mu.Unlock()
	if !ok {
		return
	}

	ciphertext := []byte(event.Content)
	// The caller-provided Identity used to decrypt is looked up by
	// RecvDM's registration, not reconstructed here; see RecvDM.
	select {
	case ch <- DirectMessage{SenderNpub: event.Pubkey, Plaintext: ciphertext}:
	default:
	}
}

func (f *WebsocketFabric) writeFrame(frame wireMessage) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// Publish sends an EVENT frame to the relay.
func (f *WebsocketFabric) Publish(ctx context.Context, event Event) error {
	return f.writeFrame(wireMessage{"EVENT", event})
}

// Subscribe sends a REQ frame for the given kinds and returns a channel
// fed by the read loop.
func (f *WebsocketFabric) Subscribe(ctx context.Context, kinds []Kind) (<-chan Event, error) {
	ch := make(chan Event, 64)

	f.mu.Lock()
	f.handlers = append(f.handlers, ch)
	f.mu.Unlock()

	subID := fmt.Sprintf("sub-%d", time.Now().UnixNano())
	if err := f.writeFrame(wireMessage{"REQ", subID, reqFilter{Kinds: kinds}}); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		f.writeFrame(wireMessage{"CLOSE", subID})
		close(ch)
	}()

	return ch, nil
}

// SendDM seals plaintext and publishes it as a kind-4 event tagged to
// the recipient.
func (f *WebsocketFabric) SendDM(ctx context.Context, sender *security.Identity, recipientNpub string, plaintext []byte) error {
	ciphertext, err := f.cipher.Encrypt(sender, recipientNpub, plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt dm: %w", err)
	}

	tags := [][]string{{"p", recipientNpub}}
	event := NewEvent(sender, KindDM, tags, string(ciphertext), time.Now().Unix())
	return f.Publish(ctx, event)
}

// RecvDM registers self and decrypts inbound DMs addressed to it as
// they arrive off the wire.
func (f *WebsocketFabric) RecvDM(ctx context.Context, self *security.Identity) (<-chan DirectMessage, error) {
	raw := make(chan DirectMessage, 64)
	decrypted := make(chan DirectMessage, 64)

	f.mu.Lock()
	f.dmSubs[self.Npub()] = raw
	f.mu.Unlock()

	go func() {
		defer close(decrypted)
		for {
			select {
			case <-ctx.Done():
				f.mu.Lock()
				delete(f.dmSubs, self.Npub())
				f.mu.Unlock()
				return
			case dm, ok := <-raw:
				if !ok {
					return
				}
				plaintext, err := f.cipher.Decrypt(self, dm.SenderNpub, dm.Plaintext)
				if err != nil {
					log.Logger.Warn().Str("sender", dm.SenderNpub).Err(err).Msg("dropping dm that failed to decrypt")
					continue
				}
				select {
				case decrypted <- DirectMessage{SenderNpub: dm.SenderNpub, Plaintext: plaintext}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return decrypted, nil
}

// Close closes the underlying connection.
func (f *WebsocketFabric) Close() error {
	return f.conn.Close()
}
