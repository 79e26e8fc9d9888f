package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/podlease/pkg/security"
)

// DirectMessage is a decrypted DM delivered to a Fabric subscriber,
// alongside the identifier of whoever sent it.
type DirectMessage struct {
	SenderNpub string
	Plaintext  []byte
}

// Fabric is the relay transport podlease needs: publish signed public
// events, subscribe to a kind, and send/receive encrypted DMs. The
// relay network itself is an external collaborator; only this small
// surface is required of it.
type Fabric interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, kinds []Kind) (<-chan Event, error)
	SendDM(ctx context.Context, sender *security.Identity, recipientNpub string, plaintext []byte) error
	RecvDM(ctx context.Context, self *security.Identity) (<-chan DirectMessage, error)
	Close() error
}

// dmSubscriber pairs a recipient's Identity (needed to actually open
// ciphertexts addressed to it) with its delivery channel.
type dmSubscriber struct {
	identity *security.Identity
	ch       chan DirectMessage
}

// MemoryFabric is an in-process pub/sub fabric: a subscriber channel
// set behind a mutex, with publish fanning out non-blocking to every
// matching subscriber.
// Used by tests and single-process demos where Provider and Client
// share an address space. DMs are genuinely sealed and opened through
// Cipher, not shortcut across the in-process boundary.
type MemoryFabric struct {
	cipher Cipher

	mu          sync.RWMutex
	subscribers map[chan Event]map[Kind]bool
	dmSubs      map[string]*dmSubscriber // recipient npub -> subscriber
}

// NewMemoryFabric builds an empty MemoryFabric.
func NewMemoryFabric() *MemoryFabric {
	return &MemoryFabric{
		cipher:      NaClCipher{},
		subscribers: make(map[chan Event]map[Kind]bool),
		dmSubs:      make(map[string]*dmSubscriber),
	}
}

// Publish fans event out to every subscriber whose filter includes its
// kind. Non-blocking: a full subscriber buffer drops the event rather
// than stalling the publisher, matching the Broker's broadcast policy.
func (f *MemoryFabric) Publish(ctx context.Context, event Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for ch, kinds := range f.subscribers {
		if !kinds[event.Kind] {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that receives every future Publish call
// matching one of kinds. The channel is closed when ctx is done.
func (f *MemoryFabric) Subscribe(ctx context.Context, kinds []Kind) (<-chan Event, error) {
	ch := make(chan Event, 64)

	kindSet := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	f.mu.Lock()
	f.subscribers[ch] = kindSet
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subscribers, ch)
		f.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// SendDM seals plaintext to recipientNpub and, if the recipient is
// currently registered via RecvDM, opens it again with that recipient's
// own Identity before delivering it — exercising the real encrypt/
// decrypt round trip rather than handing the plaintext across directly.
func (f *MemoryFabric) SendDM(ctx context.Context, sender *security.Identity, recipientNpub string, plaintext []byte) error {
	ciphertext, err := f.cipher.Encrypt(sender, recipientNpub, plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt dm: %w", err)
	}

	f.mu.RLock()
	sub, ok := f.dmSubs[recipientNpub]
	f.mu.RUnlock()
	if !ok {
		return nil // recipient not listening; fire-and-forget like relay publish
	}

	opened, err := f.cipher.Decrypt(sub.identity, sender.Npub(), ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt dm for delivery: %w", err)
	}

	select {
	case sub.ch <- DirectMessage{SenderNpub: sender.Npub(), Plaintext: opened}:
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

// RecvDM registers self to receive DMs addressed to its npub.
func (f *MemoryFabric) RecvDM(ctx context.Context, self *security.Identity) (<-chan DirectMessage, error) {
	ch := make(chan DirectMessage, 64)

	f.mu.Lock()
	f.dmSubs[self.Npub()] = &dmSubscriber{identity: self, ch: ch}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.dmSubs, self.Npub())
		f.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Close releases all subscriptions.
func (f *MemoryFabric) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = make(map[chan Event]map[Kind]bool)
	for _, sub := range f.dmSubs {
		close(sub.ch)
	}
	f.dmSubs = make(map[string]*dmSubscriber)
	return nil
}
