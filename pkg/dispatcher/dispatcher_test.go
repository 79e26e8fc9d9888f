package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/podlease/pkg/backend"
	"github.com/cuemby/podlease/pkg/lease"
	"github.com/cuemby/podlease/pkg/network"
	"github.com/cuemby/podlease/pkg/payment"
	"github.com/cuemby/podlease/pkg/relay"
	"github.com/cuemby/podlease/pkg/security"
	"github.com/cuemby/podlease/pkg/storage"
	"github.com/cuemby/podlease/pkg/types"
)

type fakeWallet struct {
	mu        sync.Mutex
	tokens    map[string]*payment.DecodedToken
	received  map[string]bool
	failMints map[string]bool
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		tokens:   make(map[string]*payment.DecodedToken),
		received: make(map[string]bool),
	}
}

func (w *fakeWallet) addToken(token string, amount int64, unit, mint string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens[token] = &payment.DecodedToken{MintURL: mint, Unit: unit, Amount: amount}
}

func (w *fakeWallet) Decode(token string) (*payment.DecodedToken, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tokens[token]
	if !ok {
		return nil, fmt.Errorf("unknown token")
	}
	return t, nil
}

func (w *fakeWallet) Receive(token string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.received[token] = true
	return nil
}

type fakeBackend struct {
	mu        sync.Mutex
	nextID    int64
	created   map[int64]backend.ContainerConfig
	deleted   map[int64]bool
	createErr error
}

func newFakeBackend(startID int64) *fakeBackend {
	return &fakeBackend{nextID: startID, created: make(map[int64]backend.ContainerConfig), deleted: make(map[int64]bool)}
}

func (b *fakeBackend) FindAvailableID(ctx context.Context, lo, hi int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	return id, nil
}
func (b *fakeBackend) CreateContainer(ctx context.Context, cfg backend.ContainerConfig) error {
	if b.createErr != nil {
		return b.createErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created[cfg.ID] = cfg
	return nil
}
func (b *fakeBackend) StartContainer(ctx context.Context, id int64) error { return nil }
func (b *fakeBackend) StopContainer(ctx context.Context, id int64) error { return nil }
func (b *fakeBackend) DeleteContainer(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted[id] = true
	return nil
}
func (b *fakeBackend) GetNodeStatus(ctx context.Context) (backend.NodeStatus, error) {
	return backend.NodeStatus{}, nil
}
func (b *fakeBackend) GetContainerIP(ctx context.Context, id int64) (string, error) {
	return "127.0.0.1", nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeWallet, *security.Identity, *security.Identity) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	leases, err := lease.NewManager(store)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	wallet := newFakeWallet()
	decoder := payment.NewDecoder(wallet, store, []string{"https://mint.example.com"})

	providerID, err := security.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	clientID, err := security.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}

	fabric := relay.NewMemoryFabric()
	be := newFakeBackend(1000)
	alloc := network.NewAllocator(30000, 30099)
	alloc.Release(30000) // no-op, keeps allocator import exercised identically to provider wiring

	cfg := Config{
		Specs: []types.PodSpec{
			{ID: "basic", Name: "Basic", Description: "basic tier", CPUMillicores: 1000, MemoryMB: 1024, RateMsatsPerSec: 50},
		},
		MinimumDurationSeconds: 60,
		Hostname:               "provider.example.com",
		Instructions:           []string{"ssh user@host -p port"},
		IDRangeLo:              1000,
		IDRangeHi:              1099,
	}

	d := New(providerID, fabric, leases, be, alloc, decoder, cfg)
	return d, wallet, providerID, clientID
}

func TestHandleSpawnHappyPath(t *testing.T) {
	d, wallet, provider, client := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies, err := d.fabric.RecvDM(ctx, client)
	if err != nil {
		t.Fatalf("RecvDM() error = %v", err)
	}

	wallet.addToken("tok-1", 6000, "msat", "https://mint.example.com")

	req := types.SpawnRequest{
		CashuToken:  "tok-1",
		PodImage:    "ubuntu",
		SSHUsername: "root",
		SSHPassword: "hunter2",
	}
	data, _ := json.Marshal(req)

	provDMs := dmsFor(d, ctx, t, provider)
	if err := d.fabric.SendDM(ctx, client, provider.Npub(), data); err != nil {
		t.Fatalf("SendDM() error = %v", err)
	}
	d.handle(ctx, mustRecv(t, ctx, provDMs))

	select {
	case dm := <-replies:
		var access types.AccessDetails
		if err := json.Unmarshal(dm.Plaintext, &access); err != nil {
			t.Fatalf("unmarshal reply: %v", err)
		}
		if access.CPUMillicores != 1000 || access.MemoryMB != 1024 {
			t.Errorf("unexpected access details: %+v", access)
		}
		if access.NodePort < 30000 || access.NodePort > 30099 {
			t.Errorf("NodePort = %d, out of range", access.NodePort)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for AccessDetails")
	}

	if d.leases.Count() != 1 {
		t.Errorf("lease count = %d, want 1", d.leases.Count())
	}
}

// dmsFor and mustRecv exist purely to let this single-process test drive
// handle() directly against a DM the dispatcher's own provider identity
// receives, without spinning up Run()'s goroutine loop.
func dmsFor(d *Dispatcher, ctx context.Context, t *testing.T, provider *security.Identity) <-chan relay.DirectMessage {
	t.Helper()
	ch, err := d.fabric.RecvDM(ctx, provider)
	if err != nil {
		t.Fatalf("RecvDM() error = %v", err)
	}
	return ch
}

func mustRecv(t *testing.T, ctx context.Context, ch <-chan relay.DirectMessage) relay.DirectMessage {
	t.Helper()
	select {
	case dm := <-ch:
		return dm
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound dm")
		return relay.DirectMessage{}
	}
}

func TestHandleSpawnInsufficientPayment(t *testing.T) {
	d, wallet, provider, client := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies, _ := d.fabric.RecvDM(ctx, client)
	provDMs := dmsFor(d, ctx, t, provider)

	wallet.addToken("tok-2", 2999, "msat", "https://mint.example.com")
	req := types.SpawnRequest{CashuToken: "tok-2", PodImage: "ubuntu", SSHUsername: "root", SSHPassword: "x"}
	data, _ := json.Marshal(req)
	d.fabric.SendDM(ctx, client, provider.Npub(), data)

	d.handle(ctx, mustRecv(t, ctx, provDMs))

	select {
	case dm := <-replies:
		var errResp types.ErrorResponse
		json.Unmarshal(dm.Plaintext, &errResp)
		if errResp.ErrorType != types.ErrInsufficientPayment {
			t.Errorf("ErrorType = %v, want %v", errResp.ErrorType, types.ErrInsufficientPayment)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error response")
	}

	if d.leases.Count() != 0 {
		t.Errorf("lease count = %d, want 0 after insufficient payment", d.leases.Count())
	}
}

func TestHandleSpawnTokenReplay(t *testing.T) {
	d, wallet, provider, client := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies, _ := d.fabric.RecvDM(ctx, client)
	provDMs := dmsFor(d, ctx, t, provider)

	wallet.addToken("tok-3", 6000, "msat", "https://mint.example.com")
	req := types.SpawnRequest{CashuToken: "tok-3", PodImage: "ubuntu", SSHUsername: "root", SSHPassword: "x"}
	data, _ := json.Marshal(req)

	d.fabric.SendDM(ctx, client, provider.Npub(), data)
	d.handle(ctx, mustRecv(t, ctx, provDMs))
	<-replies // first, successful reply

	d.fabric.SendDM(ctx, client, provider.Npub(), data)
	d.handle(ctx, mustRecv(t, ctx, provDMs))

	select {
	case dm := <-replies:
		var errResp types.ErrorResponse
		json.Unmarshal(dm.Plaintext, &errResp)
		if errResp.ErrorType != types.ErrTokenAlreadyUsed {
			t.Errorf("ErrorType = %v, want %v", errResp.ErrorType, types.ErrTokenAlreadyUsed)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replay error")
	}

	if d.leases.Count() != 1 {
		t.Errorf("lease count = %d, want 1 after replay", d.leases.Count())
	}
}

func TestParseRequestVariants(t *testing.T) {
	spawn := `{"cashu_token":"t","pod_image":"ubuntu","ssh_username":"root","ssh_password":"x"}`
	if _, err := parseRequest([]byte(spawn)); err != nil {
		t.Errorf("parseRequest(spawn) error = %v", err)
	}

	topup := `{"pod_npub":"1000","cashu_token":"t"}`
	if _, err := parseRequest([]byte(topup)); err != nil {
		t.Errorf("parseRequest(topup) error = %v", err)
	}

	status := `{"pod_id":"1000"}`
	if _, err := parseRequest([]byte(status)); err != nil {
		t.Errorf("parseRequest(status) error = %v", err)
	}

	if _, err := parseRequest([]byte(`{"garbage":true}`)); err == nil {
		t.Error("parseRequest(unknown shape) expected error")
	}
}
