package discovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cuemby/podlease/pkg/relay"
	"github.com/cuemby/podlease/pkg/security"
	"github.com/cuemby/podlease/pkg/types"
)

func publishOffer(t *testing.T, fabric relay.Fabric, id *security.Identity, offer types.ProviderOffer) {
	t.Helper()
	content, err := json.Marshal(offer)
	if err != nil {
		t.Fatalf("marshal offer: %v", err)
	}
	ev := relay.NewEvent(id, relay.KindOffer, nil, string(content), time.Now().Unix())
	if err := fabric.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish(offer) error = %v", err)
	}
}

func publishHeartbeat(t *testing.T, fabric relay.Fabric, id *security.Identity, hb types.Heartbeat) {
	t.Helper()
	content, err := json.Marshal(hb)
	if err != nil {
		t.Fatalf("marshal heartbeat: %v", err)
	}
	ev := relay.NewEvent(id, relay.KindHeartbeat, nil, string(content), time.Now().Unix())
	if err := fabric.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish(heartbeat) error = %v", err)
	}
}

func TestQueryFoldsOfferAndHeartbeat(t *testing.T) {
	fabric := relay.NewMemoryFabric()
	provider, err := security.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}

	c := New(nil, fabric, WithQueryWindow(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan []Record, 1)
	go func() {
		records, err := c.Query(ctx)
		if err != nil {
			t.Errorf("Query() error = %v", err)
		}
		done <- records
	}()

	// Give Query a moment to subscribe before publishing, since
	// MemoryFabric drops events published before a subscriber exists.
	time.Sleep(10 * time.Millisecond)

	publishOffer(t, fabric, provider, types.ProviderOffer{
		ProviderNpub:       provider.Npub(),
		Hostname:           "box.example.com",
		Capabilities:       []string{types.CapabilityContainer},
		Specs:              []types.PodSpec{{ID: "basic", RateMsatsPerSec: 50}},
		UptimePercent:      99.5,
		TotalJobsCompleted: 10,
	})
	publishHeartbeat(t, fabric, provider, types.Heartbeat{
		ProviderNpub:      provider.Npub(),
		Timestamp:         time.Now().Unix(),
		ActiveWorkloads:   1,
		AvailableCapacity: types.AvailableCapacity{CPUAvailable: 2000, MemoryMBAvailable: 4096},
	})

	records := <-done
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	r := records[0]
	if !r.Online {
		t.Error("expected record to be online")
	}
	if r.AvailableMemoryMB() != 4096 {
		t.Errorf("AvailableMemoryMB() = %d, want 4096", r.AvailableMemoryMB())
	}
}

func TestQueryMarksOfflineWithoutHeartbeat(t *testing.T) {
	fabric := relay.NewMemoryFabric()
	provider, err := security.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}

	c := New(nil, fabric, WithQueryWindow(30*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan []Record, 1)
	go func() {
		records, _ := c.Query(ctx)
		done <- records
	}()
	time.Sleep(10 * time.Millisecond)

	publishOffer(t, fabric, provider, types.ProviderOffer{ProviderNpub: provider.Npub()})

	records := <-done
	if len(records) != 1 || records[0].Online {
		t.Errorf("expected exactly one offline record, got %+v", records)
	}
}

func TestSendRoundTrip(t *testing.T) {
	fabric := relay.NewMemoryFabric()
	client, err := security.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	provider, err := security.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}

	c := New(client, fabric)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providerDMs, err := fabric.RecvDM(ctx, provider)
	if err != nil {
		t.Fatalf("RecvDM() error = %v", err)
	}

	go func() {
		dm := <-providerDMs
		resp := types.StatusResponse{WorkloadID: 1, Status: types.LeaseStatusRunning}
		data, _ := json.Marshal(resp)
		fabric.SendDM(ctx, provider, dm.SenderNpub, data)
	}()

	raw, err := c.Send(ctx, provider.Npub(), types.StatusRequest{PodID: "1"}, time.Second)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var resp types.StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.WorkloadID != 1 || resp.Status != types.LeaseStatusRunning {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSendTimesOutWithoutReply(t *testing.T) {
	fabric := relay.NewMemoryFabric()
	client, err := security.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	provider, err := security.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}

	c := New(client, fabric)
	_, err = c.Send(context.Background(), provider.Npub(), types.StatusRequest{PodID: "1"}, 30*time.Millisecond)
	if err == nil {
		t.Error("expected a timeout error, got nil")
	}
}

func TestResolveRequiresMinimumPrefixLength(t *testing.T) {
	records := []Record{{Offer: types.ProviderOffer{ProviderNpub: "abcdef1234567890"}}}
	if _, err := Resolve(records, "abc"); err == nil {
		t.Error("expected error for short prefix")
	}
	if _, err := Resolve(records, "abcdef12"); err != nil {
		t.Errorf("Resolve() error = %v", err)
	}
	if _, err := Resolve(records, "zzzzzzzz"); err == nil {
		t.Error("expected error for no match")
	}
}

func TestApplyAndSortFilters(t *testing.T) {
	records := []Record{
		{Offer: types.ProviderOffer{ProviderNpub: "a", Specs: []types.PodSpec{{RateMsatsPerSec: 100}}, UptimePercent: 90, Capabilities: []string{types.CapabilityContainer}}},
		{Offer: types.ProviderOffer{ProviderNpub: "b", Specs: []types.PodSpec{{RateMsatsPerSec: 10}}, UptimePercent: 99, Capabilities: []string{types.CapabilityContainer, types.CapabilityVM}}},
	}

	filtered := Apply(records, Filter{Capability: types.CapabilityVM})
	if len(filtered) != 1 || filtered[0].Offer.ProviderNpub != "b" {
		t.Errorf("Apply(capability) = %+v, want only provider b", filtered)
	}

	Sort(records, SortPrice)
	if records[0].Offer.ProviderNpub != "b" {
		t.Errorf("Sort(price) expected cheapest first, got %+v", records)
	}
}
