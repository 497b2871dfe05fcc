package runner

import (
	"context"
	"strings"
	"testing"
	"time"
)

const testConfig = `config firewall address
edit "NET"
set subnet 10.0.0.0/8
next
end
config firewall service custom
edit "ALLIP"
set protocol IP
next
end
config firewall policy
edit 1
set srcintf "p1"
set dstintf "p2"
set srcaddr "NET"
set dstaddr "NET"
set service "ALLIP"
set action accept
next
end
`

func await(t *testing.T, r *Runner) Response {
	t.Helper()
	select {
	case resp, ok := <-r.Responses():
		if !ok {
			t.Fatalf("response channel closed unexpectedly")
		}
		return resp
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a response")
		return nil
	}
}

func TestRunnerPipelineStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(ctx)

	r.Requests() <- MakeList{Config: testConfig}
	made, ok := await(t, r).(MadeList)
	if !ok {
		t.Fatalf("expected MadeList response")
	}
	if !strings.Contains(made.AddrList, ",address4,NET,10.0.0.0/8,") {
		t.Errorf("address listing missing NET: %q", made.AddrList)
	}
	if !strings.Contains(made.SvcList, ",service_custom,ALLIP,ip;-,") {
		t.Errorf("service listing missing ALLIP: %q", made.SvcList)
	}

	r.Requests() <- Normalize{}
	normalized, ok := await(t, r).(Normalized)
	if !ok {
		t.Fatalf("expected Normalized response")
	}
	if !strings.Contains(normalized.Text, ",NET,") {
		t.Errorf("normalized rows must carry names: %q", normalized.Text)
	}

	r.Requests() <- Flatten{Addresses: true, Services: true}
	flattened, ok := await(t, r).(Flattened)
	if !ok {
		t.Fatalf("expected Flattened response")
	}
	if !strings.Contains(flattened.Text, ",10.0.0.0/8,") {
		t.Errorf("flattened rows must carry leaf values: %q", flattened.Text)
	}

	r.Requests() <- Lookup{List: "10.0.0.1,"}
	looked, ok := await(t, r).(LookedUp)
	if !ok {
		t.Fatalf("expected LookedUp response")
	}
	if !strings.HasPrefix(looked.All, "from_10.0.0.1/32,") {
		t.Errorf("lookup must report the matching row: %q", looked.All)
	}

	close(r.Requests())
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("runner did not stop after the request channel closed")
	}
}

func TestRunnerLookupBeforeFlattenSeesEmptyList(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(ctx)

	r.Requests() <- MakeList{Config: testConfig}
	await(t, r)

	// Out-of-order invocation runs against whatever state exists.
	r.Requests() <- Lookup{List: "10.0.0.1,"}
	looked, ok := await(t, r).(LookedUp)
	if !ok {
		t.Fatalf("expected LookedUp response")
	}
	if looked.All != "" {
		t.Errorf("lookup before flatten must see an empty list, got %q", looked.All)
	}
	close(r.Requests())
}

func TestRunnerCancellationStopsGoroutine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx)
	cancel()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("runner did not observe cancellation")
	}
}

func TestRunnerFreshParseReplacesStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(ctx)

	r.Requests() <- MakeList{Config: testConfig}
	await(t, r)
	r.Requests() <- Flatten{Addresses: true}
	await(t, r)

	// A second parse replaces the store wholesale and drops derived state.
	r.Requests() <- MakeList{Config: "config firewall address\nedit \"OTHER\"\nset subnet 172.16.0.0/12\nnext\nend\n"}
	made := await(t, r).(MadeList)
	if strings.Contains(made.AddrList, "NET") {
		t.Errorf("old objects must not survive a new parse: %q", made.AddrList)
	}

	r.Requests() <- Lookup{List: "10.0.0.1,"}
	looked := await(t, r).(LookedUp)
	if looked.All != "" {
		t.Errorf("flattened list must reset on a new parse, got %q", looked.All)
	}
	close(r.Requests())
}
