package factorysvc

import (
	"testing"

	"fortigate-policy-flattener/internal/model"
)

func TestServicesIncludeCoreObjects(t *testing.T) {
	// This test pins the factory objects policies most commonly reference.
	svcs := Services()
	tests := map[string]struct {
		token string
		class model.ProtoClass
	}{
		"ALL":      {"ip;-", model.ClassIP},
		"HTTP":     {"6/eq/any/eq/80;0/0", model.ClassTCPUDPSCTP},
		"PING":     {"1/8/any;-", model.ClassICMP},
		"ALL_ICMP": {"1/any/any;-", model.ClassICMP},
	}
	for name, want := range tests {
		ts, ok := svcs[name]
		if !ok {
			t.Fatalf("expected factory service %q to be present", name)
		}
		if len(ts.Values) == 0 || ts.Values[0] != want.token {
			t.Errorf("%s: expected first token %q, got %v", name, want.token, ts.Values)
		}
		if ts.Classes&want.class == 0 {
			t.Errorf("%s: expected class %v in %v", name, want.class, ts.Classes)
		}
	}
}

func TestGetReturnsIndependentCopies(t *testing.T) {
	a, ok := Get("DNS")
	if !ok {
		t.Fatalf("expected DNS to be present")
	}
	if len(a.Values) != 2 {
		t.Fatalf("expected DNS to carry tcp and udp tokens, got %v", a.Values)
	}
	a.Add("mutation")

	b, _ := Get("DNS")
	if len(b.Values) != 2 {
		t.Fatalf("mutating a returned copy must not affect the registry")
	}
}

func TestGetUnknownService(t *testing.T) {
	if _, ok := Get("NO_SUCH_SERVICE"); ok {
		t.Fatalf("unknown names must not resolve")
	}
}
