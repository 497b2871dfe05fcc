package model

import (
	"strings"
	"testing"
)

func TestTokenSetSuppressesDuplicatesPreservingOrder(t *testing.T) {
	ts := &TokenSet{}
	ts.AddAll([]string{"b", "a", "b", "c", "a"})
	got := strings.Join(ts.Values, " ")
	if got != "b a c" {
		t.Fatalf("expected first-insertion order 'b a c', got %q", got)
	}
}

func TestTokenSetCloneIsIndependent(t *testing.T) {
	ts := &TokenSet{Comment: "x", Classes: ClassICMP}
	ts.Add("1/any/any;-")
	clone := ts.Clone()
	clone.Add("6/eq/any/eq/80;0/0")
	if len(ts.Values) != 1 {
		t.Fatalf("clone mutation leaked into original: %v", ts.Values)
	}
	if clone.Comment != "x" || clone.Classes != ClassICMP {
		t.Fatalf("clone lost comment or classes")
	}
}

func TestClassifyToken(t *testing.T) {
	tests := []struct {
		token string
		want  ProtoClass
	}{
		{"ip;-", ClassIP},
		{"47;-", ClassIP},
		{"1/any/any;-", ClassICMP},
		{"58/128/any;-", ClassICMP},
		{"6/eq/any/eq/80;0/0", ClassTCPUDPSCTP},
		{"17/eq/any/eq/53;0/0", ClassTCPUDPSCTP},
		{"132/eq/any/eq/2905;0/0", ClassTCPUDPSCTP},
		{"HTTP-PROXY;HTTP-PROXY", ClassUnsupported},
		{"undefined;-", ClassUnsupported},
	}
	for _, tt := range tests {
		if got := ClassifyToken(tt.token); got != tt.want {
			t.Errorf("ClassifyToken(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestTablePreservesInsertionOrder(t *testing.T) {
	table := NewTable()
	table.Put("z", &TokenSet{})
	table.Put("a", &TokenSet{})
	table.Put("z", &TokenSet{}) // re-edit keeps position
	names := table.Names()
	if len(names) != 2 || names[0] != "z" || names[1] != "a" {
		t.Fatalf("unexpected name order: %v", names)
	}
}

func TestRowCSVHasTwentyTwoColumns(t *testing.T) {
	row := Row{
		Dom: "root", SrcIntf: "port1", DstIntf: "port2", Mode: Mode4to4,
		ID: "7", Name: "pol", Line: 3, Action: "accept", Prot: "HTTP",
		SrcAddr: "a", SrcPort: "-/-", DstAddr: "b", DstPort: "-/-",
		SDAddr: "-", ITpCd: "-/-", SrcNeg: "false", DstNeg: "false",
		SvcNeg: "false", Status: "enable", Log: "-", Schedule: "always",
		Comment: "c",
	}
	cols := strings.Split(row.CSV(), ",")
	if len(cols) != 22 {
		t.Fatalf("expected 22 columns, got %d: %v", len(cols), cols)
	}
	if cols[3] != "4to4" || cols[6] != "3" || cols[19] != "-" {
		t.Fatalf("columns out of position: %v", cols)
	}
}

func TestAppendPolicyNumbersPoliciesPerMode(t *testing.T) {
	dom := NewDomain("root")
	dom.AppendPolicy(Mode4to4, []Row{{ID: "1"}, {ID: "1"}})
	dom.AppendPolicy(Mode4to4, []Row{{ID: "2"}})
	dom.AppendPolicy(Mode6to6, []Row{{ID: "9"}})

	rows := dom.Policies[Mode4to4]
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Line != 1 || rows[1].Line != 1 || rows[2].Line != 2 {
		t.Fatalf("unexpected line numbers: %d %d %d", rows[0].Line, rows[1].Line, rows[2].Line)
	}
	if dom.Policies[Mode6to6][0].Line != 1 {
		t.Fatalf("line numbering must be per type-mode")
	}
	if rows[0].Dom != "root" || rows[0].Mode != Mode4to4 {
		t.Fatalf("rows must be stamped with domain and mode")
	}
}

func TestStoreDomainOrderAndLifecycle(t *testing.T) {
	store := NewStore()
	store.Domain("")
	store.Domain("vd1")
	store.Domain("") // existing
	names := store.Names()
	if len(names) != 2 || names[0] != "" || names[1] != "vd1" {
		t.Fatalf("unexpected domain order: %v", names)
	}
	if _, ok := store.Get("vd2"); ok {
		t.Fatalf("Get must not create domains")
	}
}
