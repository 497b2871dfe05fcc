// Package model holds the per-VDOM object store and the normalized policy
// row the pipeline stages exchange.
package model

import (
	"strconv"
	"strings"
)

// TypeMode identifies the address families of a policy list and whether the
// list is multicast.
type TypeMode string

const (
	Mode4to4  TypeMode = "4to4"
	Mode6to6  TypeMode = "6to6"
	Mode6to4  TypeMode = "6to4"
	Mode4to6  TypeMode = "4to6"
	Mode4to4m TypeMode = "4to4m"
	Mode6to6m TypeMode = "6to6m"
)

// ModeOrder is the emission order for policy lists.
var ModeOrder = []TypeMode{Mode4to4, Mode6to6, Mode6to4, Mode4to6, Mode4to4m, Mode6to6m}

// Multicast reports whether the mode is one of the multicast policy lists.
func (m TypeMode) Multicast() bool {
	return m == Mode4to4m || m == Mode6to6m
}

// ProtoClass is the protocol-class mask attached to service values.
type ProtoClass uint8

const (
	ClassIP ProtoClass = 1 << iota
	ClassICMP
	ClassTCPUDPSCTP
	ClassUnsupported
)

// Undefined is the inert token malformed values normalize to.
const Undefined = "undefined"

// Placeholder fills columns that do not apply to a row.
const Placeholder = "-"

// ClassifyToken derives the protocol class of a canonical service token
// from its leading protocol field.
func ClassifyToken(token string) ProtoClass {
	lead := token
	if i := strings.IndexAny(lead, "/;"); i >= 0 {
		lead = lead[:i]
	}
	switch lead {
	case "1", "58":
		return ClassICMP
	case "6", "17", "132":
		return ClassTCPUDPSCTP
	case "ip":
		return ClassIP
	}
	if _, err := strconv.Atoi(lead); err == nil && lead != "" {
		return ClassIP
	}
	return ClassUnsupported
}

// TokenSet is an ordered, duplicate-free sequence of canonical tokens with
// its comment and accumulated protocol-class mask.
type TokenSet struct {
	Values  []string
	Comment string
	Classes ProtoClass

	seen map[string]struct{}
}

// Add appends a token unless it is already present.
func (t *TokenSet) Add(v string) {
	if t.seen == nil {
		t.seen = make(map[string]struct{}, 4)
		for _, existing := range t.Values {
			t.seen[existing] = struct{}{}
		}
	}
	if _, dup := t.seen[v]; dup {
		return
	}
	t.seen[v] = struct{}{}
	t.Values = append(t.Values, v)
}

// AddAll appends each token in order, suppressing duplicates.
func (t *TokenSet) AddAll(vs []string) {
	for _, v := range vs {
		t.Add(v)
	}
}

// Clone returns an independent copy of the set.
func (t *TokenSet) Clone() *TokenSet {
	c := &TokenSet{Comment: t.Comment, Classes: t.Classes}
	c.AddAll(t.Values)
	return c
}

// Table is a name-keyed collection of token sets preserving insertion order.
type Table struct {
	names   []string
	entries map[string]*TokenSet
}

func NewTable() *Table {
	return &Table{entries: make(map[string]*TokenSet)}
}

// Put installs the set under name. Re-editing an existing name replaces the
// stored set without disturbing its position.
func (t *Table) Put(name string, ts *TokenSet) {
	if _, exists := t.entries[name]; !exists {
		t.names = append(t.names, name)
	}
	t.entries[name] = ts
}

func (t *Table) Get(name string) (*TokenSet, bool) {
	ts, ok := t.entries[name]
	return ts, ok
}

// Names returns the stored names in insertion order.
func (t *Table) Names() []string {
	return t.names
}

func (t *Table) Len() int {
	return len(t.names)
}

// Row is one normalized policy row: twenty-two comma-separated columns.
type Row struct {
	Dom      string
	SrcIntf  string
	DstIntf  string
	Mode     TypeMode
	ID       string
	Name     string
	Line     int
	Action   string
	Prot     string
	SrcAddr  string
	SrcPort  string
	DstAddr  string
	DstPort  string
	SDAddr   string
	ITpCd    string
	SrcNeg   string
	DstNeg   string
	SvcNeg   string
	Status   string
	Log      string
	Schedule string
	Comment  string
}

// CSV renders the row in column order:
// DOM,SINTF,DINTF,POLTYPE,POLID,POLNAME,POLLINE,ACTION,PROT,SADDR,SPORT,
// DADDR,DPORT,SDADDR,ITPCD,SANEG,DANEG,SVNEG,STATUS,LOG,SCHEDULE,COMMENT.
func (r *Row) CSV() string {
	cols := []string{
		r.Dom, r.SrcIntf, r.DstIntf, string(r.Mode), r.ID, r.Name,
		strconv.Itoa(r.Line), r.Action, r.Prot, r.SrcAddr, r.SrcPort,
		r.DstAddr, r.DstPort, r.SDAddr, r.ITpCd, r.SrcNeg, r.DstNeg,
		r.SvcNeg, r.Status, r.Log, r.Schedule, r.Comment,
	}
	return strings.Join(cols, ",")
}

// Domain is the per-VDOM record: eight named tables and six ordered policy
// lists keyed by type-mode. The global scope uses the empty name.
type Domain struct {
	Name string

	Addr4    *Table
	Addr6    *Table
	AddrGrp4 *Table
	AddrGrp6 *Table
	Mcast4   *Table
	Mcast6   *Table
	SvcCust  *Table
	SvcGroup *Table

	Policies map[TypeMode][]Row

	policyCount map[TypeMode]int
}

func NewDomain(name string) *Domain {
	return &Domain{
		Name:     name,
		Addr4:    NewTable(),
		Addr6:    NewTable(),
		AddrGrp4: NewTable(),
		AddrGrp6: NewTable(),
		Mcast4:   NewTable(),
		Mcast6:   NewTable(),
		SvcCust:  NewTable(),
		SvcGroup: NewTable(),
		Policies: make(map[TypeMode][]Row),

		policyCount: make(map[TypeMode]int),
	}
}

// AppendPolicy installs one policy's rows at the tail of the mode's list.
// All rows of the policy share the policy's 1-based order number.
func (d *Domain) AppendPolicy(mode TypeMode, rows []Row) {
	line := d.policyCount[mode] + 1
	d.policyCount[mode] = line
	for i := range rows {
		rows[i].Dom = d.Name
		rows[i].Mode = mode
		rows[i].Line = line
	}
	d.Policies[mode] = append(d.Policies[mode], rows...)
}

// LookupService resolves a service name: customs first, then groups.
func (d *Domain) LookupService(name string) (*TokenSet, bool) {
	if ts, ok := d.SvcCust.Get(name); ok {
		return ts, true
	}
	return d.SvcGroup.Get(name)
}

// Store is the whole parse result: domains in first-appearance order.
type Store struct {
	order   []string
	domains map[string]*Domain
}

func NewStore() *Store {
	return &Store{domains: make(map[string]*Domain)}
}

// Domain returns the named domain, creating it on first use.
func (s *Store) Domain(name string) *Domain {
	if d, ok := s.domains[name]; ok {
		return d
	}
	d := NewDomain(name)
	s.domains[name] = d
	s.order = append(s.order, name)
	return d
}

// Get returns the named domain without creating it.
func (s *Store) Get(name string) (*Domain, bool) {
	d, ok := s.domains[name]
	return d, ok
}

// Names returns domain names in first-appearance order.
func (s *Store) Names() []string {
	return s.order
}
