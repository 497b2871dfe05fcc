package parser

import (
	"strconv"
	"strings"

	"fortigate-policy-flattener/internal/ipaddr"
	"fortigate-policy-flattener/internal/model"
)

// addressHandler covers "firewall address" and "firewall address6".
type addressHandler struct {
	v6 bool

	dom     *model.Domain
	name    string
	typ     string
	subnet  string
	startIP string
	endIP   string
	wild    string
	fqdn    string
	country string
	comment string
	pending bool
}

func (h *addressHandler) Begin(dom *model.Domain, name string) {
	*h = addressHandler{v6: h.v6, dom: dom, name: name, pending: true}
	if h.v6 {
		h.typ = "ipprefix"
	} else {
		h.typ = "ipmask"
	}
}

func (h *addressHandler) Set(line string, tokens []string) {
	if !h.pending || len(tokens) < 2 {
		return
	}
	value := setValue(tokens[2:])
	switch tokens[1] {
	case "type":
		h.typ = value
	case "subnet":
		// Accepts both "A.B.C.D M.M.M.M" and "A.B.C.D/p".
		h.subnet = value
	case "ip6":
		h.subnet = value
	case "start-ip":
		h.startIP = value
	case "end-ip":
		h.endIP = value
	case "wildcard":
		h.wild = value
	case "fqdn", "wildcard-fqdn":
		h.fqdn = value
	case "country":
		h.country = value
	case "comment":
		h.comment = value
	}
}

func (h *addressHandler) Unset(tokens []string) {
	if !h.pending {
		return
	}
	switch tokens[1] {
	case "type":
		if h.v6 {
			h.typ = "ipprefix"
		} else {
			h.typ = "ipmask"
		}
	case "subnet", "ip6":
		h.subnet = ""
	case "start-ip":
		h.startIP = ""
	case "end-ip":
		h.endIP = ""
	case "wildcard":
		h.wild = ""
	case "fqdn", "wildcard-fqdn":
		h.fqdn = ""
	case "country":
		h.country = ""
	case "comment":
		h.comment = ""
	}
}

func (h *addressHandler) End() {
	if !h.pending {
		return
	}
	h.pending = false
	ts := &model.TokenSet{Comment: h.comment}
	if h.v6 {
		ts.Add(h.normalize6())
		h.dom.Addr6.Put(h.name, ts)
	} else {
		ts.Add(h.normalize4())
		h.dom.Addr4.Put(h.name, ts)
	}
}

func (h *addressHandler) normalize4() string {
	switch h.typ {
	case "ipmask":
		return subnetToken(h.subnet)
	case "iprange":
		return v4RangeToken(h.startIP, h.endIP)
	case "wildcard":
		return wildcardToken(h.wild)
	case "fqdn", "wildcard-fqdn":
		return "fqdn:" + h.fqdn
	case "geography":
		return "geo:" + h.country
	}
	return model.Undefined
}

func (h *addressHandler) normalize6() string {
	switch h.typ {
	case "ipprefix":
		return prefix6Token(h.subnet)
	case "iprange":
		return v6RangeToken(h.startIP, h.endIP)
	case "fqdn":
		return "fqdn:" + h.fqdn
	}
	return model.Undefined
}

// mcastAddressHandler covers "firewall multicast-address".
type mcastAddressHandler struct {
	dom     *model.Domain
	name    string
	typ     string
	subnet  string
	startIP string
	endIP   string
	comment string
	pending bool
}

func (h *mcastAddressHandler) Begin(dom *model.Domain, name string) {
	*h = mcastAddressHandler{dom: dom, name: name, typ: "multicastrange", pending: true}
}

func (h *mcastAddressHandler) Set(line string, tokens []string) {
	if !h.pending || len(tokens) < 2 {
		return
	}
	value := setValue(tokens[2:])
	switch tokens[1] {
	case "type":
		h.typ = value
	case "subnet":
		h.subnet = value
	case "start-ip":
		h.startIP = value
	case "end-ip":
		h.endIP = value
	case "comment":
		h.comment = value
	}
}

func (h *mcastAddressHandler) Unset(tokens []string) {
	if !h.pending {
		return
	}
	switch tokens[1] {
	case "type":
		h.typ = "multicastrange"
	case "subnet":
		h.subnet = ""
	case "start-ip":
		h.startIP = ""
	case "end-ip":
		h.endIP = ""
	case "comment":
		h.comment = ""
	}
}

func (h *mcastAddressHandler) End() {
	if !h.pending {
		return
	}
	h.pending = false
	ts := &model.TokenSet{Comment: h.comment}
	switch h.typ {
	case "broadcastmask":
		ts.Add(subnetToken(h.subnet))
	case "multicastrange":
		ts.Add(v4RangeToken(h.startIP, h.endIP))
	default:
		ts.Add(model.Undefined)
	}
	h.dom.Mcast4.Put(h.name, ts)
}

// mcastAddress6Handler covers "firewall multicast-address6": a single
// prefix value.
type mcastAddress6Handler struct {
	dom     *model.Domain
	name    string
	ip6     string
	comment string
	pending bool
}

func (h *mcastAddress6Handler) Begin(dom *model.Domain, name string) {
	*h = mcastAddress6Handler{dom: dom, name: name, pending: true}
}

func (h *mcastAddress6Handler) Set(line string, tokens []string) {
	if !h.pending || len(tokens) < 2 {
		return
	}
	switch tokens[1] {
	case "ip6":
		h.ip6 = setValue(tokens[2:])
	case "comment":
		h.comment = setValue(tokens[2:])
	}
}

func (h *mcastAddress6Handler) Unset(tokens []string) {
	if !h.pending {
		return
	}
	switch tokens[1] {
	case "ip6":
		h.ip6 = ""
	case "comment":
		h.comment = ""
	}
}

func (h *mcastAddress6Handler) End() {
	if !h.pending {
		return
	}
	h.pending = false
	ts := &model.TokenSet{Comment: h.comment}
	ts.Add(prefix6Token(h.ip6))
	h.dom.Mcast6.Put(h.name, ts)
}

// addrGrpHandler covers "firewall addrgrp" and "firewall addrgrp6".
// Members resolve against the already-populated same-family tables at End,
// so nesting flattens at insertion time and forward references drop out.
type addrGrpHandler struct {
	v6 bool

	dom     *model.Domain
	name    string
	members []string
	comment string
	pending bool
}

func (h *addrGrpHandler) Begin(dom *model.Domain, name string) {
	*h = addrGrpHandler{v6: h.v6, dom: dom, name: name, pending: true}
}

func (h *addrGrpHandler) Set(line string, tokens []string) {
	if !h.pending || len(tokens) < 2 {
		return
	}
	switch tokens[1] {
	case "member":
		h.members = append(h.members, valueList(tokens[2:])...)
	case "comment":
		h.comment = setValue(tokens[2:])
	}
}

func (h *addrGrpHandler) Unset(tokens []string) {
	if !h.pending {
		return
	}
	switch tokens[1] {
	case "member":
		h.members = nil
	case "comment":
		h.comment = ""
	}
}

func (h *addrGrpHandler) End() {
	if !h.pending {
		return
	}
	h.pending = false
	addrTable, grpTable := h.dom.Addr4, h.dom.AddrGrp4
	if h.v6 {
		addrTable, grpTable = h.dom.Addr6, h.dom.AddrGrp6
	}
	ts := &model.TokenSet{Comment: h.comment}
	for _, member := range h.members {
		if entry, ok := addrTable.Get(member); ok {
			ts.AddAll(entry.Values)
		}
		if entry, ok := grpTable.Get(member); ok {
			ts.AddAll(entry.Values)
		}
	}
	grpTable.Put(h.name, ts)
}

// subnetToken normalizes an ipmask/broadcastmask subnet to "A.B.C.D/p".
// The empty subnet is the all-zero network.
func subnetToken(subnet string) string {
	if subnet == "" {
		return ipaddr.AllV4
	}
	if i := strings.IndexByte(subnet, '/'); i >= 0 {
		addr := subnet[:i]
		if _, ok := ipaddr.ParseIPv4(addr); !ok {
			return model.Undefined
		}
		p, err := strconv.Atoi(subnet[i+1:])
		if err != nil || p < 0 || p > 32 {
			return model.Undefined
		}
		return addr + "/" + strconv.Itoa(p)
	}
	fields := strings.Fields(subnet)
	addr := fields[0]
	mask := "0.0.0.0"
	if len(fields) > 1 {
		mask = fields[1]
	}
	if _, ok := ipaddr.ParseIPv4(addr); !ok {
		return model.Undefined
	}
	p, ok := ipaddr.PrefixFromMask(mask)
	if !ok {
		return model.Undefined
	}
	return addr + "/" + strconv.Itoa(p)
}

// v4RangeToken normalizes an iprange to "start-end" with start <= end.
// Empty endpoints default to 0.0.0.0.
func v4RangeToken(start, end string) string {
	if start == "" {
		start = "0.0.0.0"
	}
	if end == "" {
		end = "0.0.0.0"
	}
	s, ok1 := ipaddr.ParseIPv4(start)
	e, ok2 := ipaddr.ParseIPv4(end)
	if !ok1 || !ok2 {
		return model.Undefined
	}
	if s > e {
		start, end = end, start
	}
	return start + "-" + end
}

// wildcardToken stores a Fortinet wildcard verbatim as "A.B.C.D/M.M.M.M".
func wildcardToken(wild string) string {
	fields := strings.Fields(wild)
	addr, mask := "0.0.0.0", "0.0.0.0"
	if len(fields) > 0 && fields[0] != "" {
		addr = fields[0]
	}
	if len(fields) > 1 {
		mask = fields[1]
	} else if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr, mask = addr[:i], addr[i+1:]
	}
	if _, ok := ipaddr.ParseIPv4(addr); !ok {
		return model.Undefined
	}
	if _, ok := ipaddr.ParseIPv4(mask); !ok {
		return model.Undefined
	}
	return addr + "/" + mask
}

// prefix6Token normalizes an IPv6 prefix to "<expanded>/p", defaulting to
// the all-zero ::/0.
func prefix6Token(value string) string {
	if value == "" {
		value = "::/0"
	}
	addr := value
	prefix := 128
	if i := strings.IndexByte(value, '/'); i >= 0 {
		addr = value[:i]
		p, err := strconv.Atoi(value[i+1:])
		if err != nil || p < 0 || p > 128 {
			return model.Undefined
		}
		prefix = p
	}
	expanded := ipaddr.ExpandIPv6(addr)
	if expanded == "" {
		return model.Undefined
	}
	return expanded + "/" + strconv.Itoa(prefix)
}

// v6RangeToken normalizes an IPv6 range to "start-end" in expanded form
// with start <= end. Empty endpoints default to ::.
func v6RangeToken(start, end string) string {
	if start == "" {
		start = "::"
	}
	if end == "" {
		end = "::"
	}
	s := ipaddr.ExpandIPv6(start)
	e := ipaddr.ExpandIPv6(end)
	if s == "" || e == "" {
		return model.Undefined
	}
	if s > e {
		s, e = e, s
	}
	return s + "-" + e
}
