package parser

import (
	"strconv"
	"strings"

	"fortigate-policy-flattener/internal/ipaddr"
	"fortigate-policy-flattener/internal/model"
)

// serviceCustomHandler covers "firewall service custom".
type serviceCustomHandler struct {
	dom      *model.Domain
	name     string
	protocol string
	protoNum string
	icmpType string
	icmpCode string
	tcpPR    string
	udpPR    string
	sctpPR   string
	iprange  string
	fqdn     string
	comment  string
	hasProto bool
	pending  bool
}

func (h *serviceCustomHandler) Begin(dom *model.Domain, name string) {
	*h = serviceCustomHandler{dom: dom, name: name, pending: true}
}

func (h *serviceCustomHandler) Set(line string, tokens []string) {
	if !h.pending || len(tokens) < 2 {
		return
	}
	value := setValue(tokens[2:])
	switch tokens[1] {
	case "protocol":
		h.protocol = value
		h.hasProto = true
	case "protocol-number":
		h.protoNum = value
	case "icmptype":
		h.icmpType = value
	case "icmpcode":
		h.icmpCode = value
	case "tcp-portrange":
		h.tcpPR = value
	case "udp-portrange":
		h.udpPR = value
	case "sctp-portrange":
		h.sctpPR = value
	case "iprange":
		h.iprange = value
	case "fqdn":
		h.fqdn = value
	case "comment":
		h.comment = value
	}
}

func (h *serviceCustomHandler) Unset(tokens []string) {
	if !h.pending {
		return
	}
	switch tokens[1] {
	case "protocol":
		h.protocol = ""
		h.hasProto = false
	case "protocol-number":
		h.protoNum = ""
	case "icmptype":
		h.icmpType = ""
	case "icmpcode":
		h.icmpCode = ""
	case "tcp-portrange":
		h.tcpPR = ""
	case "udp-portrange":
		h.udpPR = ""
	case "sctp-portrange":
		h.sctpPR = ""
	case "iprange":
		h.iprange = ""
	case "fqdn":
		h.fqdn = ""
	case "comment":
		h.comment = ""
	}
}

func (h *serviceCustomHandler) End() {
	if !h.pending {
		return
	}
	h.pending = false
	ts := &model.TokenSet{Comment: h.comment}
	for _, v := range h.normalize() {
		ts.Add(v)
	}
	for _, v := range ts.Values {
		ts.Classes |= model.ClassifyToken(v)
	}
	h.dom.SvcCust.Put(h.name, ts)
}

func (h *serviceCustomHandler) normalize() []string {
	protocol := h.protocol
	if !h.hasProto {
		protocol = "TCP/UDP/SCTP"
	}
	switch protocol {
	case "IP":
		if h.protoNum == "" || h.protoNum == "0" {
			return []string{"ip;-"}
		}
		return []string{h.protoNum + ";-"}
	case "ICMP":
		return []string{icmpToken("1", h.icmpType, h.icmpCode)}
	case "ICMP6":
		return []string{icmpToken("58", h.icmpType, h.icmpCode)}
	case "TCP/UDP/SCTP":
		return h.portTokens()
	case "":
		return []string{model.Undefined + ";-"}
	}
	return []string{protocol + ";" + protocol}
}

func icmpToken(pn, icmpType, icmpCode string) string {
	if icmpType == "" {
		icmpType = "any"
	}
	if icmpCode == "" {
		icmpCode = "any"
	}
	return pn + "/" + icmpType + "/" + icmpCode + ";-"
}

// portTokens emits one token per port-range element across the three
// transports, "<pn>/<src-op>/<dst-op>;<sda>".
func (h *serviceCustomHandler) portTokens() []string {
	sda := h.destToken()
	type transport struct {
		pn string
		pr string
	}
	var tokens []string
	for _, tr := range []transport{{"6", h.tcpPR}, {"17", h.udpPR}, {"132", h.sctpPR}} {
		if tr.pr == "" {
			continue
		}
		seen := make(map[string]bool)
		for _, elem := range strings.Fields(tr.pr) {
			if seen[elem] {
				continue
			}
			seen[elem] = true
			dst, src := elem, ""
			if i := strings.IndexByte(elem, ':'); i >= 0 {
				dst, src = elem[:i], elem[i+1:]
			}
			tokens = append(tokens, tr.pn+"/"+portOp(src)+"/"+portOp(dst)+";"+sda)
		}
	}
	return tokens
}

// portOp renders one port operand: a single port, a range, or "any" when
// unspecified. Unparseable operands degrade to undefined but never fail.
func portOp(s string) string {
	if s == "" {
		return "eq/any"
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		if isPortNum(s[:i]) && isPortNum(s[i+1:]) {
			return "range/" + s
		}
		return "range/undefined-undefined"
	}
	if isPortNum(s) {
		return "eq/" + s
	}
	return "eq/undefined"
}

func isPortNum(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// destToken renders the service-destination-address qualifier: an FQDN, a
// host, a range, or "0/0" when unspecified.
func (h *serviceCustomHandler) destToken() string {
	if h.fqdn != "" {
		return "fqdn:" + h.fqdn
	}
	if h.iprange == "" || h.iprange == "0.0.0.0" {
		return "0/0"
	}
	if i := strings.IndexByte(h.iprange, '-'); i >= 0 {
		start, end := h.iprange[:i], h.iprange[i+1:]
		if end == "" || end == start {
			if _, ok := ipaddr.ParseIPv4(start); ok {
				return start + "/32"
			}
			return "0/0"
		}
		return start + "-" + end
	}
	if _, ok := ipaddr.ParseIPv4(h.iprange); ok {
		return h.iprange + "/32"
	}
	return "0/0"
}

// serviceGroupHandler covers "firewall service group". Members resolve at
// End against customs then groups; the group's class mask is the OR of its
// members'.
type serviceGroupHandler struct {
	dom     *model.Domain
	name    string
	members []string
	comment string
	pending bool
}

func (h *serviceGroupHandler) Begin(dom *model.Domain, name string) {
	*h = serviceGroupHandler{dom: dom, name: name, pending: true}
}

func (h *serviceGroupHandler) Set(line string, tokens []string) {
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

func (h *serviceGroupHandler) Unset(tokens []string) {
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

func (h *serviceGroupHandler) End() {
	if !h.pending {
		return
	}
	h.pending = false
	ts := &model.TokenSet{Comment: h.comment}
	for _, member := range h.members {
		if entry, ok := h.dom.SvcCust.Get(member); ok {
			ts.AddAll(entry.Values)
			ts.Classes |= entry.Classes
		}
		if entry, ok := h.dom.SvcGroup.Get(member); ok {
			ts.AddAll(entry.Values)
			ts.Classes |= entry.Classes
		}
	}
	h.dom.SvcGroup.Put(h.name, ts)
}
