package parser

import (
	"fortigate-policy-flattener/internal/engine"
	"fortigate-policy-flattener/internal/model"
)

// policyHandler covers the six policy stanzas. One instance exists per
// type-mode; End expands the accumulated record into normalized rows and
// appends them to the owning domain's list for that mode.
type policyHandler struct {
	mode model.TypeMode

	dom     *model.Domain
	rec     engine.PolicyRecord
	pending bool
}

func (h *policyHandler) Begin(dom *model.Domain, name string) {
	*h = policyHandler{mode: h.mode, dom: dom, pending: true}
	h.rec.ID = name
}

func (h *policyHandler) Set(line string, tokens []string) {
	if !h.pending || len(tokens) < 2 {
		return
	}
	switch tokens[1] {
	case "name":
		h.rec.Name = setValue(tokens[2:])
	case "srcintf":
		h.rec.SrcIntf = append(h.rec.SrcIntf, valueList(tokens[2:])...)
	case "dstintf":
		h.rec.DstIntf = append(h.rec.DstIntf, valueList(tokens[2:])...)
	case "srcaddr":
		h.rec.SrcAddr = append(h.rec.SrcAddr, valueList(tokens[2:])...)
	case "dstaddr":
		h.rec.DstAddr = append(h.rec.DstAddr, valueList(tokens[2:])...)
	case "service":
		h.rec.Service = append(h.rec.Service, valueList(tokens[2:])...)
	case "action":
		h.rec.Action = setValue(tokens[2:])
	case "status":
		h.rec.Status = setValue(tokens[2:])
	case "schedule":
		h.rec.Schedule = setValue(tokens[2:])
	case "comments", "comment":
		h.rec.Comment = setValue(tokens[2:])
	case "srcaddr-negate":
		h.rec.SrcNeg = setValue(tokens[2:])
	case "dstaddr-negate":
		h.rec.DstNeg = setValue(tokens[2:])
	case "service-negate":
		h.rec.SvcNeg = setValue(tokens[2:])
	case "protocol":
		h.rec.Protocol = setValue(tokens[2:])
	case "start-port":
		h.rec.StartPort = setValue(tokens[2:])
	case "end-port":
		h.rec.EndPort = setValue(tokens[2:])
	}
}

func (h *policyHandler) Unset(tokens []string) {
	if !h.pending {
		return
	}
	switch tokens[1] {
	case "name":
		h.rec.Name = ""
	case "srcintf":
		h.rec.SrcIntf = nil
	case "dstintf":
		h.rec.DstIntf = nil
	case "srcaddr":
		h.rec.SrcAddr = nil
	case "dstaddr":
		h.rec.DstAddr = nil
	case "service":
		h.rec.Service = nil
	case "action":
		h.rec.Action = ""
	case "status":
		h.rec.Status = ""
	case "schedule":
		h.rec.Schedule = ""
	case "comments", "comment":
		h.rec.Comment = ""
	case "srcaddr-negate":
		h.rec.SrcNeg = ""
	case "dstaddr-negate":
		h.rec.DstNeg = ""
	case "service-negate":
		h.rec.SvcNeg = ""
	case "protocol":
		h.rec.Protocol = ""
	case "start-port":
		h.rec.StartPort = ""
	case "end-port":
		h.rec.EndPort = ""
	}
}

func (h *policyHandler) End() {
	if !h.pending {
		return
	}
	h.pending = false
	rows := engine.ExpandPolicy(h.dom, h.mode, h.rec)
	h.dom.AppendPolicy(h.mode, rows)
}
