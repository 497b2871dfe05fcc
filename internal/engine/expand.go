// Package engine turns accumulated policy records into normalized rows,
// flattens rows against the object store, and answers lookup queries.
package engine

import (
	"strconv"

	"fortigate-policy-flattener/internal/model"
)

// PolicyRecord is one policy edit as accumulated by the config parser,
// before expansion. List fields hold the dequoted member names.
type PolicyRecord struct {
	ID       string
	Name     string
	SrcIntf  []string
	DstIntf  []string
	SrcAddr  []string
	DstAddr  []string
	Service  []string
	Action   string
	Status   string
	Schedule string
	Comment  string
	SrcNeg   string // raw "enable"/"disable"/""
	DstNeg   string
	SvcNeg   string

	// Multicast-only fields: the protocol/port spec is a scalar.
	Protocol  string
	StartPort string
	EndPort   string
}

// ExpandPolicy normalizes one policy into rows, one per element of the
// Cartesian product of its interface, address, and service lists. Multicast
// policies omit the service dimension.
func ExpandPolicy(dom *model.Domain, mode model.TypeMode, rec PolicyRecord) []model.Row {
	if mode.Multicast() {
		return expandMulticast(rec, mode)
	}
	return expandUnicast(dom, rec, mode)
}

func expandUnicast(dom *model.Domain, rec PolicyRecord, mode model.TypeMode) []model.Row {
	action := rec.Action
	if action == "" {
		action = "deny"
	}
	status := rec.Status
	if status == "" {
		status = "enable"
	}

	name := rec.Name
	srcNeg := negateColumn(rec.SrcNeg)
	dstNeg := negateColumn(rec.DstNeg)
	svcNeg := negateColumn(rec.SvcNeg)
	if mode == model.Mode4to6 || mode == model.Mode6to4 {
		name = model.Placeholder
		srcNeg = model.Placeholder
		dstNeg = model.Placeholder
		svcNeg = model.Placeholder
	}

	var rows []model.Row
	for _, sIntf := range rec.SrcIntf {
		for _, dIntf := range rec.DstIntf {
			for _, sAddr := range rec.SrcAddr {
				for _, dAddr := range rec.DstAddr {
					for _, svc := range rec.Service {
						prot, sPort, dPort, sdAddr, iTpCd := serviceColumns(dom, svc)
						rows = append(rows, model.Row{
							SrcIntf:  sIntf,
							DstIntf:  dIntf,
							ID:       rec.ID,
							Name:     name,
							Action:   action,
							Prot:     prot,
							SrcAddr:  sAddr,
							SrcPort:  sPort,
							DstAddr:  dAddr,
							DstPort:  dPort,
							SDAddr:   sdAddr,
							ITpCd:    iTpCd,
							SrcNeg:   srcNeg,
							DstNeg:   dstNeg,
							SvcNeg:   svcNeg,
							Status:   status,
							Log:      model.Placeholder,
							Schedule: rec.Schedule,
							Comment:  rec.Comment,
						})
					}
				}
			}
		}
	}
	return rows
}

// serviceColumns fills PROT and the service-dependent columns for one named
// service on a normalized row. The name stands in for the value columns of
// every class the service carries; service flattening replaces it later.
// An unknown name passes through into every column.
func serviceColumns(dom *model.Domain, svc string) (prot, sPort, dPort, sdAddr, iTpCd string) {
	ts, ok := dom.LookupService(svc)
	if !ok {
		return svc, svc, svc, svc, svc
	}

	iTpCd = "-/-"
	if ts.Classes&(model.ClassICMP|model.ClassUnsupported) != 0 {
		iTpCd = svc
	}
	sPort, dPort, sdAddr = "-/-", "-/-", model.Placeholder
	if ts.Classes&(model.ClassTCPUDPSCTP|model.ClassUnsupported) != 0 {
		sPort, dPort, sdAddr = svc, svc, svc
	}
	return svc, sPort, dPort, sdAddr, iTpCd
}

func expandMulticast(rec PolicyRecord, mode model.TypeMode) []model.Row {
	action := rec.Action
	if action == "" {
		action = "accept"
	}
	status := rec.Status
	if status == "" {
		status = "enable"
	}

	prot, sPort, dPort, sdAddr, iTpCd := multicastColumns(rec)

	var rows []model.Row
	for _, sIntf := range rec.SrcIntf {
		for _, dIntf := range rec.DstIntf {
			for _, sAddr := range rec.SrcAddr {
				for _, dAddr := range rec.DstAddr {
					rows = append(rows, model.Row{
						SrcIntf:  sIntf,
						DstIntf:  dIntf,
						ID:       rec.ID,
						Name:     model.Placeholder,
						Action:   action,
						Prot:     prot,
						SrcAddr:  sAddr,
						SrcPort:  sPort,
						DstAddr:  dAddr,
						DstPort:  dPort,
						SDAddr:   sdAddr,
						ITpCd:    iTpCd,
						SrcNeg:   model.Placeholder,
						DstNeg:   model.Placeholder,
						SvcNeg:   model.Placeholder,
						Status:   status,
						Log:      model.Placeholder,
						Schedule: rec.Schedule,
						Comment:  rec.Comment,
					})
				}
			}
		}
	}
	return rows
}

// multicastColumns interprets the scalar protocol number of a multicast
// policy directly.
func multicastColumns(rec PolicyRecord) (prot, sPort, dPort, sdAddr, iTpCd string) {
	proto := rec.Protocol
	switch proto {
	case "1", "58":
		return proto, "-/-", "-/-", model.Placeholder, "any/any"
	case "6", "17", "132":
		dPort = "eq/any"
		if rec.StartPort != "" {
			if rec.EndPort == "" {
				dPort = "eq/" + rec.StartPort
			} else {
				dPort = "range/" + rec.StartPort + "-" + rec.EndPort
			}
		}
		return proto, "eq/any", dPort, "0/0", "-/-"
	case "", "0":
		return "ip", "-/-", "-/-", model.Placeholder, "-/-"
	}
	if _, err := strconv.Atoi(proto); err == nil {
		return proto, "-/-", "-/-", model.Placeholder, "-/-"
	}
	return proto, proto, proto, model.Placeholder, proto
}

func negateColumn(raw string) string {
	if raw == "enable" {
		return "true"
	}
	return "false"
}
