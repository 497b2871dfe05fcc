package engine

import (
	"strings"

	"fortigate-policy-flattener/internal/model"
)

// CRLF joins user-visible multi-line output.
const CRLF = "\r\n"

// FlattenOptions selects which named columns get rewritten to leaf values.
type FlattenOptions struct {
	Addresses bool
	Services  bool
}

// NormalizedRows collects every normalized row in emission order: domains
// in first-appearance order, type-modes in ModeOrder, rows in config order.
func NormalizedRows(store *model.Store) []model.Row {
	var rows []model.Row
	for _, name := range store.Names() {
		dom, _ := store.Get(name)
		for _, mode := range model.ModeOrder {
			rows = append(rows, dom.Policies[mode]...)
		}
	}
	return rows
}

// FlattenStore rewrites the normalized rows per the toggles, multiplying
// rows across the flattened leaf values.
func FlattenStore(store *model.Store, opts FlattenOptions) []model.Row {
	var out []model.Row
	for _, name := range store.Names() {
		dom, _ := store.Get(name)
		for _, mode := range model.ModeOrder {
			for _, row := range dom.Policies[mode] {
				out = append(out, flattenRow(dom, row, opts)...)
			}
		}
	}
	return out
}

func flattenRow(dom *model.Domain, row model.Row, opts FlattenOptions) []model.Row {
	rows := []model.Row{row}
	if opts.Addresses {
		rows = flattenAddresses(dom, rows)
	}
	if opts.Services && !row.Mode.Multicast() {
		rows = flattenServices(dom, rows)
	}
	return rows
}

func flattenAddresses(dom *model.Domain, rows []model.Row) []model.Row {
	var out []model.Row
	for _, row := range rows {
		srcVals := addressValues(dom, row.SrcAddr, row.Mode, false)
		dstVals := addressValues(dom, row.DstAddr, row.Mode, true)
		for _, s := range srcVals {
			for _, d := range dstVals {
				r := row
				r.SrcAddr = s
				r.DstAddr = d
				out = append(out, r)
			}
		}
	}
	return out
}

// addressValues resolves a named address column to its stored leaf values.
// The consulted family and table follow the row's type-mode; an unknown
// name passes through unchanged.
func addressValues(dom *model.Domain, name string, mode model.TypeMode, dst bool) []string {
	var addr, grp *model.Table
	switch mode {
	case model.Mode4to4:
		addr, grp = dom.Addr4, dom.AddrGrp4
	case model.Mode6to6:
		addr, grp = dom.Addr6, dom.AddrGrp6
	case model.Mode4to6:
		if dst {
			addr, grp = dom.Addr6, dom.AddrGrp6
		} else {
			addr, grp = dom.Addr4, dom.AddrGrp4
		}
	case model.Mode6to4:
		if dst {
			addr, grp = dom.Addr4, dom.AddrGrp4
		} else {
			addr, grp = dom.Addr6, dom.AddrGrp6
		}
	case model.Mode4to4m:
		if dst {
			addr = dom.Mcast4
		} else {
			addr, grp = dom.Addr4, dom.AddrGrp4
		}
	case model.Mode6to6m:
		if dst {
			addr = dom.Mcast6
		} else {
			addr, grp = dom.Addr6, dom.AddrGrp6
		}
	}

	if addr != nil {
		if ts, ok := addr.Get(name); ok {
			return ts.Values
		}
	}
	if grp != nil {
		if ts, ok := grp.Get(name); ok {
			return ts.Values
		}
	}
	return []string{name}
}

func flattenServices(dom *model.Domain, rows []model.Row) []model.Row {
	var out []model.Row
	for _, row := range rows {
		ts, ok := dom.LookupService(row.Prot)
		if !ok {
			out = append(out, row)
			continue
		}
		for _, token := range ts.Values {
			r := row
			fillServiceToken(&r, token)
			out = append(out, r)
		}
	}
	return out
}

// fillServiceToken rewrites the protocol/port/type-code columns of a row
// from one flattened service token "PROTO[/...];SDA".
func fillServiceToken(r *model.Row, token string) {
	left, sda := token, model.Placeholder
	if i := strings.LastIndexByte(token, ';'); i >= 0 {
		left, sda = token[:i], token[i+1:]
	}
	parts := strings.Split(left, "/")
	switch {
	case len(parts) == 5 && model.ClassifyToken(left) == model.ClassTCPUDPSCTP:
		// pn/<src-op>/<dst-op>: TCP, UDP, or SCTP with an optional SDA.
		r.Prot = parts[0]
		r.SrcPort = parts[1] + "/" + parts[2]
		r.DstPort = parts[3] + "/" + parts[4]
		r.SDAddr = sda
		r.ITpCd = "-/-"
	case len(parts) == 3 && model.ClassifyToken(left) == model.ClassICMP:
		// pn/type/code: ICMP or ICMPv6.
		r.Prot = parts[0]
		r.SrcPort = "-/-"
		r.DstPort = "-/-"
		r.SDAddr = model.Placeholder
		r.ITpCd = parts[1] + "/" + parts[2]
	case len(parts) == 1 && isIPProto(left):
		r.Prot = parts[0]
		r.SrcPort = "-/-"
		r.DstPort = "-/-"
		r.SDAddr = model.Placeholder
		r.ITpCd = "-/-"
	default:
		// Unsupported pass-through marker.
		r.Prot = left
		r.SrcPort = left
		r.DstPort = left
		r.SDAddr = model.Placeholder
		r.ITpCd = left
	}
}

// isIPProto reports whether a one-field service token is the IP family:
// the literal "ip" or a bare protocol number.
func isIPProto(s string) bool {
	if s == "ip" {
		return true
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// RowsText renders rows as a CRLF-joined CSV blob.
func RowsText(rows []model.Row) string {
	lines := make([]string, len(rows))
	for i := range rows {
		lines[i] = rows[i].CSV()
	}
	return strings.Join(lines, CRLF)
}
