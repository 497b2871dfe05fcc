package engine

import (
	"regexp"
	"strconv"
	"strings"

	"fortigate-policy-flattener/internal/ipaddr"
	"fortigate-policy-flattener/internal/model"
)

// LookupOptions carries the lookup knobs.
type LookupOptions struct {
	// FqdnGeoMatchAll makes an FQDN/geography stored value non-trivially
	// match an IP query and vice versa.
	FqdnGeoMatchAll bool
}

// QueryKind classifies one lookup address.
type QueryKind int

const (
	KindInvalid QueryKind = iota
	KindV4
	KindV6
	KindFQDN
	KindGeo
)

// QueryAddr is one classified lookup address.
type QueryAddr struct {
	Kind  QueryKind
	Token string
}

// Display renders the address for the synthetic query column, retaining the
// fqdn:/geo: prefixes.
func (q QueryAddr) Display() string {
	switch q.Kind {
	case KindFQDN:
		return "fqdn:" + q.Token
	case KindGeo:
		return "geo:" + q.Token
	}
	return q.Token
}

// LookupQuery is one parsed lookup-list line. A nil side means that side is
// not queried.
type LookupQuery struct {
	Src     *QueryAddr
	Dst     *QueryAddr
	Comment string
}

var (
	v4QueryRe   = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+(/\d+)?$`)
	hostnameRe  = regexp.MustCompile(`^\.?(\*|[A-Za-z0-9-]+)(\.(\*|[A-Za-z0-9-]+))*$`)
	hasLetterRe = regexp.MustCompile(`[A-Za-z*]`)
)

// ClassifyQuery classifies a lookup address string. Invalid forms yield
// KindInvalid, which skips the whole line.
func ClassifyQuery(s string) QueryAddr {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return QueryAddr{Kind: KindInvalid}
	case strings.HasPrefix(s, "geo:"):
		return QueryAddr{Kind: KindGeo, Token: s[len("geo:"):]}
	case strings.HasPrefix(s, "fqdn:"):
		return QueryAddr{Kind: KindFQDN, Token: s[len("fqdn:"):]}
	case v4QueryRe.MatchString(s):
		token := s
		if !strings.ContainsRune(s, '/') {
			token += "/32"
		}
		if _, _, ok := ipaddr.SplitV4Token(token); !ok {
			return QueryAddr{Kind: KindInvalid}
		}
		return QueryAddr{Kind: KindV4, Token: token}
	case strings.ContainsRune(s, ':'):
		addr, prefix := s, -1
		if i := strings.IndexByte(s, '/'); i >= 0 {
			addr = s[:i]
			p, err := strconv.Atoi(s[i+1:])
			if err != nil || p < 0 || p > 128 {
				return QueryAddr{Kind: KindInvalid}
			}
			prefix = p
		}
		expanded := ipaddr.ExpandIPv6(addr)
		if expanded == "" {
			return QueryAddr{Kind: KindInvalid}
		}
		if prefix >= 0 {
			expanded += "/" + strconv.Itoa(prefix)
		}
		return QueryAddr{Kind: KindV6, Token: expanded}
	case hostnameRe.MatchString(s) && hasLetterRe.MatchString(s):
		return QueryAddr{Kind: KindFQDN, Token: s}
	}
	return QueryAddr{Kind: KindInvalid}
}

// ParseLookupList parses the lookup-list blob. Each non-blank, non-comment
// line is SRC,DST[,comment]; lines with a malformed address are dropped.
func ParseLookupList(text string) []LookupQuery {
	var queries []LookupQuery
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		var q LookupQuery
		if len(parts) >= 3 {
			q.Comment = strings.TrimSpace(parts[2])
		}
		srcRaw := strings.TrimSpace(parts[0])
		dstRaw := ""
		if len(parts) >= 2 {
			dstRaw = strings.TrimSpace(parts[1])
		}
		if srcRaw == "" && dstRaw == "" {
			continue
		}
		valid := true
		if srcRaw != "" {
			qa := ClassifyQuery(srcRaw)
			if qa.Kind == KindInvalid {
				valid = false
			}
			q.Src = &qa
		}
		if dstRaw != "" {
			qa := ClassifyQuery(dstRaw)
			if qa.Kind == KindInvalid {
				valid = false
			}
			q.Dst = &qa
		}
		if valid {
			queries = append(queries, q)
		}
	}
	return queries
}

// LookupResult is the two views of a lookup run.
type LookupResult struct {
	All                string
	WithoutIneffectual string
}

// Lookup matches every query against the current flattened rows and emits
// the all-matches and without-ineffectual views.
func Lookup(store *model.Store, rows []model.Row, listText string, opts LookupOptions) LookupResult {
	queries := ParseLookupList(listText)

	var all, effective []string
	for _, q := range queries {
		matched := matchQuery(store, rows, q, opts)
		for _, m := range matched {
			all = append(all, m.line)
		}
		effective = append(effective, suppressIneffectual(matched, q)...)
	}
	return LookupResult{
		All:                strings.Join(all, CRLF),
		WithoutIneffectual: strings.Join(effective, CRLF),
	}
}

type matchedRow struct {
	row  model.Row
	line string
}

func matchQuery(store *model.Store, rows []model.Row, q LookupQuery, opts LookupOptions) []matchedRow {
	prefix := queryPrefix(q)
	var matched []matchedRow
	for i := range rows {
		row := &rows[i]
		dom, ok := store.Get(row.Dom)
		if !ok {
			dom = model.NewDomain(row.Dom)
		}
		if q.Src != nil && !decide(dom, row.SrcAddr, *q.Src, row.SrcNeg == "true", opts) {
			continue
		}
		if q.Dst != nil {
			if !decide(dom, row.DstAddr, *q.Dst, row.DstNeg == "true", opts) {
				continue
			}
			// The service-destination qualifier further narrows the
			// destination; it never replaces it.
			if row.SDAddr != "0/0" && row.SDAddr != model.Placeholder && row.SDAddr != "" {
				if !decide(dom, row.SDAddr, *q.Dst, row.SvcNeg == "true", opts) {
					continue
				}
			}
		}
		matched = append(matched, matchedRow{row: *row, line: prefix + "," + row.CSV()})
	}
	return matched
}

func queryPrefix(q LookupQuery) string {
	switch {
	case q.Src != nil && q.Dst != nil:
		return "from_" + q.Src.Display() + "_to_" + q.Dst.Display()
	case q.Src != nil:
		return "from_" + q.Src.Display()
	default:
		return "to_" + q.Dst.Display()
	}
}

// decide applies the per-stored-value decision with negation handling.
func decide(dom *model.Domain, stored string, q QueryAddr, negate bool, opts LookupOptions) bool {
	return rawMatch(dom, stored, q, opts) != negate
}

func rawMatch(dom *model.Domain, stored string, q QueryAddr, opts LookupOptions) bool {
	// A family-wide "all" query matches every stored value of its family,
	// named or literal.
	switch q.Kind {
	case KindV4:
		if q.Token == ipaddr.AllV4 && namesV4Value(dom, stored) {
			return true
		}
	case KindV6:
		if q.Token == ipaddr.AllV6 && namesV6Value(dom, stored) {
			return true
		}
	}

	switch q.Kind {
	case KindGeo:
		if strings.HasPrefix(stored, "geo:") {
			return stored[len("geo:"):] == q.Token
		}
		return opts.FqdnGeoMatchAll
	case KindFQDN:
		if strings.HasPrefix(stored, "fqdn:") {
			return fqdnMatch(stored[len("fqdn:"):], q.Token)
		}
		return opts.FqdnGeoMatchAll
	case KindV4:
		if strings.HasPrefix(stored, "geo:") || strings.HasPrefix(stored, "fqdn:") || strings.ContainsRune(stored, ':') {
			return opts.FqdnGeoMatchAll
		}
		switch {
		case strings.ContainsRune(stored, '-'):
			return ipaddr.V4InRange(q.Token, stored)
		case ipaddr.IsWildcardV4(stored):
			return ipaddr.V4InWildcard(q.Token, stored)
		case strings.ContainsRune(stored, '/'):
			return ipaddr.V4InCIDR(q.Token, stored)
		}
		return false
	case KindV6:
		if strings.HasPrefix(stored, "geo:") || strings.HasPrefix(stored, "fqdn:") || !strings.ContainsRune(stored, ':') {
			return opts.FqdnGeoMatchAll
		}
		switch {
		case strings.ContainsRune(stored, '-'):
			return ipaddr.V6InRange(q.Token, stored)
		case strings.ContainsRune(stored, '/'):
			return ipaddr.V6InCIDR(q.Token, stored)
		}
		return false
	}
	return false
}

// namesV4Value reports whether the stored token is an IPv4-shaped value or
// names an entry in the domain's IPv4 tables.
func namesV4Value(dom *model.Domain, stored string) bool {
	if ipaddr.IsV4Value(stored) {
		return true
	}
	for _, t := range []*model.Table{dom.Addr4, dom.AddrGrp4, dom.Mcast4} {
		if _, ok := t.Get(stored); ok {
			return true
		}
	}
	return false
}

func namesV6Value(dom *model.Domain, stored string) bool {
	if ipaddr.IsV6Value(stored) {
		return true
	}
	for _, t := range []*model.Table{dom.Addr6, dom.AddrGrp6, dom.Mcast6} {
		if _, ok := t.Get(stored); ok {
			return true
		}
	}
	return false
}

// fqdnMatch matches a query hostname against a stored wildcard pattern.
// Each "*" matches a single label segment (a run without dots).
func fqdnMatch(pattern, query string) bool {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`[^.]*`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(query)
}

// suppressIneffectual drops the matched rows that follow a catch-all IP
// deny in the same (domain, type-mode, srcintf, dstintf) scope.
func suppressIneffectual(matched []matchedRow, q LookupQuery) []string {
	dstOnly := q.Src == nil && q.Dst != nil
	dead := make(map[string]bool)
	var out []string
	for _, m := range matched {
		key := m.row.Dom + "\x00" + string(m.row.Mode) + "\x00" + m.row.SrcIntf + "\x00" + m.row.DstIntf
		if dead[key] {
			continue
		}
		out = append(out, m.line)
		if isCatchAllDeny(&m.row, dstOnly) {
			dead[key] = true
		}
	}
	return out
}

// isCatchAllDeny recognizes the family-wide deny that preempts everything
// after it in its scope. A destination-only query keys off the destination
// column alone.
func isCatchAllDeny(r *model.Row, dstOnly bool) bool {
	if r.Action != "deny" || r.Status != "enable" || r.Prot != "ip" {
		return false
	}
	if dstOnly {
		switch r.Mode {
		case model.Mode4to4:
			return r.DstAddr == ipaddr.AllV4
		case model.Mode4to6, model.Mode6to6:
			return r.DstAddr == ipaddr.AllV6
		}
		return false
	}
	switch r.Mode {
	case model.Mode4to4:
		return r.SrcAddr == ipaddr.AllV4 && r.DstAddr == ipaddr.AllV4
	case model.Mode6to6:
		return r.SrcAddr == ipaddr.AllV6 && r.DstAddr == ipaddr.AllV6
	case model.Mode4to6:
		return r.SrcAddr == ipaddr.AllV4 && r.DstAddr == ipaddr.AllV6
	}
	return false
}
