package ipaddr

import (
	"fmt"
	"strconv"
	"strings"
)

// AllV6 is the canonical "all addresses" IPv6 token.
const AllV6 = "0000:0000:0000:0000:0000:0000:0000:0000/0"

// ExpandIPv6 normalizes an IPv6 literal to eight zero-padded lowercase
// hextets. Accepted forms: uncompressed, "::"-compressed (at most one), and
// IPv4 tails ("::a.b.c.d", "::ffff:a.b.c.d"). Anything else returns "".
func ExpandIPv6(s string) string {
	if s == "" || strings.Count(s, "::") > 1 {
		return ""
	}

	hadV4Tail := false
	if i := strings.LastIndexByte(s, ':'); i >= 0 && strings.IndexByte(s[i+1:], '.') >= 0 {
		v4, ok := ParseIPv4(s[i+1:])
		if !ok {
			return ""
		}
		hadV4Tail = true
		s = s[:i+1] + fmt.Sprintf("%x:%x", v4>>16, v4&0xffff)
	} else if strings.IndexByte(s, '.') >= 0 {
		return ""
	}

	var groups []string
	if i := strings.Index(s, "::"); i >= 0 {
		left := splitHextets(s[:i])
		right := splitHextets(s[i+2:])
		if left == nil || right == nil {
			return ""
		}
		fill := 8 - len(left) - len(right)
		if fill < 1 {
			return ""
		}
		groups = append(groups, left...)
		for j := 0; j < fill; j++ {
			groups = append(groups, "0")
		}
		groups = append(groups, right...)
	} else {
		groups = splitHextets(s)
		if len(groups) != 8 {
			return ""
		}
	}

	vals := make([]uint16, 8)
	for i, g := range groups {
		n, err := strconv.ParseUint(g, 16, 16)
		if err != nil {
			return ""
		}
		vals[i] = uint16(n)
	}

	// An IPv4 tail is only valid in the compatible and mapped forms: the
	// leading hextets must be zero, with ffff optionally in the sixth slot.
	if hadV4Tail {
		for i := 0; i < 5; i++ {
			if vals[i] != 0 {
				return ""
			}
		}
		if vals[5] != 0 && vals[5] != 0xffff {
			return ""
		}
	}

	out := make([]string, 8)
	for i, v := range vals {
		out[i] = fmt.Sprintf("%04x", v)
	}
	return strings.Join(out, ":")
}

func splitHextets(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ":")
	for _, p := range parts {
		if p == "" || len(p) > 4 {
			return nil
		}
		for _, c := range p {
			if !isHexDigit(byte(c)) {
				return nil
			}
		}
	}
	return parts
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func v6Hextets(expanded string) ([8]uint16, bool) {
	var h [8]uint16
	parts := strings.Split(expanded, ":")
	if len(parts) != 8 {
		return h, false
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 16, 16)
		if err != nil {
			return h, false
		}
		h[i] = uint16(n)
	}
	return h, true
}

func formatV6(h [8]uint16) string {
	parts := make([]string, 8)
	for i, v := range h {
		parts[i] = fmt.Sprintf("%04x", v)
	}
	return strings.Join(parts, ":")
}

// V6Network returns the first and last expanded addresses of the subnet
// formed by the expanded address and prefix length.
func V6Network(expanded string, prefix int) (start, end string) {
	h, ok := v6Hextets(expanded)
	if !ok {
		return "", ""
	}
	if prefix < 0 {
		prefix = 0
	}
	if prefix > 128 {
		prefix = 128
	}
	var lo, hi [8]uint16
	for i := 0; i < 8; i++ {
		bits := prefix - i*16
		var mask uint16
		switch {
		case bits >= 16:
			mask = 0xffff
		case bits <= 0:
			mask = 0
		default:
			mask = ^uint16(0) << (16 - bits)
		}
		lo[i] = h[i] & mask
		hi[i] = h[i] | ^mask
	}
	return formatV6(lo), formatV6(hi)
}

// SplitV6Token splits "<expanded>/p" or a bare expanded host into its
// address and prefix length. A bare host is a /128.
func SplitV6Token(token string) (addr string, prefix int, ok bool) {
	addr = token
	prefix = 128
	if i := strings.IndexByte(token, '/'); i >= 0 {
		addr = token[:i]
		p, err := strconv.Atoi(token[i+1:])
		if err != nil || p < 0 || p > 128 {
			return "", 0, false
		}
		prefix = p
	}
	if _, valid := v6Hextets(addr); !valid {
		return "", 0, false
	}
	return addr, prefix, true
}

// v6Bounds returns the expanded address span covered by a host-or-prefix
// token. A token with host bits set collapses to the single address.
func v6Bounds(token string) (lo, hi string, ok bool) {
	addr, prefix, ok := SplitV6Token(token)
	if !ok {
		return "", "", false
	}
	start, end := V6Network(addr, prefix)
	if start != addr {
		return addr, addr, true
	}
	return start, end, true
}

// V6InCIDR reports whether the host-or-prefix token lies entirely inside
// the stored subnet token "<expanded>/p". Expanded hextet strings compare
// lexically in numeric order.
func V6InCIDR(test, seg string) bool {
	segAddr, segPrefix, ok := SplitV6Token(seg)
	if !ok {
		return false
	}
	testAddr, testPrefix, ok := SplitV6Token(test)
	if !ok {
		return false
	}
	if start, _ := V6Network(testAddr, testPrefix); start != testAddr {
		testPrefix = 128
	}
	if testPrefix < segPrefix {
		return false
	}
	testNet, _ := V6Network(testAddr, segPrefix)
	segNet, _ := V6Network(segAddr, segPrefix)
	return testNet == segNet
}

// V6InRange reports whether the host-or-prefix token lies entirely inside
// the stored range token "<expanded>-<expanded>".
func V6InRange(test, rng string) bool {
	i := strings.IndexByte(rng, '-')
	if i < 0 {
		return false
	}
	rlo, rhi := rng[:i], rng[i+1:]
	if _, ok := v6Hextets(rlo); !ok {
		return false
	}
	if _, ok := v6Hextets(rhi); !ok {
		return false
	}
	lo, hi, ok := v6Bounds(test)
	if !ok {
		return false
	}
	return rlo <= lo && hi <= rhi
}

// IsV6Value reports whether token has one of the canonical IPv6 shapes:
// expanded subnet or expanded range. A bare expanded address also counts.
func IsV6Value(token string) bool {
	if i := strings.IndexByte(token, '-'); i >= 0 {
		_, ok1 := v6Hextets(token[:i])
		_, ok2 := v6Hextets(token[i+1:])
		return ok1 && ok2
	}
	_, _, ok := SplitV6Token(token)
	return ok
}
