package ipaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandIPv6(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"::", "0000:0000:0000:0000:0000:0000:0000:0000"},
		{"::1", "0000:0000:0000:0000:0000:0000:0000:0001"},
		{"2001:db8::", "2001:0db8:0000:0000:0000:0000:0000:0000"},
		{"2001:db8::1:2", "2001:0db8:0000:0000:0000:0000:0001:0002"},
		{"2001:0db8:0000:0000:0000:0000:0000:0001", "2001:0db8:0000:0000:0000:0000:0000:0001"},
		{"2001:DB8::A", "2001:0db8:0000:0000:0000:0000:0000:000a"},
		{"fe80::1%eth0", ""},
		{"::ffff:192.168.0.1", "0000:0000:0000:0000:0000:ffff:c0a8:0001"},
		{"::192.168.0.1", "0000:0000:0000:0000:0000:0000:c0a8:0001"},
		{"2001:db8::192.168.0.1", ""}, // non-zero hextets before an IPv4 tail
		{"::abcd:192.168.0.1", ""},    // sixth hextet must be zero or ffff
		{"1:2:3:4:5:6:7:8:9", ""},
		{"1:2:3", ""},
		{"1::2::3", ""},
		{"12345::", ""}, // more than four hex digits
		{"::1.2.3.256", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandIPv6(tt.in), "expand %q", tt.in)
	}
}

func TestExpandIPv6Idempotent(t *testing.T) {
	for _, s := range []string{"::", "2001:db8::1", "fe80::aaaa:bbbb", "::ffff:10.0.0.1"} {
		once := ExpandIPv6(s)
		assert.Equal(t, once, ExpandIPv6(once), "expand(expand(%q))", s)
	}
}

func TestV6Network(t *testing.T) {
	start, end := V6Network(ExpandIPv6("2001:db8::1"), 64)
	assert.Equal(t, "2001:0db8:0000:0000:0000:0000:0000:0000", start)
	assert.Equal(t, "2001:0db8:0000:0000:ffff:ffff:ffff:ffff", end)

	start, end = V6Network(ExpandIPv6("::"), 0)
	assert.Equal(t, "0000:0000:0000:0000:0000:0000:0000:0000", start)
	assert.Equal(t, "ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffff", end)

	// Prefix inside a hextet.
	start, end = V6Network(ExpandIPv6("2001:db8::"), 28)
	assert.Equal(t, "2001:0db0:0000:0000:0000:0000:0000:0000", start)
	assert.Equal(t, "2001:0dbf:ffff:ffff:ffff:ffff:ffff:ffff", end)
}

func TestV6InCIDR(t *testing.T) {
	seg := ExpandIPv6("2001:db8::") + "/32"
	tests := []struct {
		test string
		want bool
	}{
		{ExpandIPv6("2001:db8::1"), true},
		{ExpandIPv6("2001:db8:ffff::1"), true},
		{ExpandIPv6("2001:db9::1"), false},
		{ExpandIPv6("2001:db8::") + "/48", true},
		{ExpandIPv6("2001:db8::") + "/16", false},
		{ExpandIPv6("::1"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, V6InCIDR(tt.test, seg), "%s in %s", tt.test, seg)
	}

	// Everything lies inside the all-zero /0.
	all := AllV6
	assert.True(t, V6InCIDR(ExpandIPv6("fe80::1"), all))
}

func TestV6InRange(t *testing.T) {
	rng := ExpandIPv6("2001:db8::10") + "-" + ExpandIPv6("2001:db8::20")
	assert.True(t, V6InRange(ExpandIPv6("2001:db8::10"), rng))
	assert.True(t, V6InRange(ExpandIPv6("2001:db8::1f"), rng))
	assert.False(t, V6InRange(ExpandIPv6("2001:db8::21"), rng))
	assert.False(t, V6InRange(ExpandIPv6("2001:db8::f"), rng))

	single := ExpandIPv6("::5") + "-" + ExpandIPv6("::5")
	assert.True(t, V6InRange(ExpandIPv6("::5"), single))
	assert.False(t, V6InRange(ExpandIPv6("::6"), single))
}
