package engine_test

import (
	"strings"
	"testing"

	"fortigate-policy-flattener/internal/engine"
	"fortigate-policy-flattener/internal/model"
	"fortigate-policy-flattener/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, lines []string) *model.Store {
	t.Helper()
	return parser.NewConfigParser().Parse(strings.Join(lines, "\n"))
}

func TestFlattenGroupSplitsIntoLeafRows(t *testing.T) {
	store := parse(t, []string{
		"config firewall address",
		"edit \"OBJ1\"",
		"set subnet 192.168.0.1 255.255.255.255",
		"next",
		"edit \"OBJ2\"",
		"set subnet 10.0.0.1 255.255.255.255",
		"next",
		"edit \"OBJ3\"",
		"set subnet 10.1.1.1 255.255.255.255",
		"next",
		"end",
		"config firewall addrgrp",
		"edit \"OGRP1\"",
		"set member \"OBJ2\" \"OBJ3\"",
		"next",
		"end",
		"config firewall service custom",
		"edit \"HTTP\"",
		"set tcp-portrange 80",
		"next",
		"end",
		"config firewall policy",
		"edit 101",
		"set srcintf \"internal1\"",
		"set dstintf \"wan2\"",
		"set srcaddr \"OBJ1\"",
		"set dstaddr \"OGRP1\"",
		"set service \"HTTP\"",
		"set action accept",
		"set schedule \"always\"",
		"next",
		"end",
	})

	rows := engine.FlattenStore(store, engine.FlattenOptions{Addresses: true, Services: true})
	require.Len(t, rows, 2)

	for i, wantDst := range []string{"10.0.0.1/32", "10.1.1.1/32"} {
		r := rows[i]
		assert.Equal(t, "192.168.0.1/32", r.SrcAddr)
		assert.Equal(t, wantDst, r.DstAddr)
		assert.Equal(t, "6", r.Prot)
		assert.Equal(t, "eq/any", r.SrcPort)
		assert.Equal(t, "eq/80", r.DstPort)
		assert.Equal(t, "0/0", r.SDAddr)
		assert.Equal(t, "-/-", r.ITpCd)
		assert.Equal(t, "accept", r.Action)
	}
}

func TestFlattenServiceGroupCartesian(t *testing.T) {
	store := parse(t, []string{
		"config firewall address",
		"edit \"A1\"",
		"set subnet 10.0.1.0/24",
		"next",
		"edit \"A2\"",
		"set subnet 10.0.2.0/24",
		"next",
		"edit \"B1\"",
		"set subnet 10.1.1.0/24",
		"next",
		"edit \"B2\"",
		"set subnet 10.1.2.0/24",
		"next",
		"end",
		"config firewall service custom",
		"edit \"SV_ICMP\"",
		"set protocol ICMP",
		"next",
		"edit \"SV_HTTP\"",
		"set tcp-portrange 80",
		"next",
		"end",
		"config firewall service group",
		"edit \"SRVCG21\"",
		"set member \"SV_ICMP\" \"SV_HTTP\"",
		"next",
		"end",
		"config firewall policy",
		"edit 1",
		"set srcintf \"port1\"",
		"set dstintf \"port2\"",
		"set srcaddr \"A1\" \"A2\"",
		"set dstaddr \"B1\" \"B2\"",
		"set service \"SRVCG21\"",
		"set action accept",
		"next",
		"end",
	})

	normalized := engine.NormalizedRows(store)
	require.Len(t, normalized, 4, "2 srcaddr * 2 dstaddr * 1 service")

	rows := engine.FlattenStore(store, engine.FlattenOptions{Addresses: true, Services: true})
	require.Len(t, rows, 8, "2 * 2 addresses * 2 service leaves")

	// Each address pair expands into the ICMP row then the TCP row.
	icmp := rows[0]
	assert.Equal(t, "1", icmp.Prot)
	assert.Equal(t, "any/any", icmp.ITpCd)
	assert.Equal(t, "-/-", icmp.SrcPort)
	assert.Equal(t, "-/-", icmp.DstPort)
	assert.Equal(t, "-", icmp.SDAddr)

	tcp := rows[1]
	assert.Equal(t, "6", tcp.Prot)
	assert.Equal(t, "eq/any", tcp.SrcPort)
	assert.Equal(t, "eq/80", tcp.DstPort)
	assert.Equal(t, "-/-", tcp.ITpCd)
	assert.Equal(t, icmp.SrcAddr, tcp.SrcAddr)
	assert.Equal(t, icmp.DstAddr, tcp.DstAddr)
}

func TestFlattenTogglesAreIndependent(t *testing.T) {
	config := []string{
		"config firewall address",
		"edit \"N1\"",
		"set subnet 10.0.0.0/24",
		"next",
		"end",
		"config firewall service custom",
		"edit \"S1\"",
		"set tcp-portrange 443",
		"next",
		"end",
		"config firewall policy",
		"edit 1",
		"set srcintf \"p1\"",
		"set dstintf \"p2\"",
		"set srcaddr \"N1\"",
		"set dstaddr \"N1\"",
		"set service \"S1\"",
		"next",
		"end",
	}

	store := parse(t, config)

	addrOnly := engine.FlattenStore(store, engine.FlattenOptions{Addresses: true})
	require.Len(t, addrOnly, 1)
	assert.Equal(t, "10.0.0.0/24", addrOnly[0].SrcAddr)
	assert.Equal(t, "S1", addrOnly[0].Prot, "service stays named")

	svcOnly := engine.FlattenStore(store, engine.FlattenOptions{Services: true})
	require.Len(t, svcOnly, 1)
	assert.Equal(t, "N1", svcOnly[0].SrcAddr, "address stays named")
	assert.Equal(t, "6", svcOnly[0].Prot)
	assert.Equal(t, "eq/443", svcOnly[0].DstPort)

	neither := engine.FlattenStore(store, engine.FlattenOptions{})
	require.Len(t, neither, 1)
	assert.Equal(t, "N1", neither[0].SrcAddr)
	assert.Equal(t, "S1", neither[0].Prot)
}

func TestFlattenMulticastUsesMulticastTableForDestination(t *testing.T) {
	store := parse(t, []string{
		"config firewall address",
		"edit \"SRC\"",
		"set subnet 10.0.0.0/24",
		"next",
		"end",
		"config firewall multicast-address",
		"edit \"MC1\"",
		"set start-ip 224.0.0.1",
		"set end-ip 224.0.0.10",
		"next",
		"end",
		"config firewall multicast-policy",
		"edit 1",
		"set srcintf \"p1\"",
		"set dstintf \"p2\"",
		"set srcaddr \"SRC\"",
		"set dstaddr \"MC1\"",
		"set protocol 17",
		"next",
		"end",
	})

	rows := engine.FlattenStore(store, engine.FlattenOptions{Addresses: true, Services: true})
	require.Len(t, rows, 1)
	assert.Equal(t, "10.0.0.0/24", rows[0].SrcAddr)
	assert.Equal(t, "224.0.0.1-224.0.0.10", rows[0].DstAddr)
	assert.Equal(t, "17", rows[0].Prot, "multicast protocol column is already literal")
}

func TestFlattenUnknownNamesPassThrough(t *testing.T) {
	store := parse(t, []string{
		"config firewall policy",
		"edit 1",
		"set srcintf \"p1\"",
		"set dstintf \"p2\"",
		"set srcaddr \"NOSUCH\"",
		"set dstaddr \"NOSUCH\"",
		"set service \"NOSVC\"",
		"next",
		"end",
	})

	rows := engine.FlattenStore(store, engine.FlattenOptions{Addresses: true, Services: true})
	require.Len(t, rows, 1)
	assert.Equal(t, "NOSUCH", rows[0].SrcAddr)
	assert.Equal(t, "NOSVC", rows[0].Prot)
}

func TestRowsTextJoinsWithCRLF(t *testing.T) {
	rows := []model.Row{{Dom: "a"}, {Dom: "b"}}
	text := engine.RowsText(rows)
	parts := strings.Split(text, "\r\n")
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "a,"))
	assert.True(t, strings.HasPrefix(parts[1], "b,"))
}

func TestAddressAndServiceListings(t *testing.T) {
	store := parse(t, []string{
		"config firewall address",
		"edit \"N1\"",
		"set subnet 10.0.0.0/24",
		"set comment \"lan\"",
		"next",
		"end",
		"config firewall service custom",
		"edit \"S1\"",
		"set tcp-portrange 80",
		"next",
		"end",
	})

	addr := engine.AddressListing(store)
	assert.Equal(t, ",address4,N1,10.0.0.0/24,lan", addr)

	svc := engine.ServiceListing(store)
	assert.Equal(t, ",service_custom,S1,6/eq/any/eq/80;0/0,", svc)
}
