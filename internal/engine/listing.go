package engine

import (
	"strings"

	"fortigate-policy-flattener/internal/model"
)

type listingTable struct {
	tag   string
	table func(*model.Domain) *model.Table
}

var addressTables = []listingTable{
	{"address4", func(d *model.Domain) *model.Table { return d.Addr4 }},
	{"multicastaddress4", func(d *model.Domain) *model.Table { return d.Mcast4 }},
	{"addrgrp4", func(d *model.Domain) *model.Table { return d.AddrGrp4 }},
	{"address6", func(d *model.Domain) *model.Table { return d.Addr6 }},
	{"multicastaddress6", func(d *model.Domain) *model.Table { return d.Mcast6 }},
	{"addrgrp6", func(d *model.Domain) *model.Table { return d.AddrGrp6 }},
}

var serviceTables = []listingTable{
	{"service_custom", func(d *model.Domain) *model.Table { return d.SvcCust }},
	{"service_group", func(d *model.Domain) *model.Table { return d.SvcGroup }},
}

// AddressListing emits one CSV line per stored address value:
// <vdom>,<tableTag>,<name>,<value>,<comment>.
func AddressListing(store *model.Store) string {
	return listing(store, addressTables)
}

// ServiceListing emits one CSV line per stored service value.
func ServiceListing(store *model.Store) string {
	return listing(store, serviceTables)
}

func listing(store *model.Store, tables []listingTable) string {
	var lines []string
	for _, domName := range store.Names() {
		dom, _ := store.Get(domName)
		for _, lt := range tables {
			table := lt.table(dom)
			for _, name := range table.Names() {
				ts, _ := table.Get(name)
				for _, value := range ts.Values {
					lines = append(lines, strings.Join([]string{
						domName, lt.tag, name, value, ts.Comment,
					}, ","))
				}
			}
		}
	}
	return strings.Join(lines, CRLF)
}
