package parser

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"fortigate-policy-flattener/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MariaDBProvider loads firewall objects and policies from a database dump
// of the configuration instead of a CLI text blob. Rows are replayed
// through the same stanza handlers the text parser uses, so normalization
// and expansion behave identically.
//
// Expected tables (all with a vdom column; '' is the global scope):
//
//	fw_address        (vdom, name, type, subnet, start_ip, end_ip, wildcard, fqdn, country, comment)
//	fw_address6       (vdom, name, type, ip6, start_ip, end_ip, fqdn, comment)
//	fw_mcast_address  (vdom, name, type, subnet, start_ip, end_ip, comment)
//	fw_mcast_address6 (vdom, name, ip6, comment)
//	fw_addrgrp        (vdom, name, members, comment)   -- members is a JSON array
//	fw_addrgrp6       (vdom, name, members, comment)
//	fw_service_custom (vdom, name, protocol, protocol_number, icmptype, icmpcode,
//	                   tcp_portrange, udp_portrange, sctp_portrange, iprange, fqdn, comment)
//	fw_service_group  (vdom, name, members, comment)
//	fw_policy         (vdom, policy_type, policy_id, name, srcintf, dstintf, srcaddr,
//	                   dstaddr, service, action, status, schedule, comments,
//	                   srcaddr_negate, dstaddr_negate, service_negate,
//	                   protocol, start_port, end_port, seq)
type MariaDBProvider struct {
	db  *sql.DB
	fab string

	parser *ConfigParser
	store  *model.Store
}

// NewMariaDBProvider opens the connection. fab, when non-empty, restricts
// every query to rows with that fab_name.
func NewMariaDBProvider(dsn, fab string) (*MariaDBProvider, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &MariaDBProvider{db: db, fab: fab}, nil
}

func (p *MariaDBProvider) Close() {
	p.db.Close()
}

// Load reads every table in dependency order and returns the populated
// store. SeedServices behaves as in ConfigParser.
func (p *MariaDBProvider) Load(seed map[string]*model.TokenSet) (*model.Store, error) {
	p.parser = NewConfigParser()
	p.parser.SeedServices = seed
	p.parser.store = model.NewStore()
	p.parser.seeded = make(map[string]bool)
	p.store = p.parser.store

	if err := p.loadAddresses(false); err != nil {
		return nil, fmt.Errorf("failed to load addresses: %w", err)
	}
	if err := p.loadAddresses(true); err != nil {
		return nil, fmt.Errorf("failed to load IPv6 addresses: %w", err)
	}
	if err := p.loadMulticast(); err != nil {
		return nil, fmt.Errorf("failed to load multicast addresses: %w", err)
	}
	if err := p.loadMulticast6(); err != nil {
		return nil, fmt.Errorf("failed to load IPv6 multicast addresses: %w", err)
	}
	if err := p.loadAddressGroups(false); err != nil {
		return nil, fmt.Errorf("failed to load address groups: %w", err)
	}
	if err := p.loadAddressGroups(true); err != nil {
		return nil, fmt.Errorf("failed to load IPv6 address groups: %w", err)
	}
	if err := p.loadServiceCustoms(); err != nil {
		return nil, fmt.Errorf("failed to load custom services: %w", err)
	}
	if err := p.loadServiceGroups(); err != nil {
		return nil, fmt.Errorf("failed to load service groups: %w", err)
	}
	if err := p.loadPolicies(); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	return p.store, nil
}

func (p *MariaDBProvider) where() (string, []any) {
	if p.fab == "" {
		return "", nil
	}
	return " WHERE fab_name = ?", []any{p.fab}
}

// replay drives one handler through a Begin/Set/End cycle with the given
// field values, reusing the text parser's quoting semantics.
func (p *MariaDBProvider) replay(h handler, vdom, name string, fields [][2]string) {
	h.Begin(p.parser.domain(vdom), name)
	for _, kv := range fields {
		if kv[1] == "" {
			continue
		}
		tokens := []string{"set", kv[0], `"` + kv[1] + `"`}
		h.Set(strings.Join(tokens, " "), tokens)
	}
	h.End()
}

// quoteMembers renders a member list the way a config line carries it, so
// valueList recovers names with embedded spaces.
func quoteMembers(membersJSON string) string {
	var members []string
	if err := json.Unmarshal([]byte(membersJSON), &members); err != nil || len(members) == 0 {
		return ""
	}
	return `"` + strings.Join(members, `" "`) + `"`
}

func (p *MariaDBProvider) loadAddresses(v6 bool) error {
	table, cols := "fw_address", "vdom, name, type, subnet, start_ip, end_ip, wildcard, fqdn, country, comment"
	if v6 {
		table, cols = "fw_address6", "vdom, name, type, ip6, start_ip, end_ip, '', fqdn, '', comment"
	}
	where, args := p.where()
	rows, err := p.db.Query("SELECT "+cols+" FROM "+table+where, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var vdom, name string
		var typ, subnet, startIP, endIP, wildcard, fqdn, country, comment sql.NullString
		if err := rows.Scan(&vdom, &name, &typ, &subnet, &startIP, &endIP, &wildcard, &fqdn, &country, &comment); err != nil {
			return err
		}
		subnetKey := "subnet"
		if v6 {
			subnetKey = "ip6"
		}
		p.replay(&addressHandler{v6: v6}, vdom, name, [][2]string{
			{"type", typ.String},
			{subnetKey, subnet.String},
			{"start-ip", startIP.String},
			{"end-ip", endIP.String},
			{"wildcard", wildcard.String},
			{"fqdn", fqdn.String},
			{"country", country.String},
			{"comment", comment.String},
		})
	}
	return rows.Err()
}

func (p *MariaDBProvider) loadMulticast() error {
	where, args := p.where()
	rows, err := p.db.Query("SELECT vdom, name, type, subnet, start_ip, end_ip, comment FROM fw_mcast_address"+where, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var vdom, name string
		var typ, subnet, startIP, endIP, comment sql.NullString
		if err := rows.Scan(&vdom, &name, &typ, &subnet, &startIP, &endIP, &comment); err != nil {
			return err
		}
		p.replay(&mcastAddressHandler{}, vdom, name, [][2]string{
			{"type", typ.String},
			{"subnet", subnet.String},
			{"start-ip", startIP.String},
			{"end-ip", endIP.String},
			{"comment", comment.String},
		})
	}
	return rows.Err()
}

func (p *MariaDBProvider) loadMulticast6() error {
	where, args := p.where()
	rows, err := p.db.Query("SELECT vdom, name, ip6, comment FROM fw_mcast_address6"+where, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var vdom, name string
		var ip6, comment sql.NullString
		if err := rows.Scan(&vdom, &name, &ip6, &comment); err != nil {
			return err
		}
		p.replay(&mcastAddress6Handler{}, vdom, name, [][2]string{
			{"ip6", ip6.String},
			{"comment", comment.String},
		})
	}
	return rows.Err()
}

func (p *MariaDBProvider) loadAddressGroups(v6 bool) error {
	table := "fw_addrgrp"
	if v6 {
		table = "fw_addrgrp6"
	}
	where, args := p.where()
	rows, err := p.db.Query("SELECT vdom, name, members, comment FROM "+table+where, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var vdom, name string
		var members, comment sql.NullString
		if err := rows.Scan(&vdom, &name, &members, &comment); err != nil {
			return err
		}
		p.replay(&addrGrpHandler{v6: v6}, vdom, name, [][2]string{
			{"member", quoteMembers(members.String)},
			{"comment", comment.String},
		})
	}
	return rows.Err()
}

func (p *MariaDBProvider) loadServiceCustoms() error {
	where, args := p.where()
	rows, err := p.db.Query("SELECT vdom, name, protocol, protocol_number, icmptype, icmpcode, "+
		"tcp_portrange, udp_portrange, sctp_portrange, iprange, fqdn, comment FROM fw_service_custom"+where, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var vdom, name string
		var protocol, protoNum, icmpType, icmpCode, tcpPR, udpPR, sctpPR, iprange, fqdn, comment sql.NullString
		if err := rows.Scan(&vdom, &name, &protocol, &protoNum, &icmpType, &icmpCode,
			&tcpPR, &udpPR, &sctpPR, &iprange, &fqdn, &comment); err != nil {
			return err
		}
		p.replay(&serviceCustomHandler{}, vdom, name, [][2]string{
			{"protocol", protocol.String},
			{"protocol-number", protoNum.String},
			{"icmptype", icmpType.String},
			{"icmpcode", icmpCode.String},
			{"tcp-portrange", tcpPR.String},
			{"udp-portrange", udpPR.String},
			{"sctp-portrange", sctpPR.String},
			{"iprange", iprange.String},
			{"fqdn", fqdn.String},
			{"comment", comment.String},
		})
	}
	return rows.Err()
}

func (p *MariaDBProvider) loadServiceGroups() error {
	where, args := p.where()
	rows, err := p.db.Query("SELECT vdom, name, members, comment FROM fw_service_group"+where, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var vdom, name string
		var members, comment sql.NullString
		if err := rows.Scan(&vdom, &name, &members, &comment); err != nil {
			return err
		}
		p.replay(&serviceGroupHandler{}, vdom, name, [][2]string{
			{"member", quoteMembers(members.String)},
			{"comment", comment.String},
		})
	}
	return rows.Err()
}

func (p *MariaDBProvider) loadPolicies() error {
	where, args := p.where()
	rows, err := p.db.Query("SELECT vdom, policy_type, policy_id, name, srcintf, dstintf, "+
		"srcaddr, dstaddr, service, action, status, schedule, comments, "+
		"srcaddr_negate, dstaddr_negate, service_negate, protocol, start_port, end_port "+
		"FROM fw_policy"+where+" ORDER BY seq ASC", args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	modes := make(map[string]model.TypeMode, len(model.ModeOrder))
	for _, m := range model.ModeOrder {
		modes[string(m)] = m
	}

	for rows.Next() {
		var vdom, polType, polID string
		var name, srcIntf, dstIntf, srcAddr, dstAddr, service sql.NullString
		var action, status, schedule, comments sql.NullString
		var srcNeg, dstNeg, svcNeg, protocol, startPort, endPort sql.NullString
		if err := rows.Scan(&vdom, &polType, &polID, &name, &srcIntf, &dstIntf,
			&srcAddr, &dstAddr, &service, &action, &status, &schedule, &comments,
			&srcNeg, &dstNeg, &svcNeg, &protocol, &startPort, &endPort); err != nil {
			return err
		}
		mode, ok := modes[polType]
		if !ok {
			continue
		}
		p.replay(&policyHandler{mode: mode}, vdom, polID, [][2]string{
			{"name", name.String},
			{"srcintf", quoteMembers(srcIntf.String)},
			{"dstintf", quoteMembers(dstIntf.String)},
			{"srcaddr", quoteMembers(srcAddr.String)},
			{"dstaddr", quoteMembers(dstAddr.String)},
			{"service", quoteMembers(service.String)},
			{"action", action.String},
			{"status", status.String},
			{"schedule", schedule.String},
			{"comments", comments.String},
			{"srcaddr-negate", srcNeg.String},
			{"dstaddr-negate", dstNeg.String},
			{"service-negate", svcNeg.String},
			{"protocol", protocol.String},
			{"start-port", startPort.String},
			{"end-port", endPort.String},
		})
	}
	return rows.Err()
}
