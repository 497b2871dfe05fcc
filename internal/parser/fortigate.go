// Package parser reads FortiGate CLI-dump configuration into the object
// store. The reader is line-oriented and stack-based: each config frame
// routes its edit/set/next lines to the stanza handler registered for the
// frame's path, and unrecognized stanzas are skipped without diagnostics.
package parser

import (
	"strings"

	"fortigate-policy-flattener/internal/model"
)

// handler is the three-phase contract of a stanza handler: Begin starts a
// fresh record, Set assigns recognized fields, End normalizes and installs
// the record. End must tolerate being called with nothing pending.
type handler interface {
	Begin(dom *model.Domain, name string)
	Set(line string, tokens []string)
	Unset(tokens []string)
	End()
}

// ConfigParser builds a Store from a configuration text blob. SeedServices,
// when set, pre-populates the service-custom table of every new domain.
type ConfigParser struct {
	SeedServices map[string]*model.TokenSet

	store    *model.Store
	seeded   map[string]bool
	handlers map[string]handler
}

func NewConfigParser() *ConfigParser {
	return &ConfigParser{}
}

// lineBreaks folds CR, LF, and CRLF line endings to LF.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

type frame struct {
	path   string
	h      handler
	isVDOM bool
}

// Parse consumes the whole blob and returns a fresh store; a prior parse's
// store is discarded wholesale.
func (p *ConfigParser) Parse(text string) *model.Store {
	p.store = model.NewStore()
	p.seeded = make(map[string]bool)
	p.handlers = map[string]handler{
		"firewall address":            &addressHandler{v6: false},
		"firewall address6":           &addressHandler{v6: true},
		"firewall addrgrp":            &addrGrpHandler{v6: false},
		"firewall addrgrp6":           &addrGrpHandler{v6: true},
		"firewall multicast-address":  &mcastAddressHandler{},
		"firewall multicast-address6": &mcastAddress6Handler{},
		"firewall service custom":     &serviceCustomHandler{},
		"firewall service group":      &serviceGroupHandler{},
		"firewall policy":             &policyHandler{mode: model.Mode4to4},
		"firewall policy6":            &policyHandler{mode: model.Mode6to6},
		"firewall policy64":           &policyHandler{mode: model.Mode6to4},
		"firewall policy46":           &policyHandler{mode: model.Mode4to6},
		"firewall multicast-policy":   &policyHandler{mode: model.Mode4to4m},
		"firewall multicast-policy6":  &policyHandler{mode: model.Mode6to6m},
	}

	var stack []frame
	vdom := ""

	for _, raw := range strings.Split(lineBreaks.Replace(text), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.Fields(line)

		switch tokens[0] {
		case "config":
			path := strings.Join(tokens[1:], " ")
			stack = append(stack, frame{
				path:   path,
				h:      p.handlers[path],
				isVDOM: path == "vdom",
			})
		case "end":
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.isVDOM {
				vdom = ""
			}
			if top.h != nil {
				// Finalize an edit left open by a missing "next".
				top.h.End()
			}
		case "edit":
			if len(stack) == 0 || len(tokens) < 2 {
				continue
			}
			top := stack[len(stack)-1]
			name := unquote(strings.Join(tokens[1:], " "))
			if top.isVDOM {
				vdom = name
				p.domain(vdom)
			} else if top.h != nil {
				top.h.Begin(p.domain(vdom), name)
			}
		case "set":
			if h := activeHandler(stack); h != nil && len(tokens) >= 2 {
				h.Set(line, tokens)
			}
		case "unset":
			if h := activeHandler(stack); h != nil && len(tokens) >= 2 {
				h.Unset(tokens)
			}
		case "next":
			if h := activeHandler(stack); h != nil {
				h.End()
			}
		}
	}

	// Finalize anything still open at EOF.
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].h != nil {
			stack[i].h.End()
		}
	}
	return p.store
}

func activeHandler(stack []frame) handler {
	if len(stack) == 0 {
		return nil
	}
	return stack[len(stack)-1].h
}

func (p *ConfigParser) domain(name string) *model.Domain {
	dom := p.store.Domain(name)
	if p.SeedServices != nil && !p.seeded[name] {
		p.seeded[name] = true
		for svcName, ts := range p.SeedServices {
			dom.SvcCust.Put(svcName, ts.Clone())
		}
	}
	return dom
}

// unquote strips every leading and trailing quote character (" or '), which
// also removes the half-pairs left behind by splitting a member list on
// `" "`. The quotes need not match, more than one pair is removed, and a
// quote character that belongs to the value at either end is removed too.
func unquote(s string) string {
	return strings.Trim(s, `"'`)
}

// valueList dequotes the members of a multi-valued set line. Names with
// embedded spaces survive because the split key is the literal
// quote-space-quote separator.
func valueList(tokens []string) []string {
	raw := strings.TrimSpace(strings.Join(tokens, " "))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, `" "`)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := unquote(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// setValue dequotes a single-valued set line, preserving embedded spaces.
func setValue(tokens []string) string {
	return unquote(strings.Join(tokens, " "))
}
