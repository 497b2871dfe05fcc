// Package factorysvc carries the FortiGate factory-default service objects.
// Configuration dumps routinely reference ALL, HTTP, PING and friends
// without defining them; seeding these into a domain lets such policies
// flatten to concrete tokens instead of passing the name through.
package factorysvc

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"strings"

	_ "embed"

	"fortigate-policy-flattener/internal/model"
)

//go:embed factory_services.csv
var factoryServicesData string

var registry map[string]*model.TokenSet

func init() {
	registry = make(map[string]*model.TokenSet)
	reader := csv.NewReader(bytes.NewBufferString(factoryServicesData))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded factory_services.csv: %v", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded factory_services.csv: %v", err)
		}
		if len(record) < 2 {
			continue
		}
		name := strings.TrimSpace(record[0])
		if name == "" {
			continue
		}
		ts := &model.TokenSet{}
		for _, token := range strings.Fields(record[1]) {
			ts.Add(token)
		}
		if len(record) >= 3 {
			ts.Comment = strings.TrimSpace(record[2])
		}
		for _, v := range ts.Values {
			ts.Classes |= model.ClassifyToken(v)
		}
		registry[name] = ts
	}
}

// Services returns independent copies of the factory-default service
// objects, keyed by name, ready to seed a domain's service-custom table.
func Services() map[string]*model.TokenSet {
	out := make(map[string]*model.TokenSet, len(registry))
	for name, ts := range registry {
		out[name] = ts.Clone()
	}
	return out
}

// Get returns one factory-default service by name.
func Get(name string) (*model.TokenSet, bool) {
	ts, ok := registry[name]
	if !ok {
		return nil, false
	}
	return ts.Clone(), true
}
