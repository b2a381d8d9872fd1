package services

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caselight/caselight-backend/internal/logger"
)

// TermEntry is one canonical legal term with its plain-language gloss.
type TermEntry struct {
	ID               string   `yaml:"id"`
	Term             string   `yaml:"term"`
	Aliases          []string `yaml:"aliases"`
	Definition       string   `yaml:"definition"`
	SimpleDefinition string   `yaml:"simple_definition"`
	Examples         []string `yaml:"examples"`
}

// TermDictionary maps legal vocabulary to definitions. It is immutable
// after construction, so lookups need no locking.
type TermDictionary struct {
	entries []TermEntry
	byKey   map[string]*TermEntry
}

func defaultEntries() []TermEntry {
	return []TermEntry{
		{
			ID:               "indemnify",
			Term:             "indemnify",
			Aliases:          []string{"indemnification", "indemnity", "indemnifies", "hold harmless"},
			Definition:       "To compensate for harm or loss; to secure against legal liability for one's actions.",
			SimpleDefinition: "You promise to pay for any damage or legal costs.",
			Examples:         []string{"Tenant agrees to indemnify landlord against all claims."},
		},
		{
			ID:               "liability",
			Term:             "liability",
			Aliases:          []string{"liable", "liabilities"},
			Definition:       "Legal responsibility for one's acts or omissions.",
			SimpleDefinition: "Being legally responsible if something goes wrong.",
			Examples:         []string{"The company assumes no liability for lost items."},
		},
		{
			ID:               "arbitration",
			Term:             "arbitration",
			Aliases:          []string{"arbitrate", "arbitrator"},
			Definition:       "Resolution of a dispute by a neutral third party outside of court.",
			SimpleDefinition: "Settling disagreements with a private referee instead of a judge.",
			Examples:         []string{"All disputes shall be resolved through binding arbitration."},
		},
		{
			ID:               "force-majeure",
			Term:             "force majeure",
			Aliases:          []string{"act of god"},
			Definition:       "Unforeseeable circumstances that prevent fulfillment of a contract.",
			SimpleDefinition: "Events nobody can control, like natural disasters, that excuse performance.",
			Examples:         []string{"Neither party is liable for delays caused by force majeure."},
		},
	}
}

// NewTermDictionary builds the dictionary from the built-in entries, plus
// the YAML file at path when it is non-empty. File entries with an id
// matching a built-in replace it.
func NewTermDictionary(log *logger.Logger, path string) (*TermDictionary, error) {
	entries := defaultEntries()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read term dictionary: %w", err)
		}
		var doc struct {
			Terms []TermEntry `yaml:"terms"`
		}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse term dictionary: %w", err)
		}
		byID := map[string]int{}
		for i, e := range entries {
			byID[e.ID] = i
		}
		for _, e := range doc.Terms {
			if e.ID == "" || e.Term == "" {
				return nil, fmt.Errorf("term dictionary entry missing id or term")
			}
			if i, ok := byID[e.ID]; ok {
				entries[i] = e
			} else {
				byID[e.ID] = len(entries)
				entries = append(entries, e)
			}
		}
		log.Info("loaded term dictionary overrides", "path", path, "terms", len(doc.Terms))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	d := &TermDictionary{entries: entries, byKey: make(map[string]*TermEntry)}
	for i := range d.entries {
		e := &d.entries[i]
		d.byKey[normalizeTermKey(e.Term)] = e
		for _, a := range e.Aliases {
			d.byKey[normalizeTermKey(a)] = e
		}
	}
	return d, nil
}

func normalizeTermKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Lookup resolves a term or any of its aliases.
func (d *TermDictionary) Lookup(term string) (TermEntry, bool) {
	if e, ok := d.byKey[normalizeTermKey(term)]; ok {
		return *e, true
	}
	return TermEntry{}, false
}

// Entries returns the canonical entries in stable (id) order.
func (d *TermDictionary) Entries() []TermEntry {
	return d.entries
}

// MatchKeys returns every surface form to scan for, longest first so
// multi-word terms win over their substrings, each paired with its entry.
func (d *TermDictionary) MatchKeys() []TermMatchKey {
	keys := make([]TermMatchKey, 0, len(d.byKey))
	for k, e := range d.byKey {
		keys = append(keys, TermMatchKey{Surface: k, Entry: e})
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i].Surface) != len(keys[j].Surface) {
			return len(keys[i].Surface) > len(keys[j].Surface)
		}
		return keys[i].Surface < keys[j].Surface
	})
	return keys
}

type TermMatchKey struct {
	Surface string
	Entry   *TermEntry
}
