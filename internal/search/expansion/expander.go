// Package expansion widens search queries with maritime and EDI
// terminology so terse operator queries still hit the right entries.
package expansion

import (
	"sort"
	"strings"
)

// Expanded is the result of expanding one query.
type Expanded struct {
	// Query is the original query with added terms appended.
	Query string `json:"query"`
	// AddedTerms lists the terms the expansion contributed.
	AddedTerms []string `json:"added_terms,omitempty"`
}

// Expander adds domain synonyms to search queries.
type Expander struct {
	synonyms map[string][]string
	maxTerms int
}

// Config holds expander configuration.
type Config struct {
	// MaxTerms limits how many terms one expansion may add.
	MaxTerms int
	// Extra merges caller-provided synonym groups into the built-ins.
	Extra map[string][]string
}

// DefaultConfig returns the default expansion settings.
func DefaultConfig() Config {
	return Config{MaxTerms: 4}
}

// Terminal operators abbreviate heavily; these groups map the common
// short forms and EDI message names to the words knowledge entries use.
var synonymGroups = [][]string{
	{"cntr", "container"},
	{"vsl", "vessel"},
	{"poc", "port of call"},
	{"eta", "estimated arrival"},
	{"etd", "estimated departure"},
	{"edi", "edifact"},
	{"coparn", "container announcement"},
	{"codeco", "gate movement"},
	{"coarri", "discharge load report"},
	{"baplie", "stowage plan"},
	{"iftmin", "transport instruction"},
	{"advice", "vessel advice"},
	{"berth", "berthing window"},
	{"dup", "duplicate"},
	{"timeout", "timed out"},
}

// NewExpander builds an Expander from the built-in synonym groups plus
// any extras from cfg.
func NewExpander(cfg Config) *Expander {
	if cfg.MaxTerms <= 0 {
		cfg.MaxTerms = DefaultConfig().MaxTerms
	}

	synonyms := make(map[string][]string)
	addGroup := func(group []string) {
		for _, term := range group {
			for _, other := range group {
				if other != term {
					synonyms[term] = append(synonyms[term], other)
				}
			}
		}
	}
	for _, group := range synonymGroups {
		addGroup(group)
	}
	for key, values := range cfg.Extra {
		addGroup(append([]string{strings.ToLower(key)}, values...))
	}

	return &Expander{synonyms: synonyms, maxTerms: cfg.MaxTerms}
}

// Expand returns the query with synonym terms appended. Terms already
// present in the query are never added twice, and the output is
// deterministic for a given query.
func (e *Expander) Expand(query string) Expanded {
	lower := strings.ToLower(query)
	words := strings.Fields(lower)
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}

	added := make([]string, 0, e.maxTerms)
	seen := make(map[string]bool)
	for _, w := range words {
		for _, syn := range e.synonyms[w] {
			if len(added) >= e.maxTerms {
				break
			}
			// Multi-word synonyms count as present when the full
			// phrase already appears in the query.
			if seen[syn] || present[syn] || strings.Contains(lower, syn) {
				continue
			}
			seen[syn] = true
			added = append(added, syn)
		}
	}

	if len(added) == 0 {
		return Expanded{Query: query}
	}

	sort.Strings(added)
	return Expanded{
		Query:      query + " " + strings.Join(added, " "),
		AddedTerms: added,
	}
}
