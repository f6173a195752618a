// Package extract turns search snippets and page text into candidate founder
// names, email addresses and profile links, filtering the usual false positives.
package extract

import (
	"sort"
	"strings"
)

// Kind is the type of value an Entity holds.
type Kind string

// Entity kinds
const (
	KindName     Kind = "name"
	KindEmail    Kind = "email"
	KindLinkedIn Kind = "linkedin"
)

// SourceKind says what sort of text an entity came from.
type SourceKind string

// Source kinds, roughly ordered by how much they are trusted
const (
	SourceSnippet  SourceKind = "snippet"
	SourceLLM      SourceKind = "llm"
	SourcePage     SourceKind = "page"
	SourceProfile  SourceKind = "profile"
	SourceVerified SourceKind = "verified"
)

// corroborationBonus is added once a value is seen in two independent sources.
const corroborationBonus = 0.2

// Source identifies one piece of text fed to the extractor.
type Source struct {
	Kind SourceKind
	// Ref distinguishes independent sources, usually a URL or a query.
	Ref string
}

// BaseConfidence is the confidence of a single sighting from a source kind.
func BaseConfidence(k SourceKind) float64 {
	switch k {
	case SourcePage, SourceProfile:
		return 0.7
	case SourceVerified:
		return 0.8
	case SourceLLM:
		return 0.6
	default:
		return 0.5
	}
}

// Entity is one extracted value.
type Entity struct {
	Value string `json:"value"`
	Kind  Kind   `json:"kind"`
	// Base is the best single-source confidence seen for the value.
	Base    float64  `json:"base"`
	Sources []string `json:"sources"`
}

// Confidence is Base plus the corroboration bonus, capped at 1.
func (e Entity) Confidence() float64 {
	c := e.Base
	if len(e.Sources) >= 2 {
		c += corroborationBonus
	}
	return min(c, 1.0)
}

// NewEntity builds an entity seen once in src.
func NewEntity(value string, kind Kind, src Source) Entity {
	return Entity{
		Value:   value,
		Kind:    kind,
		Base:    BaseConfidence(src.Kind),
		Sources: []string{src.Ref},
	}
}

func entityKey(e Entity) string {
	return string(e.Kind) + "|" + strings.ToLower(e.Value)
}

// Merge deduplicates entities case-insensitively, keeping the first spelling,
// the highest base confidence and the union of sources.
func Merge(groups ...[]Entity) []Entity {
	index := make(map[string]int)
	var out []Entity
	for _, group := range groups {
		for _, e := range group {
			k := entityKey(e)
			i, ok := index[k]
			if !ok {
				index[k] = len(out)
				e.Sources = uniqueStrings(e.Sources)
				out = append(out, e)
				continue
			}
			if e.Base > out[i].Base {
				out[i].Base = e.Base
			}
			out[i].Sources = uniqueStrings(append(out[i].Sources, e.Sources...))
		}
	}
	return out
}

// Values returns the entity values of one kind, best confidence first.
func Values(entities []Entity, kind Kind) []string {
	filtered := OfKind(entities, kind)
	out := make([]string, 0, len(filtered))
	for _, e := range filtered {
		out = append(out, e.Value)
	}
	return out
}

// OfKind returns the entities of one kind sorted by confidence, stable on ties.
func OfKind(entities []Entity, kind Kind) []Entity {
	var out []Entity
	for _, e := range entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence() > out[j].Confidence()
	})
	return out
}

// MeanConfidence averages the confidence of the given entities.
func MeanConfidence(entities []Entity) float64 {
	if len(entities) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entities {
		sum += e.Confidence()
	}
	return sum / float64(len(entities))
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0:0]
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
