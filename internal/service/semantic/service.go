// Package semantic maintains a lexical similarity index over session
// content. Embedding is best-effort background work; lookups back the
// classifier's switch-session bias.
package semantic

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

// Index stores per-session term vectors and answers similarity queries.
type Index struct {
	store store.Store
}

// NewIndex builds a semantic index over the given store.
func NewIndex(st store.Store) *Index {
	return &Index{store: st}
}

// EmbedSession folds the given text into the session's term vector.
func (x *Index) EmbedSession(ctx context.Context, sessionID, userID, text string) error {
	existing, err := x.store.SessionTermsForUser(ctx, userID)
	if err != nil {
		return err
	}

	terms := existing[sessionID]
	if terms == nil {
		terms = make(map[string]float64)
	}
	for term, weight := range Tokenize(text) {
		terms[term] += weight
	}
	return x.store.SaveSessionTerms(ctx, sessionID, userID, terms)
}

// EmbedMessages folds a batch of messages into the session's term vector.
func (x *Index) EmbedMessages(ctx context.Context, sessionID, userID string, messages []conversation.Message) error {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return x.EmbedSession(ctx, sessionID, userID, b.String())
}

// FindSimilar scores the user's indexed sessions against the text and
// returns matches ordered by descending similarity. Sessions without a
// counterpart name resolve through the relationship fallback chain.
func (x *Index) FindSimilar(ctx context.Context, userID, text string) ([]modelintent.SemanticMatch, error) {
	query := Tokenize(text)
	if len(query) == 0 {
		return nil, nil
	}

	vectors, err := x.store.SessionTermsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	summaries, err := x.store.ListSessionsForUser(ctx, userID, []conversation.Status{conversation.StatusAbandoned})
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(summaries))
	for _, sum := range summaries {
		names[sum.Session.ID] = sum.Relationship.DisplayName()
	}

	var matches []modelintent.SemanticMatch
	for sessionID, terms := range vectors {
		name, ok := names[sessionID]
		if !ok {
			continue
		}
		score := cosine(query, terms)
		if score <= 0 {
			continue
		}
		matches = append(matches, modelintent.SemanticMatch{
			SessionID:       sessionID,
			CounterpartName: name,
			Similarity:      score,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "was": true, "are": true, "you": true, "but": true,
	"had": true, "have": true, "has": true, "not": true, "about": true,
	"what": true, "when": true, "just": true, "really": true, "them": true,
	"they": true, "then": true, "were": true, "been": true, "from": true,
}

// Tokenize lowercases the text and produces a weighted term vector,
// dropping stopwords and tokens shorter than three runes.
func Tokenize(text string) map[string]float64 {
	terms := make(map[string]float64)
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(token)) < 3 || stopwords[token] {
			continue
		}
		terms[token]++
	}
	return terms
}

func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for term, wa := range a {
		normA += wa * wa
		if wb, ok := b[term]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		normB += wb * wb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
