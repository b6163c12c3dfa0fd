package sop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/triagewatch/internal/model"
)

// DefaultMaxResults is the number of procedures returned when the caller
// passes a non-positive limit.
const DefaultMaxResults = 3

// Repository supplies procedure records. Implementations must be safe
// for concurrent readers.
type Repository interface {
	// Query returns candidate records in repository iteration order.
	// An empty category means no filter.
	Query(ctx context.Context, keywords []string, category string) ([]model.ProcedureRecord, error)
}

// Matcher scores repository records against an event context.
type Matcher struct {
	repo   Repository
	logger *zap.Logger
}

// NewMatcher creates a Matcher. A nil logger discards warnings.
func NewMatcher(repo Repository, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{repo: repo, logger: logger.Named("sop")}
}

// Keywords splits an event context into its case-folded keyword multiset.
func Keywords(eventContext string) []string {
	return strings.Fields(strings.ToLower(eventContext))
}

// Match returns up to maxResults procedures by descending similarity.
// A repository failure is reported as ErrRepositoryUnavailable; malformed
// records are skipped with a warning.
func (m *Matcher) Match(ctx context.Context, eventContext, category string, maxResults int) ([]model.ProcedureMatch, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	keywords := Keywords(eventContext)
	if len(keywords) == 0 {
		return nil, nil
	}
	if m.repo == nil {
		return nil, fmt.Errorf("%w: no repository configured", model.ErrRepositoryUnavailable)
	}

	records, err := m.repo.Query(ctx, keywords, category)
	if err != nil {
		if errors.Is(err, model.ErrRepositoryUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrRepositoryUnavailable, err)
	}

	var matches []model.ProcedureMatch
	for _, rec := range records {
		if category != "" && !strings.EqualFold(rec.Category, category) {
			continue
		}
		rec = rec.Indexed()
		if err := rec.Validate(); err != nil {
			m.logger.Warn("skipping procedure", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		if match, ok := Score(rec, keywords); ok {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

// Score computes the lexical overlap of one indexed record with the query
// keywords. Each keyword earns 2 points per trigger phrase containing it,
// 1 point if the title contains it, and 0.5 if the search text contains it.
// ok is false when the score is zero.
func Score(rec model.ProcedureRecord, keywords []string) (model.ProcedureMatch, bool) {
	if len(keywords) == 0 {
		return model.ProcedureMatch{}, false
	}
	search := rec.SearchText
	if search == "" {
		search = model.BuildSearchText(rec)
	}
	title := strings.ToLower(rec.Title)

	var score float64
	var matched []string
	for _, trigger := range rec.TriggerPhrases {
		lt := strings.ToLower(trigger)
		hit := false
		for _, k := range keywords {
			if strings.Contains(lt, k) {
				score += 2
				hit = true
			}
		}
		if hit && !contains(matched, trigger) {
			matched = append(matched, trigger)
		}
	}
	for _, k := range keywords {
		if strings.Contains(title, k) {
			score++
		}
		if strings.Contains(search, k) {
			score += 0.5
		}
	}
	if score <= 0 {
		return model.ProcedureMatch{}, false
	}

	sim := score / float64(len(keywords))
	if sim > 1 {
		sim = 1
	}
	return model.ProcedureMatch{
		Procedure:       rec,
		SimilarityScore: sim,
		MatchedTriggers: matched,
	}, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
