// Package search implements the message search surface (spec.md §4.8):
// a legacy substring engine, a lexical FTS5 engine, and a shadow mode that
// runs both and logs a comparison without changing the caller-visible
// result. Grounded on the teacher's internal/memory package, which
// selects between two backing stores (sqlite_vec.go, qdrant.go) behind a
// single VectorStore interface (internal/memory/vector.go) — the same
// dual-backend shape, reused here for dual search engines instead of dual
// vector stores, and on internal/memory/observer.go's append-only sink
// idiom for the shadow comparison log.
package search

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"

	"github.com/agentmail/agentmaild/internal/store"
)

// Engine selects which backend answers a query (spec.md §4.8,
// AM_SEARCH_ENGINE).
type Engine string

const (
	EngineLegacy  Engine = "legacy"
	EngineLexical Engine = "lexical"
	EngineShadow  Engine = "shadow"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200

	// shadowSchemaVersion versions the JSON shape of comparison records so
	// downstream analysis can gate a cutover from legacy to lexical
	// (spec.md §8 "shadow search").
	shadowSchemaVersion = 1
)

// Request is the query surface shared by all three engines.
type Request struct {
	ProjectID   int64
	Query       string
	Sender      sql.NullInt64
	ThreadID    string
	Importances []string
	DateStart   int64
	DateEnd     int64
	Limit       int
}

func (r Request) clampLimit() int {
	if r.Limit <= 0 {
		return DefaultLimit
	}
	if r.Limit > MaxLimit {
		return MaxLimit
	}
	return r.Limit
}

func (r Request) filter(limit int) store.SearchFilter {
	return store.SearchFilter{
		ProjectID:   r.ProjectID,
		Sender:      r.Sender,
		ThreadID:    r.ThreadID,
		Importances: r.Importances,
		DateStart:   r.DateStart,
		DateEnd:     r.DateEnd,
		Limit:       limit,
	}
}

// Hit is one ranked result. Results order by descending Score, ties
// broken by CreatedTS desc then MessageID desc (spec.md §4.8).
type Hit struct {
	MessageID int64
	Score     float64
	CreatedTS int64
}

// Service answers search requests using the configured engine.
type Service struct {
	store  *store.Store
	engine Engine
	log    *slog.Logger
}

func NewService(s *store.Store, engine Engine, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, engine: engine, log: log}
}

// Search runs the configured engine and returns ranked hits. A query with
// no matches returns an empty, non-nil slice and a nil error (spec.md
// §4.8: "never an error").
func (s *Service) Search(ctx context.Context, req Request) ([]Hit, error) {
	limit := req.clampLimit()
	req.Limit = limit

	switch s.engine {
	case EngineLexical:
		return s.lexical(ctx, req)
	case EngineShadow:
		return s.shadow(ctx, req)
	default:
		return s.legacy(ctx, req)
	}
}

func (s *Service) legacy(ctx context.Context, req Request) ([]Hit, error) {
	var hits []Hit
	err := s.store.WithRead(ctx, func(tx *store.Tx) error {
		rows, err := tx.LegacySearch(req.filter(req.Limit), req.Query)
		if err != nil {
			return err
		}
		hits = make([]Hit, 0, len(rows))
		for _, r := range rows {
			m, err := tx.MessageByID(r.MessageID)
			if err != nil {
				return err
			}
			hits = append(hits, Hit{MessageID: r.MessageID, Score: r.Score, CreatedTS: m.CreatedTS})
		}
		return nil
	})
	return emptyIfNil(hits), err
}

func (s *Service) lexical(ctx context.Context, req Request) ([]Hit, error) {
	var hits []Hit
	err := s.store.WithRead(ctx, func(tx *store.Tx) error {
		candidates, err := tx.SearchCandidateIDs(req.filter(0))
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}
		rows, err := tx.LexicalSearch(req.Query, candidates, req.Limit)
		if err != nil {
			return err
		}
		hits = make([]Hit, 0, len(rows))
		for _, r := range rows {
			m, err := tx.MessageByID(r.MessageID)
			if err != nil {
				return err
			}
			// bm25() returns lower-is-better; invert so Score is
			// higher-is-better like the legacy engine's constant score.
			hits = append(hits, Hit{MessageID: r.MessageID, Score: -r.Score, CreatedTS: m.CreatedTS})
		}
		sortHits(hits)
		return nil
	})
	return emptyIfNil(hits), err
}

// shadow runs both engines, returns the legacy result, and logs a
// structured comparison of the two independently of what the caller sees
// (spec.md §4.8, §8: "a comparator that never influences the
// caller-visible result").
func (s *Service) shadow(ctx context.Context, req Request) ([]Hit, error) {
	legacyHits, err := s.legacy(ctx, req)
	if err != nil {
		return nil, err
	}
	lexicalHits, lexErr := s.lexical(ctx, req)
	if lexErr != nil {
		s.log.Warn("shadow search: lexical engine failed", "error", lexErr, "query", req.Query)
		return legacyHits, nil
	}

	record := compare(legacyHits, lexicalHits)
	err = s.store.WithWrite(ctx, func(tx *store.Tx) error {
		return tx.LogShadowComparison(req.ProjectID, req.Query, shadowSchemaVersion, record)
	})
	if err != nil {
		s.log.Warn("shadow search: failed to log comparison", "error", err)
	}
	return legacyHits, nil
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].CreatedTS != hits[j].CreatedTS {
			return hits[i].CreatedTS > hits[j].CreatedTS
		}
		return hits[i].MessageID > hits[j].MessageID
	})
}

func emptyIfNil(hits []Hit) []Hit {
	if hits == nil {
		return []Hit{}
	}
	return hits
}
