package search

import (
	"encoding/json"
	"strconv"
)

// comparisonRecord is the structured shadow-mode artifact (spec.md §8:
// "a stable JSON record with an explicit schema version"). Its shape is
// deliberately flat so a downstream job can load it without a schema
// registry.
type comparisonRecord struct {
	SchemaVersion    int     `json:"schema_version"`
	LegacyCount      int     `json:"legacy_count"`
	LexicalCount     int     `json:"lexical_count"`
	JaccardOverlap   float64 `json:"jaccard_overlap"`
	MeanPositionDiff float64 `json:"mean_position_diff"`
	MeanScoreDelta   float64 `json:"mean_score_delta"`
	FilterMismatch   bool    `json:"filter_mismatch"`
}

// compare builds the shadow comparison record from two independently
// ranked result sets over the same request. It never mutates either
// slice and never affects which one the caller receives.
func compare(legacy, lexical []Hit) string {
	rec := comparisonRecord{
		SchemaVersion: shadowSchemaVersion,
		LegacyCount:   len(legacy),
		LexicalCount:  len(lexical),
	}

	legacyPos := make(map[int64]int, len(legacy))
	for i, h := range legacy {
		legacyPos[h.MessageID] = i
	}
	lexicalPos := make(map[int64]int, len(lexical))
	lexicalScore := make(map[int64]float64, len(lexical))
	for i, h := range lexical {
		lexicalPos[h.MessageID] = i
		lexicalScore[h.MessageID] = h.Score
	}

	union := map[int64]struct{}{}
	for id := range legacyPos {
		union[id] = struct{}{}
	}
	for id := range lexicalPos {
		union[id] = struct{}{}
	}

	var intersection int
	var positionDiffSum float64
	var scoreDeltaSum float64
	var compared int
	for id := range legacyPos {
		if lp, ok := lexicalPos[id]; ok {
			intersection++
			positionDiffSum += absInt(legacyPos[id] - lp)
			scoreDeltaSum += absFloat(1 - lexicalScore[id])
			compared++
		}
	}

	if len(union) > 0 {
		rec.JaccardOverlap = float64(intersection) / float64(len(union))
	}
	if compared > 0 {
		rec.MeanPositionDiff = positionDiffSum / float64(compared)
		rec.MeanScoreDelta = scoreDeltaSum / float64(compared)
	}
	// A filter-behavior mismatch shows up as two engines disagreeing on
	// set membership even though they ran the identical structured filter
	// upstream (internal/store.SearchFilter) — the only remaining source
	// of divergence is each engine's own text-matching semantics, so any
	// empty-vs-nonempty split is worth flagging for manual review.
	rec.FilterMismatch = (len(legacy) == 0) != (len(lexical) == 0)

	body, err := json.Marshal(rec)
	if err != nil {
		return `{"schema_version":` + strconv.Itoa(shadowSchemaVersion) + `,"marshal_error":true}`
	}
	return string(body)
}

func absInt(n int) float64 {
	if n < 0 {
		return float64(-n)
	}
	return float64(n)
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
