package memory

import (
	"sort"
	"strings"
)

// Layer identifies one of the three memory tiers.
type Layer string

const (
	LayerShort Layer = "short"
	LayerMid   Layer = "mid"
	LayerLong  Layer = "long"
	LayerAll   Layer = "all"
)

// MemoryQuery is the unified search request across all memory layers.
type MemoryQuery struct {
	Query          string
	Layer          Layer // empty means heuristic routing
	MaxResults     int
	MinScore       float64
	IncludeMetadata bool
}

// QueryResult is one scored hit from a unified Query, tagged with the
// layer it came from.
type QueryResult struct {
	Layer   Layer
	Score   float64
	Content string
	Extra   map[string]string
}

var (
	recentWords  = []string{"last", "recent", "current", "just"}
	explainWords = []string{"how", "what is", "explain", "manual", "guide"}
)

// routeLayers implements spec.md's heuristic layer selection: queries
// about recent context favour {Short,Mid}; queries that read like a
// request for stable knowledge favour {Long,Mid}; other queries of
// three words or fewer favour {Short,Mid}; everything else favours
// {Mid,Short}.
func routeLayers(query string) []Layer {
	lower := strings.ToLower(query)
	for _, w := range recentWords {
		if strings.Contains(lower, w) {
			return []Layer{LayerShort, LayerMid}
		}
	}
	for _, w := range explainWords {
		if strings.Contains(lower, w) {
			return []Layer{LayerLong, LayerMid}
		}
	}
	// Short queries (few words) read like a reference to recent context.
	if len(strings.Fields(lower)) <= 3 {
		return []Layer{LayerShort, LayerMid}
	}
	return []Layer{LayerMid, LayerShort}
}

// jaccardScore scores a against b by word-overlap Jaccard similarity,
// with a floor of 0.9 when b contains a verbatim as a substring.
func jaccardScore(query, text string) float64 {
	lq, lt := strings.ToLower(query), strings.ToLower(text)
	if lq == "" {
		return 0
	}
	if strings.Contains(lt, lq) {
		return 0.9
	}

	qWords := wordSet(lq)
	tWords := wordSet(lt)
	if len(qWords) == 0 || len(tWords) == 0 {
		return 0
	}

	intersection := 0
	for w := range qWords {
		if tWords[w] {
			intersection++
		}
	}
	union := len(qWords) + len(tWords) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}

// Engine unifies the three memory tiers behind a single Query surface.
type Engine struct {
	Short *ShortTermBuffer
	Mid   *MidTermStore
	Long  *LongTermStore
}

// NewEngine wires the three tier stores into one Engine.
func NewEngine(short *ShortTermBuffer, mid *MidTermStore, long *LongTermStore) *Engine {
	return &Engine{Short: short, Mid: mid, Long: long}
}

// Query dispatches q to the layers it selects (explicit, or heuristic
// when q.Layer is empty), scores every candidate with jaccardScore,
// merges, filters by MinScore, and truncates to MaxResults after
// sorting by score descending.
func (e *Engine) Query(q MemoryQuery) ([]QueryResult, error) {
	layers := layersFor(q.Layer, q.Query)

	var results []QueryResult
	for _, layer := range layers {
		switch layer {
		case LayerShort:
			if e.Short == nil {
				continue
			}
			for _, m := range e.Short.Messages() {
				score := jaccardScore(q.Query, m.Content)
				if score < q.MinScore {
					continue
				}
				results = append(results, QueryResult{
					Layer: LayerShort, Score: score, Content: m.Content,
					Extra: map[string]string{"role": m.Role},
				})
			}
		case LayerMid:
			if e.Mid == nil {
				continue
			}
			recs, err := e.Mid.Search(q.Query, 0)
			if err != nil {
				return nil, err
			}
			for _, r := range recs {
				score := jaccardScore(q.Query, r.UserInput+" "+r.AssistantResponse)
				if score < q.MinScore {
					continue
				}
				results = append(results, QueryResult{
					Layer: LayerMid, Score: score, Content: r.AssistantResponse,
					Extra: map[string]string{"session_id": r.SessionID, "user_input": r.UserInput},
				})
			}
		case LayerLong:
			if e.Long == nil {
				continue
			}
			entries, err := e.Long.Search(q.Query, 0)
			if err != nil {
				return nil, err
			}
			for _, ke := range entries {
				score := jaccardScore(q.Query, ke.Title+" "+ke.Content)
				if score < q.MinScore {
					continue
				}
				results = append(results, QueryResult{
					Layer: LayerLong, Score: score, Content: ke.Content,
					Extra: map[string]string{"title": ke.Title, "category": string(ke.Category)},
				})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	max := q.MaxResults
	if max > 0 && len(results) > max {
		results = results[:max]
	}
	return results, nil
}

func layersFor(requested Layer, query string) []Layer {
	switch requested {
	case LayerAll:
		return []Layer{LayerShort, LayerMid, LayerLong}
	case LayerShort, LayerMid, LayerLong:
		return []Layer{requested}
	default:
		return routeLayers(query)
	}
}
