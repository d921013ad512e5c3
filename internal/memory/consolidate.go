package memory

import (
	"fmt"
	"time"
)

// PromotionPolicy controls whether Consolidate clears the short-term
// buffer after pairing its messages into mid-term records.
type PromotionPolicy string

const (
	// PolicyDefault clears short-term after consolidation (the normal
	// case).
	PolicyDefault PromotionPolicy = "default"
	// PolicyNever leaves short-term intact; consolidation still writes
	// mid-term records, but the buffer keeps growing until trimmed by
	// its own token budget.
	PolicyNever PromotionPolicy = "never"
)

// Consolidator pairs short-term turns into mid-term records and, on a
// separate cadence, promotes aged mid-term records into long-term
// knowledge. The threshold-then-batch shape mirrors the teacher's
// conversation compaction trigger, generalized to the short->mid->long
// pipeline this package implements.
type Consolidator struct {
	short    *ShortTermBuffer
	mid      *MidTermStore
	long     *LongTermStore
	policy   PromotionPolicy
	minAge   time.Duration
}

// NewConsolidator wires a Consolidator over the three tier stores.
// minAgeHours is the age (spec.md's min_age_hours) a mid-term record
// must reach before PromoteToLongTerm will consider it.
func NewConsolidator(short *ShortTermBuffer, mid *MidTermStore, long *LongTermStore, policy PromotionPolicy, minAgeHours float64) *Consolidator {
	return &Consolidator{
		short:  short,
		mid:    mid,
		long:   long,
		policy: policy,
		minAge: time.Duration(minAgeHours * float64(time.Hour)),
	}
}

// Consolidate walks the short-term buffer pairing consecutive user then
// assistant messages into mid-term records for sessionID, then clears
// short-term unless the policy is PolicyNever. Under any other policy,
// calling Consolidate twice in succession is idempotent: the second
// call finds an empty buffer and is a no-op. Under PolicyNever the
// buffer is kept, so a second call pairs the same messages again.
func (c *Consolidator) Consolidate(sessionID string) (int, error) {
	messages := c.short.Messages()
	if len(messages) == 0 {
		return 0, nil
	}

	paired := 0
	for i := 0; i+1 < len(messages); i++ {
		if messages[i].Role != "user" || messages[i+1].Role != "assistant" {
			continue
		}
		if _, err := c.mid.Add(sessionID, messages[i].Content, messages[i+1].Content); err != nil {
			return paired, fmt.Errorf("consolidate pair %d: %w", i, err)
		}
		paired++
		i++ // skip the assistant message we just consumed
	}

	if c.policy != PolicyNever {
		c.short.Clear()
	}
	return paired, nil
}

// PromoteToLongTerm promotes every unpromoted mid-term record older
// than minAgeHours into a BestPractice long-term knowledge entry tagged
// with its source session id, then marks the source record promoted so
// a later call does not promote it again.
func (c *Consolidator) PromoteToLongTerm() (int, error) {
	cutoff := time.Now().Add(-c.minAge)
	records, err := c.mid.UnpromotedOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("find promotable records: %w", err)
	}

	promoted := 0
	for _, r := range records {
		entry := KnowledgeEntry{
			Category: CategoryBestPractice,
			Title:    r.UserInput,
			Content:  r.AssistantResponse,
			Tags:     []string{r.SessionID},
		}
		if _, err := c.long.Add(entry); err != nil {
			return promoted, fmt.Errorf("promote record %s: %w", r.ID, err)
		}
		if err := c.mid.MarkPromoted(r.ID); err != nil {
			return promoted, fmt.Errorf("mark promoted %s: %w", r.ID, err)
		}
		promoted++
	}
	return promoted, nil
}
