package memory

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/expmem/internal/reflection"
	"github.com/fyrsmithlabs/expmem/internal/vectorstore"
)

// Payload keys.
const (
	keyContent   = "content"
	keyTags      = "tags"
	keyUpdatedAt = "updated_at"
	keyType      = "type"
	keyActor     = "actor"
)

// legacyTagKeys are metadata fields older records keep at the top level.
var legacyTagKeys = []string{"type", "actor", "timestamp", "priority", "confidence"}

// Experience is the input to Save.
type Experience struct {
	Content string         `json:"content" validate:"required"`
	Tags    map[string]any `json:"tags,omitempty"`
	// Reflection may be partial or absent; missing fields are synthesized.
	Reflection *reflection.Reflection `json:"reflection,omitempty"`
}

// Type returns the declared experience type from the tags.
func (e Experience) Type() string {
	return tagString(e.Tags, keyType)
}

// Record is a stored experience.
type Record struct {
	ID         string                `json:"id"`
	Content    string                `json:"content"`
	Reflection reflection.Reflection `json:"reflection"`
	Tags       map[string]any        `json:"tags"`
	UpdatedAt  time.Time             `json:"updated_at,omitempty"`
	// Score is the retrieval similarity; set only on recall results.
	Score  float64 `json:"score"`
	Scored bool    `json:"-"`
}

// Type returns the declared experience type.
func (r Record) Type() string {
	return tagString(r.Tags, keyType)
}

func tagString(tags map[string]any, key string) string {
	s, _ := tags[key].(string)
	return s
}

// payload renders the record for the vector store. Type and actor are
// mirrored at the top level for readers of the older layout.
func (r Record) payload() vectorstore.Payload {
	p := vectorstore.Payload{
		keyContent:            r.Content,
		reflection.PayloadKey: r.Reflection.Map(),
		keyTags:               r.Tags,
	}
	if !r.UpdatedAt.IsZero() {
		p[keyUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	for _, k := range []string{keyType, keyActor} {
		if v, ok := r.Tags[k]; ok {
			p[k] = v
		}
	}
	return p
}

// recordFromPoint decodes a stored payload, backfilling any reflection
// field the record is missing.
func recordFromPoint(p vectorstore.Point, scored bool) Record {
	payload := p.Payload
	content, _ := payload[keyContent].(string)

	tags := map[string]any{}
	if t, ok := payload[keyTags].(map[string]any); ok {
		for k, v := range t {
			tags[k] = v
		}
	}
	for _, k := range legacyTagKeys {
		if _, ok := tags[k]; ok {
			continue
		}
		if v, ok := payload[k]; ok {
			tags[k] = v
		}
	}

	var refl reflection.Reflection
	if m, ok := payload[reflection.PayloadKey].(map[string]any); ok {
		refl = reflection.FromMap(m)
	}
	// Very old records carry the fields flat on the payload.
	flat := reflection.FromMap(payload)
	if refl.Event == "" {
		refl.Event = flat.Event
	}
	if refl.Interpretation == "" {
		refl.Interpretation = flat.Interpretation
	}
	if refl.Lesson == "" {
		refl.Lesson = flat.Lesson
	}
	if refl.Rule == "" {
		refl.Rule = flat.Rule
	}

	r := Record{
		ID:         p.ID,
		Content:    content,
		Reflection: reflection.Backfill(refl, content, tagString(tags, keyType)),
		Tags:       tags,
	}
	if ts, ok := payload[keyUpdatedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			r.UpdatedAt = t
		}
	}
	if scored {
		r.Score = float64(p.Score)
		r.Scored = true
	}
	return r
}

// embeddingText is the text embedded for a record.
func embeddingText(content string, r reflection.Reflection) string {
	return strings.Join([]string{content, r.Event, r.Interpretation, r.Lesson, r.Rule}, " \n")
}
