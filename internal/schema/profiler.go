package schema

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const DefaultSampleSize = 100

type ProfilerConfig struct {
	Logger     *slog.Logger
	Collection dataset.Collection
	Clock      clockwork.Clock

	SampleSize int
	// SnapshotPath receives the descriptor as JSON after each profile. Empty
	// disables the snapshot.
	SnapshotPath string
}

func (c *ProfilerConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Collection == nil {
		return fmt.Errorf("collection is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	return nil
}

type Profiler struct {
	log      *slog.Logger
	cfg      ProfilerConfig
	glossary map[string]glossaryEntry
}

func NewProfiler(cfg ProfilerConfig) (*Profiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Profiler{
		log:      cfg.Logger,
		cfg:      cfg,
		glossary: buildGlossary(Columns()),
	}, nil
}

// Profile samples the collection and builds a Descriptor. An empty sample
// yields an empty Descriptor and no error.
func (p *Profiler) Profile(ctx context.Context) (Descriptor, error) {
	start := p.cfg.Clock.Now()
	docs, err := p.cfg.Collection.Aggregate(ctx, bson.A{
		bson.D{{Key: "$sample", Value: bson.D{{Key: "size", Value: p.cfg.SampleSize}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sample collection: %w", err)
	}

	d := p.Describe(docs)
	p.log.Info("schema: profiled collection",
		"sampled", len(docs),
		"fields", len(d),
		"duration", p.cfg.Clock.Since(start))

	if p.cfg.SnapshotPath != "" {
		if err := WriteSnapshot(p.cfg.SnapshotPath, Snapshot{
			GeneratedAt: p.cfg.Clock.Now().UTC(),
			SampleSize:  len(docs),
			Fields:      d,
		}); err != nil {
			p.log.Warn("schema: failed to write snapshot", "path", p.cfg.SnapshotPath, "error", err)
		}
	}
	return d, nil
}

type fieldTally struct {
	types    map[string]int
	nulls    int
	total    int
	examples []string
	seen     map[string]struct{}
}

// Describe builds a Descriptor from already sampled documents.
func (p *Profiler) Describe(docs []bson.M) Descriptor {
	if len(docs) == 0 {
		return Descriptor{}
	}

	tallies := map[string]*fieldTally{}
	for _, doc := range docs {
		for key, value := range doc {
			if key == "_id" {
				continue
			}
			t, ok := tallies[key]
			if !ok {
				t = &fieldTally{types: map[string]int{}, seen: map[string]struct{}{}}
				tallies[key] = t
			}
			t.total++
			tag := TypeTag(value)
			t.types[tag]++
			if tag == TypeNull {
				t.nulls++
				continue
			}
			if len(t.examples) < maxExamples {
				s := exampleString(value)
				if _, dup := t.seen[s]; !dup {
					t.seen[s] = struct{}{}
					t.examples = append(t.examples, s)
				}
			}
		}
	}

	d := make(Descriptor, len(tallies))
	for name, t := range tallies {
		info := FieldInfo{
			Type:           primaryType(t.types),
			Nullable:       t.nulls > 0,
			NullPercentage: math.Round(float64(t.nulls)/float64(t.total)*1000) / 10,
			Examples:       t.examples,
		}
		if info.Examples == nil {
			info.Examples = []string{}
		}
		if g, ok := p.glossary[name]; ok {
			info.SourceColumn = g.column
			info.Description = g.description
			info.UsageNote = g.usage
		}
		d[name] = info
	}
	return d
}

// primaryType is the most frequent non-null tag, ties broken alphabetically.
// A field that was only ever null has the null tag.
func primaryType(types map[string]int) string {
	tags := make([]string, 0, len(types))
	for tag := range types {
		if tag != TypeNull {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return TypeNull
	}
	sort.Slice(tags, func(i, j int) bool {
		if types[tags[i]] != types[tags[j]] {
			return types[tags[i]] > types[tags[j]]
		}
		return tags[i] < tags[j]
	})
	return tags[0]
}

// TypeTag names the BSON type of a decoded value.
func TypeTag(v any) string {
	switch v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return TypeNull
	case string:
		return "string"
	case int32, int:
		return "int"
	case int64:
		return "long"
	case float64, float32:
		return "double"
	case primitive.Decimal128:
		return "decimal"
	case bool:
		return "bool"
	case primitive.DateTime, time.Time:
		return "date"
	case primitive.ObjectID:
		return "objectId"
	case bson.A, []any:
		return "array"
	case bson.M, bson.D, map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func exampleString(v any) string {
	var s string
	switch val := v.(type) {
	case primitive.DateTime:
		s = val.Time().UTC().Format(time.RFC3339)
	case time.Time:
		s = val.UTC().Format(time.RFC3339)
	case primitive.ObjectID:
		s = val.Hex()
	default:
		s = strings.TrimSpace(fmt.Sprint(v))
	}
	if len(s) > maxExampleSz {
		s = s[:maxExampleSz-3] + "..."
	}
	return s
}
