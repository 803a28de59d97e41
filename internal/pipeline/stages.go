package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/veildata/api/internal/model"
)

// Run carries one job's records through the stages. Each handler reads what
// the previous stage left behind and mutates the run in place.
type Run struct {
	Job     *model.ProcessingJob
	Source  *model.Source
	Schema  model.TargetSchema
	Mapping map[string]string
	Rules   []model.DeidRule

	Records   []map[string]interface{}
	PIIFields map[string]bool
	Total     int
	Processed int
}

// StageHandler executes one pipeline stage against the run.
type StageHandler func(ctx context.Context, run *Run) error

// StageDescriptor declares a stage: its name and the progress checkpoint the
// job record is set to when the stage begins. The ordered list is the whole
// state machine; stages are never skipped, re-entered or reordered.
type StageDescriptor struct {
	Name       model.Stage
	Checkpoint int
	Handler    StageHandler
}

// DefaultStages returns the fixed processing sequence with its progress
// checkpoints.
func DefaultStages() []StageDescriptor {
	return []StageDescriptor{
		{Name: model.StageParsing, Checkpoint: 0, Handler: parseRecords},
		{Name: model.StageDetectingPII, Checkpoint: 25, Handler: detectPII},
		{Name: model.StageDeidentifying, Checkpoint: 50, Handler: deidentify},
		{Name: model.StageMapping, Checkpoint: 75, Handler: mapFields},
	}
}

const synthesizedRecordCount = 25

// parseRecords materializes the source's records. File-style sources may carry
// sample rows in their metadata; otherwise rows are synthesized from the
// target schema. Sets the run total, which becomes the job's totalRecords
// once this stage completes.
func parseRecords(_ context.Context, run *Run) error {
	if raw, ok := run.Source.Metadata["sampleRecords"]; ok {
		rows, ok := raw.([]interface{})
		if !ok {
			return fmt.Errorf("source metadata sampleRecords is not a list")
		}
		for i, r := range rows {
			rec, ok := r.(map[string]interface{})
			if !ok {
				return fmt.Errorf("source metadata sampleRecords[%d] is not an object", i)
			}
			run.Records = append(run.Records, rec)
		}
	} else {
		for i := 0; i < synthesizedRecordCount; i++ {
			rec := make(map[string]interface{}, len(run.Schema.Fields))
			for _, f := range run.Schema.Fields {
				rec[f.Name] = sampleValue(f, i)
			}
			run.Records = append(run.Records, rec)
		}
	}

	if len(run.Records) == 0 {
		return fmt.Errorf("source produced no records")
	}
	run.Total = len(run.Records)
	return nil
}

func sampleValue(f model.SchemaField, i int) interface{} {
	lower := strings.ToLower(f.Name)
	switch {
	case strings.Contains(lower, "email"):
		return fmt.Sprintf("user%d@example.com", i+1)
	case strings.Contains(lower, "phone"):
		return fmt.Sprintf("555-01%02d", i%100)
	case strings.Contains(lower, "ssn"):
		return fmt.Sprintf("123-45-%04d", 6000+i)
	}
	switch f.Type {
	case "number":
		return float64(i + 1)
	case "boolean":
		return i%2 == 0
	case "date":
		return fmt.Sprintf("2026-01-%02d", i%28+1)
	default:
		return fmt.Sprintf("%s-%d", f.Name, i+1)
	}
}

var piiDetectors = []struct {
	name string
	re   *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"phone", regexp.MustCompile(`\b\d{3}[-.\s]?\d{2,4}[-.\s]?\d{2,4}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
}

// detectPII scans every string value and flags fields where any value matches
// a detector. Flagged fields without an explicit rule get redacted by the
// next stage.
func detectPII(_ context.Context, run *Run) error {
	run.PIIFields = make(map[string]bool)
	for _, rec := range run.Records {
		for field, v := range rec {
			if run.PIIFields[field] {
				continue
			}
			s, ok := v.(string)
			if !ok {
				continue
			}
			for _, d := range piiDetectors {
				if d.re.MatchString(s) {
					run.PIIFields[field] = true
					break
				}
			}
		}
	}
	return nil
}

// deidentify applies the configured rules, plus an implicit redact for
// detected PII fields that have no rule of their own.
func deidentify(_ context.Context, run *Run) error {
	rules := make(map[string]model.DeidRule, len(run.Rules))
	for _, rule := range run.Rules {
		rules[rule.Field] = rule
	}

	for _, rec := range run.Records {
		for field, v := range rec {
			rule, hasRule := rules[field]
			if !hasRule {
				if run.PIIFields[field] {
					rec[field] = applyToValue(v, model.DeidRule{Field: field, Action: model.ActionRedact})
				}
				continue
			}
			if rule.Action == model.ActionRemove {
				delete(rec, field)
				continue
			}
			rec[field] = applyToValue(v, rule)
		}
	}
	return nil
}

func applyToValue(v interface{}, rule model.DeidRule) interface{} {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}

	if rule.Pattern != "" {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			// validated at configure time; fall through to whole-value handling
			return applyAction(s, rule.Action)
		}
		return re.ReplaceAllStringFunc(s, func(match string) string {
			return applyAction(match, rule.Action)
		})
	}
	return applyAction(s, rule.Action)
}

func applyAction(s string, action model.DeidAction) string {
	switch action {
	case model.ActionRedact:
		return "[REDACTED]"
	case model.ActionTokenize:
		return "tok_" + uuid.NewString()
	case model.ActionHash:
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	case model.ActionMask:
		return maskValue(s)
	default:
		return s
	}
}

// maskValue keeps the last four characters visible.
func maskValue(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

// mapFields renames record fields per the configured mapping and projects each
// record onto the target schema's field order. Fields outside the schema are
// dropped; missing fields stay absent unless required, in which case they are
// emitted as null.
func mapFields(_ context.Context, run *Run) error {
	mapped := make([]map[string]interface{}, 0, len(run.Records))
	for _, rec := range run.Records {
		renamed := make(map[string]interface{}, len(rec))
		for field, v := range rec {
			if target, ok := run.Mapping[field]; ok {
				renamed[target] = v
			} else {
				renamed[field] = v
			}
		}

		out := make(map[string]interface{}, len(run.Schema.Fields))
		for _, f := range run.Schema.Fields {
			if v, ok := renamed[f.Name]; ok {
				out[f.Name] = v
			} else if f.Required {
				out[f.Name] = nil
			}
		}
		mapped = append(mapped, out)
	}

	run.Records = mapped
	run.Processed = len(mapped)
	return nil
}
