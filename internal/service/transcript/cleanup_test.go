package transcript

import (
	"testing"

	"github.com/tapewise/backend/internal/model/transcript"
)

func row(start, end any, label string) map[string]any {
	return map[string]any{"start": start, "end": end, "label": label}
}

func TestPurgeDerivedRowsBareArray(t *testing.T) {
	msg := &transcript.Message{
		Categorization: []any{
			row(0.0, 2.0, "inside"),
			row(6.0, 8.0, "outside"),
		},
	}

	fields := purgeDerivedRows(msg, 0, 5)
	if _, ok := fields["categorization"]; !ok {
		t.Fatal("categorization should be rewritten")
	}
	rows := msg.Categorization.([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["label"] != "outside" {
		t.Fatalf("surviving rows: %+v", rows)
	}
}

func TestPurgeDerivedRowsWrapperKeys(t *testing.T) {
	for _, key := range []string{"data", "rows", "items"} {
		msg := &transcript.Message{
			CategorizationData: map[string]any{
				key:     []any{row(1.0, 2.0, "inside")},
				"model": "categorizer-v3",
			},
		}
		fields := purgeDerivedRows(msg, 0, 5)
		if _, ok := fields["categorization_data"]; !ok {
			t.Fatalf("wrapper %q: container not rewritten", key)
		}
		container := msg.CategorizationData.(map[string]any)
		if len(container[key].([]any)) != 0 {
			t.Fatalf("wrapper %q: row not purged", key)
		}
		if container["model"] != "categorizer-v3" {
			t.Fatalf("wrapper %q: sibling key lost", key)
		}
	}
}

func TestPurgeDerivedRowsFieldAliases(t *testing.T) {
	cases := []struct {
		startKey, endKey string
	}{
		{"start", "end"},
		{"start_time", "end_time"},
		{"startTime", "endTime"},
		{"begin", "stop"},
		{"from", "to"},
	}
	for _, tc := range cases {
		msg := &transcript.Message{
			Categorization: []any{
				map[string]any{tc.startKey: 1.0, tc.endKey: 2.0},
			},
		}
		purgeDerivedRows(msg, 0, 5)
		if len(msg.Categorization.([]any)) != 0 {
			t.Fatalf("aliases %s/%s not recognized", tc.startKey, tc.endKey)
		}
	}
}

func TestPurgeDerivedRowsNumericEncodings(t *testing.T) {
	msg := &transcript.Message{
		Categorization: []any{
			row(int32(1), int64(2), "ints"),
			row("1.5", "3", "strings"),
			row(float32(0.5), 4.0, "mixed"),
		},
	}
	purgeDerivedRows(msg, 0, 5)
	if remaining := len(msg.Categorization.([]any)); remaining != 0 {
		t.Fatalf("%d rows survived numeric coercion", remaining)
	}
}

func TestPurgeDerivedRowsKeepsUnparsableRows(t *testing.T) {
	msg := &transcript.Message{
		Categorization: []any{
			row("not-a-number", 2.0, "bad start"),
			map[string]any{"label": "no timing at all"},
			"not even a map",
			row(1.0, 2.0, "parsable"),
		},
	}
	purgeDerivedRows(msg, 0, 5)
	rows := msg.Categorization.([]any)
	if len(rows) != 3 {
		t.Fatalf("expected 3 kept rows, got %d: %+v", len(rows), rows)
	}
}

func TestPurgeDerivedRowsBoundaryTouchIsNotOverlap(t *testing.T) {
	msg := &transcript.Message{
		Categorization: []any{
			row(5.0, 7.0, "starts at boundary"),
			row(4.999999999, 7.0, "within epsilon of boundary"),
		},
	}
	purgeDerivedRows(msg, 0, 5)
	if len(msg.Categorization.([]any)) != 2 {
		t.Fatal("rows touching the removed range's end must survive")
	}
}

func TestPurgeProcessorsDataNested(t *testing.T) {
	msg := &transcript.Message{
		ProcessorsData: map[string]any{
			"categorization": map[string]any{
				"data":           []any{row(1.0, 2.0, "inside")},
				"CATEGORIZATION": []any{row(0.5, 3.0, "nested inside"), row(8.0, 9.0, "nested outside")},
			},
			"sentiment": map[string]any{"score": 0.9},
		},
	}

	fields := purgeDerivedRows(msg, 0, 5)
	if _, ok := fields["processors_data"]; !ok {
		t.Fatal("processors_data should be rewritten")
	}

	categorization := msg.ProcessorsData["categorization"].(map[string]any)
	if len(categorization["data"].([]any)) != 0 {
		t.Fatal("wrapped rows not purged")
	}
	nested := categorization["CATEGORIZATION"].([]any)
	if len(nested) != 1 || nested[0].(map[string]any)["label"] != "nested outside" {
		t.Fatalf("nested rows: %+v", nested)
	}
	if _, ok := msg.ProcessorsData["sentiment"]; !ok {
		t.Fatal("unrelated processor data lost")
	}
}

func TestPurgeDerivedRowsNoChangeNoFields(t *testing.T) {
	msg := &transcript.Message{
		Categorization: []any{row(6.0, 8.0, "outside")},
		ProcessorsData: map[string]any{"other": true},
	}
	fields := purgeDerivedRows(msg, 0, 5)
	if len(fields) != 0 {
		t.Fatalf("unchanged containers must not be rewritten: %+v", fields)
	}
}
