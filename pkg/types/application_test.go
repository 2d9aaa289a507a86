package types

import (
	"encoding/json"
	"testing"
)

func TestApplicationRecordFlatForm(t *testing.T) {
	raw := `{
  "application_id": "TDLR-2024-AC-12345",
  "license_type": "Air Conditioning Contractor",
  "flags": {"complex_case": true},
  "applicant_info": {"name": "John Smith"},
  "documents_submitted": ["Application Form TDLR-AC-001"]
}`
	var rec ApplicationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.ApplicationID != "TDLR-2024-AC-12345" || rec.LicenseType != "Air Conditioning Contractor" {
		t.Fatalf("unexpected identity %+v", rec)
	}
	if !rec.Flags.ComplexCase || rec.Flags.PolicyGrayArea {
		t.Fatalf("unexpected flags %+v", rec.Flags)
	}
	if len(rec.Fields) != 2 {
		t.Fatalf("expected two fields, got %v", rec.Fields)
	}
	if _, ok := rec.Fields["flags"]; ok {
		t.Fatalf("flags leaked into fields")
	}
}

func TestApplicationRecordNestedForm(t *testing.T) {
	in := ApplicationRecord{
		ApplicationID: "APP-1",
		LicenseType:   "Electrician",
		Fields:        map[string]any{"work_experience": "8 years"},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ApplicationRecord
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ApplicationID != "APP-1" || out.Fields["work_experience"] != "8 years" || len(out.Fields) != 1 {
		t.Fatalf("unexpected record %+v", out)
	}
}

func TestApplicationRecordRejectsBadTypes(t *testing.T) {
	var rec ApplicationRecord
	if err := json.Unmarshal([]byte(`{"application_id": 7}`), &rec); err == nil {
		t.Fatalf("expected error for numeric id")
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &rec); err == nil {
		t.Fatalf("expected error for array")
	}
}
