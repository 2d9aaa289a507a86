package types

import "encoding/json"

// ApplicationRecord is a submitted license application. It is read-only to the
// triage core for the lifetime of one processing attempt.
type ApplicationRecord struct {
	ApplicationID string         `json:"application_id"`
	LicenseType   string         `json:"license_type"`
	Fields        map[string]any `json:"fields,omitempty"`
	Flags         ReviewFlags    `json:"flags,omitempty"`
}

// ReviewFlags are intake-supplied markers that force human review.
type ReviewFlags struct {
	PolicyGrayArea bool `json:"policy_gray_area,omitempty"`
	ComplexCase    bool `json:"complex_case,omitempty"`
}

func (f ReviewFlags) Any() bool {
	return f.PolicyGrayArea || f.ComplexCase
}

// UnmarshalJSON accepts the nested form ({"fields": {...}}) and the flat
// intake form, where every key other than application_id, license_type and
// flags is an application field.
func (a *ApplicationRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out ApplicationRecord
	for key, value := range raw {
		var err error
		switch key {
		case "application_id":
			err = json.Unmarshal(value, &out.ApplicationID)
		case "license_type":
			err = json.Unmarshal(value, &out.LicenseType)
		case "flags":
			err = json.Unmarshal(value, &out.Flags)
		case "fields":
			err = json.Unmarshal(value, &out.Fields)
		}
		if err != nil {
			return err
		}
	}
	if _, nested := raw["fields"]; !nested {
		for key, value := range raw {
			if key == "application_id" || key == "license_type" || key == "flags" {
				continue
			}
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return err
			}
			if out.Fields == nil {
				out.Fields = map[string]any{}
			}
			out.Fields[key] = v
		}
	}
	*a = out
	return nil
}
