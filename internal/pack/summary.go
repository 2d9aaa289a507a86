package pack

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"

	"github.com/davidahmann/licensetriage/internal/ledger"
)

// Summary is the human-readable face of a pack.
type Summary struct {
	DecisionID        string
	ApplicationID     string
	LicenseType       string
	Disposition       string
	RecommendedAction string
	ConfidenceScore   int
	RiskScore         int
	CompletenessScore int
	Grade             string
	Factors           []string
	MissingDocuments  []string
	Reviewer          string
	OverrideReason    string
	Supersedes        string
	Corrections       []string
	VerifyURL         string
	PackURL           string
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Decision {{.DecisionID}}</title></head>
<body>
<h1>Application {{.ApplicationID}}</h1>
<p>{{if .LicenseType}}{{.LicenseType}} &middot; {{end}}decision <code>{{.DecisionID}}</code></p>
<table>
<tr><th>Disposition</th><td>{{.Disposition}}</td></tr>
<tr><th>Recommendation</th><td>{{.RecommendedAction}}</td></tr>
<tr><th>Confidence</th><td>{{.ConfidenceScore}}</td></tr>
<tr><th>Risk</th><td>{{.RiskScore}}</td></tr>
<tr><th>Completeness</th><td>{{.CompletenessScore}}</td></tr>
<tr><th>Compliance check</th><td>{{.Grade}}</td></tr>
{{if .Reviewer}}<tr><th>Reviewer</th><td>{{.Reviewer}}: {{.OverrideReason}}</td></tr>{{end}}
{{if .Supersedes}}<tr><th>Supersedes</th><td><code>{{.Supersedes}}</code></td></tr>{{end}}
</table>
<h2>Decision factors</h2>
<ul>{{range .Factors}}<li>{{.}}</li>{{end}}</ul>
{{if .MissingDocuments}}<h2>Missing documents</h2>
<ul>{{range .MissingDocuments}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Corrections}}<h2>Corrections</h2>
<ul>{{range .Corrections}}<li><code>{{.}}</code></li>{{end}}</ul>{{end}}
{{if .VerifyURL}}<p><a href="{{.VerifyURL}}">Verify signature</a> &middot; <a href="{{.PackURL}}">Download pack</a></p>{{end}}
</body></html>
`))

// BuildSummary decodes the sealed record and renders an HTML summary. Links
// are only set when baseURL is.
func BuildSummary(in Input, baseURL string) (Summary, []byte, error) {
	rec, err := ledger.DecodeAuditRecord(in.Entry)
	if err != nil {
		return Summary{}, nil, err
	}

	s := Summary{
		DecisionID:        rec.DecisionID,
		ApplicationID:     rec.ApplicationID,
		LicenseType:       rec.LicenseType,
		Disposition:       string(rec.Disposition),
		RecommendedAction: rec.RecommendedAction,
		ConfidenceScore:   rec.ConfidenceScore,
		RiskScore:         rec.RiskScore,
		CompletenessScore: rec.CompletenessScore,
		Grade:             rec.ComplianceCheck,
		Factors:           rec.DecisionFactors,
		MissingDocuments:  rec.MissingDocuments,
	}
	if rec.HumanReviewer != nil {
		s.Reviewer = *rec.HumanReviewer
	}
	if rec.OverrideReason != nil {
		s.OverrideReason = *rec.OverrideReason
	}
	if rec.Supersedes != nil {
		s.Supersedes = *rec.Supersedes
	}
	for _, c := range in.Corrections {
		s.Corrections = append(s.Corrections, c.DecisionID)
	}

	if base := strings.TrimRight(baseURL, "/"); base != "" {
		id := url.PathEscape(rec.DecisionID)
		s.VerifyURL = base + "/v1/verify/" + id
		s.PackURL = base + "/v1/pack/" + id
	}

	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, s); err != nil {
		return Summary{}, nil, err
	}
	return s, buf.Bytes(), nil
}
