package ledger

import (
	"testing"

	"github.com/davidahmann/licensetriage/internal/crypto"
	"github.com/davidahmann/licensetriage/pkg/types"
)

func testSigner(t *testing.T) crypto.Signer {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	priv, _, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}
	return crypto.Signer{ID: "kid", Priv: priv}
}

func sampleRecord() types.AuditRecord {
	return types.AuditRecord{
		DecisionID:        "d1",
		Timestamp:         "2024-06-01T12:00:00Z",
		ApplicationID:     "APP-2024-001",
		LicenseType:       "Professional Engineer",
		Model:             "scripted",
		TemplateName:      "final_recommendation",
		PromptVersion:     "v2.1",
		PromptTemplates:   []string{"completeness_check@v2.1", "risk_assessment@v2.1", "final_recommendation@v2.1"},
		DecisionFactors:   []string{"policy:moderate_band", "confidence:85"},
		ConfidenceScore:   85,
		CompletenessScore: 90,
		RiskScore:         5,
		RecommendedAction: "approve",
		Disposition:       types.DispositionStaffReview,
		ComplianceCheck:   "passed",
		ConfigDigest:      "sha256:cfg",
	}
}
