package policy

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/licensetriage/internal/crypto"
	"github.com/davidahmann/licensetriage/pkg/types"
)

type LoadedPolicy struct {
	Policy Policy
	Hash   string
	Bytes  []byte
}

// LoadPolicy loads a YAML policy and computes its hash from raw bytes.
func LoadPolicy(path string) (LoadedPolicy, error) {
	// #nosec G304 -- path comes from operator-configured policy path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedPolicy{}, err
	}
	return ParsePolicy(data)
}

func ParsePolicy(data []byte) (LoadedPolicy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return LoadedPolicy{}, err
	}
	if err := p.Validate(); err != nil {
		return LoadedPolicy{}, err
	}

	return LoadedPolicy{
		Policy: p,
		Hash:   crypto.DigestWithPrefix(data),
		Bytes:  data,
	}, nil
}

// Decide runs the loaded policy and stamps the decision with its hash.
func (l LoadedPolicy) Decide(d types.ValidatedDecision, flags types.ReviewFlags) Decision {
	decision := Decide(l.Policy, d, flags)
	decision.PolicyHash = l.Hash
	return decision
}
