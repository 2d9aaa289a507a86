// Package pack exports an audit record and the configuration it was decided
// under as a self-verifying zip.
package pack

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/licensetriage/internal/crypto"
	"github.com/davidahmann/licensetriage/internal/ledger"
)

// Input is everything needed to export one decision.
type Input struct {
	Entry       ledger.AuditEntry
	Corrections []ledger.AuditEntry
	Templates   []byte
	Policy      []byte
	// Settings is the canonical document the config digest hashes. Older
	// snapshots may not carry one.
	Settings  []byte
	PublicKey []byte
	CreatedAt   string
}

type ManifestFile struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
}

type Manifest struct {
	DecisionID    string         `json:"decision_id"`
	ApplicationID string         `json:"application_id"`
	Disposition   string         `json:"disposition"`
	BodyDigest    string         `json:"body_digest"`
	ConfigDigest  string         `json:"config_digest,omitempty"`
	KeyID         string         `json:"key_id"`
	PublicKey     string         `json:"public_key,omitempty"`
	Signature     string         `json:"sig"`
	Corrections   []string       `json:"corrections,omitempty"`
	CreatedAt     string         `json:"created_at"`
	VerifyURL     string         `json:"verify_url,omitempty"`
	Files         []ManifestFile `json:"files"`
}

// BuildFiles lays out the pack contents by file name.
func BuildFiles(in Input, baseURL string) (map[string][]byte, error) {
	if in.Entry.DecisionID == "" || len(in.Entry.BodyJSON) == 0 {
		return nil, fmt.Errorf("missing audit entry")
	}
	if len(in.Policy) == 0 {
		return nil, fmt.Errorf("missing policy")
	}
	if len(in.Templates) == 0 {
		return nil, fmt.Errorf("missing templates")
	}

	files := map[string][]byte{
		"audit.json":     in.Entry.BodyJSON,
		"templates.yaml": in.Templates,
		"policy.yaml":    in.Policy,
	}
	if len(in.Settings) > 0 {
		files["settings.json"] = in.Settings
	}

	var correctionIDs []string
	if len(in.Corrections) > 0 {
		bodies := make([]json.RawMessage, 0, len(in.Corrections))
		for _, c := range in.Corrections {
			bodies = append(bodies, json.RawMessage(c.BodyJSON))
			correctionIDs = append(correctionIDs, c.DecisionID)
		}
		raw, err := json.MarshalIndent(bodies, "", "  ")
		if err != nil {
			return nil, err
		}
		files["corrections.json"] = raw
	}

	summary, html, err := BuildSummary(in, baseURL)
	if err != nil {
		return nil, err
	}
	files["summary.html"] = html

	manifest := Manifest{
		DecisionID:    in.Entry.DecisionID,
		ApplicationID: in.Entry.ApplicationID,
		Disposition:   in.Entry.Disposition,
		BodyDigest:    in.Entry.BodyDigest,
		ConfigDigest:  in.Entry.ConfigDigest,
		KeyID:         in.Entry.KeyID,
		Signature:     base64.StdEncoding.EncodeToString(in.Entry.Sig),
		Corrections:   correctionIDs,
		CreatedAt:     in.CreatedAt,
		VerifyURL:     summary.VerifyURL,
	}
	if len(in.PublicKey) > 0 {
		manifest.PublicKey = base64.StdEncoding.EncodeToString(in.PublicKey)
	}
	for _, name := range sortedNames(files) {
		manifest.Files = append(manifest.Files, ManifestFile{Name: name, SHA256: hexDigest(files[name])})
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	files["manifest.json"] = manifestJSON

	var sums strings.Builder
	for _, name := range sortedNames(files) {
		fmt.Fprintf(&sums, "%s  %s\n", hexDigest(files[name]), name)
	}
	files["sha256sums.txt"] = []byte(sums.String())
	return files, nil
}

// BuildZip renders the pack as zip bytes.
func BuildZip(in Input, baseURL string) ([]byte, error) {
	files, err := BuildFiles(in, baseURL)
	if err != nil {
		return nil, err
	}
	modified, _ := time.Parse(time.RFC3339, in.CreatedAt)

	buf := bytes.NewBuffer(nil)
	if err := writeZip(buf, files, modified); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteZip writes files in name order.
func WriteZip(w io.Writer, files map[string][]byte) error {
	return writeZip(w, files, time.Time{})
}

func writeZip(w io.Writer, files map[string][]byte, modified time.Time) error {
	zw := zip.NewWriter(w)
	for _, name := range sortedNames(files) {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if !modified.IsZero() {
			header.Modified = modified.UTC()
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			_ = zw.Close()
			return err
		}
		if _, err := fw.Write(files[name]); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func hexDigest(b []byte) string {
	return hex.EncodeToString(crypto.DigestBytes(b))
}
