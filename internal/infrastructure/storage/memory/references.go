package memory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"stockpile/internal/domain/grn"
)

var _ grn.ReferenceDirectory = (*ReferenceDirectory)(nil)

// ReferenceDirectory serves a fixed list of references.
type ReferenceDirectory struct {
	refs []grn.Reference
}

// NewReferenceDirectory creates a directory over refs, keeping their order.
func NewReferenceDirectory(refs []grn.Reference) *ReferenceDirectory {
	return &ReferenceDirectory{refs: append([]grn.Reference(nil), refs...)}
}

// referenceFile is the on-disk fixture layout.
type referenceFile struct {
	References []struct {
		ID           string `yaml:"id"`
		RefType      string `yaml:"refType"`
		Counterparty string `yaml:"counterparty"`
		Article      string `yaml:"article"`
		Total        string `yaml:"total"`
	} `yaml:"references"`
}

// LoadReferences reads a YAML fixture file.
func LoadReferences(path string) (*ReferenceDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read references file: %w", err)
	}
	refs, err := ParseReferences(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewReferenceDirectory(refs), nil
}

// ParseReferences decodes YAML fixture content.
func ParseReferences(data []byte) ([]grn.Reference, error) {
	var file referenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	refs := make([]grn.Reference, 0, len(file.References))
	seen := make(map[string]struct{}, len(file.References))
	for i, r := range file.References {
		refType := grn.RefType(strings.TrimSpace(r.RefType))
		if !refType.Valid() {
			return nil, fmt.Errorf("reference %d: unknown refType %q", i, r.RefType)
		}
		refID := strings.TrimSpace(r.ID)
		if refID == "" {
			return nil, fmt.Errorf("reference %d: id is required", i)
		}
		key := string(refType) + "/" + refID
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("reference %d: duplicate %s", i, key)
		}
		seen[key] = struct{}{}

		total := decimal.Zero
		if r.Total != "" {
			var err error
			if total, err = decimal.NewFromString(r.Total); err != nil {
				return nil, fmt.Errorf("reference %s: total: %w", refID, err)
			}
		}
		refs = append(refs, grn.Reference{
			ID:               refID,
			RefType:          refType,
			CounterpartyName: r.Counterparty,
			ArticleName:      r.Article,
			Total:            total,
		})
	}
	return refs, nil
}

// Find returns the reference with the given type and id, or nil.
func (d *ReferenceDirectory) Find(_ context.Context, refType grn.RefType, refID string) (*grn.Reference, error) {
	for _, r := range d.refs {
		if r.RefType == refType && r.ID == refID {
			ref := r
			return &ref, nil
		}
	}
	return nil, nil
}

// Search matches text against id, counterparty and article, ignoring case.
func (d *ReferenceDirectory) Search(_ context.Context, text string) ([]grn.Reference, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	out := make([]grn.Reference, 0, len(d.refs))
	for _, r := range d.refs {
		if needle == "" ||
			strings.Contains(strings.ToLower(r.ID), needle) ||
			strings.Contains(strings.ToLower(r.CounterpartyName), needle) ||
			strings.Contains(strings.ToLower(r.ArticleName), needle) {
			out = append(out, r)
		}
	}
	return out, nil
}
