package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Manifest is a JSON snapshot of a composite: its factors in render order,
// their statistics and a digest of the rendered prompt.
type Manifest struct {
	TaskDescription string            `json:"task_description"`
	Factors         []FactorEntry     `json:"factors"`
	SHA256          string            `json:"sha256"`
	Rendered        string            `json:"rendered"`
	CreatedAt       string            `json:"created_at"`
	Labels          map[string]string `json:"labels,omitempty"`
}

// FactorEntry is one factor inside a Manifest.
type FactorEntry struct {
	Name    string      `json:"name"`
	Content string      `json:"content"`
	Stats   FactorStats `json:"stats"`
}

// Manifest snapshots the composite.
func (c *Composite) Manifest() *Manifest {
	rendered := c.Render()
	hash := sha256.Sum256([]byte(rendered))

	m := &Manifest{
		TaskDescription: c.taskDescription,
		Factors:         make([]FactorEntry, 0, len(c.order)),
		SHA256:          hex.EncodeToString(hash[:]),
		Rendered:        rendered,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	for _, name := range c.order {
		m.Factors = append(m.Factors, FactorEntry{
			Name:    name,
			Content: c.factors[name],
			Stats:   *c.stats[name],
		})
	}
	return m
}

// SetLabel attaches a free-form label (dataset, run id, ...).
func (m *Manifest) SetLabel(key, value string) {
	if m.Labels == nil {
		m.Labels = make(map[string]string)
	}
	m.Labels[key] = value
}

// Validate checks the manifest is internally consistent.
func (m *Manifest) Validate() error {
	if len(m.Factors) == 0 {
		return fmt.Errorf("manifest has no factors")
	}
	seen := make(map[string]bool, len(m.Factors))
	for _, f := range m.Factors {
		if f.Name == "" {
			return fmt.Errorf("manifest factor name is required")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate factor %q in manifest", f.Name)
		}
		seen[f.Name] = true
	}
	hash := sha256.Sum256([]byte(m.Rendered))
	if hex.EncodeToString(hash[:]) != m.SHA256 {
		return fmt.Errorf("manifest digest does not match rendered prompt")
	}
	return nil
}

// Composite rebuilds a composite from the manifest, statistics included.
func (m *Manifest) Composite() *Composite {
	c := New(m.TaskDescription)
	for _, f := range m.Factors {
		c.AddFactor(f.Name, f.Content)
		st := f.Stats
		c.stats[f.Name] = &st
	}
	return c
}

// ToJSON converts the manifest to JSON
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON creates a manifest from JSON
func FromJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
