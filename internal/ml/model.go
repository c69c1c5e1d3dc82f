package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/zwangde/pulsed-power-ml/internal/models"
	"github.com/zwangde/pulsed-power-ml/internal/nilm"
)

// ApplianceSpec describes one known appliance
type ApplianceSpec struct {
	Name           string  `yaml:"name" json:"name"`
	ApparentPower  float64 `yaml:"apparent_power" json:"apparent_power"` // VA
	SettlingFrames int     `yaml:"settling_frames,omitempty" json:"settling_frames,omitempty"`
}

// NoiseRuleSpec discards an event when the probed power reading is above a limit
type NoiseRuleSpec struct {
	Event     string  `yaml:"event" json:"event"` // on, off
	Appliance int     `yaml:"appliance" json:"appliance"`
	Probe     string  `yaml:"probe" json:"probe"` // newest, oldest
	Above     float64 `yaml:"above" json:"above"`
}

// Model is the reference set of the switching event classifier: the
// appliance catalog, unscaled training features and their labels.
// Labels are one-hot rows of width 2N+1; Classes may be given instead as
// one class index per training row.
type Model struct {
	Version    string          `yaml:"version" json:"version"`
	Appliances []ApplianceSpec `yaml:"appliances" json:"appliances"`
	Features   [][]float64     `yaml:"features" json:"features"`
	Labels     [][]float64     `yaml:"labels,omitempty" json:"labels,omitempty"`
	Classes    []int           `yaml:"classes,omitempty" json:"classes,omitempty"`
	NoiseRules []NoiseRuleSpec `yaml:"noise_rules,omitempty" json:"noise_rules,omitempty"`
}

// LoadModel reads a model file. Files ending in .yaml or .yml are parsed as
// YAML, everything else as JSON.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var model Model
	if isYAML(path) {
		err = yaml.Unmarshal(data, &model)
	} else {
		err = json.Unmarshal(data, &model)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}

	log.Printf("Loaded model %q from %s: %d appliances, %d training samples, %d features",
		model.Version, path, len(model.Appliances), len(model.Features), model.FeatureCount())

	return &model, nil
}

// SaveModel writes the model in the format selected by the file extension
func SaveModel(path string, model *Model) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(model)
	} else {
		data, err = json.MarshalIndent(model, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	log.Printf("Saved model to %s", path)
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Validate checks the shapes of the model. Label contents are checked when
// the classifier is built.
func (m *Model) Validate() error {
	if len(m.Appliances) == 0 {
		return fmt.Errorf("no appliances defined")
	}
	if len(m.Features) == 0 {
		return fmt.Errorf("no training samples")
	}

	width := len(m.Features[0])
	if width == 0 || width%3 != 0 {
		return fmt.Errorf("feature width %d is not a positive multiple of 3", width)
	}
	for i, row := range m.Features {
		if len(row) != width {
			return fmt.Errorf("training sample %d has %d features, expected %d", i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("training sample %d feature %d is not finite: %v", i, j, v)
			}
		}
	}

	switch {
	case len(m.Labels) > 0 && len(m.Classes) > 0:
		return fmt.Errorf("labels and classes are mutually exclusive")
	case len(m.Labels) > 0 && len(m.Labels) != len(m.Features):
		return fmt.Errorf("%d labels for %d training samples", len(m.Labels), len(m.Features))
	case len(m.Classes) > 0 && len(m.Classes) != len(m.Features):
		return fmt.Errorf("%d classes for %d training samples", len(m.Classes), len(m.Features))
	case len(m.Labels) == 0 && len(m.Classes) == 0:
		return fmt.Errorf("no labels")
	}

	for i, c := range m.Classes {
		if c < 0 || c > 2*len(m.Appliances) {
			return fmt.Errorf("class %d of training sample %d out of range [0, %d]", c, i, 2*len(m.Appliances))
		}
	}

	if _, err := m.Rules(); err != nil {
		return err
	}
	return nil
}

// FeatureCount is the width of a feature vector
func (m *Model) FeatureCount() int {
	if len(m.Features) == 0 {
		return 0
	}
	return len(m.Features[0])
}

// MaxPeaks is the number of spectral peaks the feature vectors describe
func (m *Model) MaxPeaks() int {
	return m.FeatureCount() / 3
}

// Catalog converts the appliance specs for the detector
func (m *Model) Catalog() []nilm.Appliance {
	catalog := make([]nilm.Appliance, len(m.Appliances))
	for i, a := range m.Appliances {
		catalog[i] = nilm.Appliance{
			Name:           a.Name,
			ApparentPower:  a.ApparentPower,
			SettlingFrames: a.SettlingFrames,
		}
	}
	return catalog
}

// TrainingSet returns the features with one-hot labels, expanding Classes if needed
func (m *Model) TrainingSet() nilm.TrainingSet {
	labels := m.Labels
	if len(labels) == 0 {
		width := 2*len(m.Appliances) + 1
		labels = make([][]float64, len(m.Classes))
		for i, c := range m.Classes {
			labels[i] = make([]float64, width)
			labels[i][c] = 1
		}
	}
	return nilm.TrainingSet{Features: m.Features, Labels: labels}
}

// Rules parses the noise rule table
func (m *Model) Rules() (nilm.NoiseRules, error) {
	rules := make(nilm.NoiseRules, 0, len(m.NoiseRules))
	for i, rs := range m.NoiseRules {
		kind, err := nilm.ParseEventKind(rs.Event)
		if err != nil {
			return nil, fmt.Errorf("noise rule %d: %w", i, err)
		}
		probe, err := nilm.ParsePowerProbe(rs.Probe)
		if err != nil {
			return nil, fmt.Errorf("noise rule %d: %w", i, err)
		}
		rules = append(rules, nilm.NoiseRule{
			Event: nilm.Event{Kind: kind, Appliance: rs.Appliance},
			Probe: probe,
			Above: rs.Above,
		})
	}
	return rules, nil
}

// Names returns the state vector slot names: appliances then "Unknown"
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.Appliances)+1)
	for _, a := range m.Appliances {
		names = append(names, a.Name)
	}
	return append(names, models.UnknownApplianceName)
}

// Apply copies the model into a detector configuration
func (m *Model) Apply(cfg *nilm.Config) error {
	rules, err := m.Rules()
	if err != nil {
		return err
	}
	cfg.Appliances = m.Catalog()
	cfg.Training = m.TrainingSet()
	cfg.MaxPeaks = m.MaxPeaks()
	cfg.NoiseRules = rules
	return nil
}
