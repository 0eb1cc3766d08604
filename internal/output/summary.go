package output

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Summary is the record written at the end of a run.
type Summary struct {
	Outcome    string  `yaml:"outcome"`
	Device     string  `yaml:"device"`
	Steps      int     `yaml:"steps"`
	Frames     int     `yaml:"frames"`
	FinalTime  float64 `yaml:"final_time"`
	NextDt     float64 `yaml:"next_dt"`
	MaxCourant float64 `yaml:"max_courant"`
	Violations int     `yaml:"courant_violations"`
	Error      string  `yaml:"error,omitempty"`
}

// EncodeSummary writes s as YAML to w.
func EncodeSummary(w io.Writer, s Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	return enc.Close()
}

// WriteSummary writes s to path.
func WriteSummary(path string, s Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating summary: %w", err)
	}
	if err := EncodeSummary(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSummary parses a summary written by WriteSummary.
func ReadSummary(path string) (Summary, error) {
	var s Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}
