// Package sector rolls company-level sweep findings up into standing
// sector views.
package sector

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/kabuten/sweep-cli/internal/model"
)

// Sector defines one aggregation bucket. CompanySectors lists the
// company.sector values that roll up into it.
type Sector struct {
	Key            string   `yaml:"key"`
	Label          string   `yaml:"label"`
	CompanySectors []string `yaml:"company_sectors"`
	// Focus carries standing directives for the synthesis prompt.
	Focus []string `yaml:"focus,omitempty"`
}

type sectorsFile struct {
	Sectors []Sector `yaml:"sectors"`
}

// LoadSectors reads and validates the sector definitions file.
func LoadSectors(path string) ([]Sector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sector: read config %s", path)
	}
	var file sectorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "sector: parse config %s", path)
	}
	if len(file.Sectors) == 0 {
		return nil, eris.Errorf("sector: config %s defines no sectors", path)
	}

	seen := make(map[string]bool, len(file.Sectors))
	for i, s := range file.Sectors {
		if s.Key == "" {
			return nil, eris.Errorf("sector: entry %d has no key", i)
		}
		if seen[s.Key] {
			return nil, eris.Errorf("sector: duplicate key %q", s.Key)
		}
		seen[s.Key] = true
		if s.Label == "" {
			return nil, eris.Errorf("sector: %q has no label", s.Key)
		}
		if len(s.CompanySectors) == 0 {
			return nil, eris.Errorf("sector: %q matches no company sectors", s.Key)
		}
	}
	return file.Sectors, nil
}

// Members filters the roster down to companies belonging to the sector.
func (s Sector) Members(companies []model.Company) []model.Company {
	match := make(map[string]bool, len(s.CompanySectors))
	for _, cs := range s.CompanySectors {
		match[cs] = true
	}
	var members []model.Company
	for _, c := range companies {
		if match[c.Sector] {
			members = append(members, c)
		}
	}
	return members
}
