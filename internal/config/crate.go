package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/OFFIS-RIT/rquest-bridge/internal/crate"

	"gopkg.in/yaml.v3"
)

// CrateFile is the static crate metadata kept in CRATE_CONFIG:
//
//	license:
//	  uri: https://spdx.org/licenses/CC-BY-4.0
//	  properties:
//	    name: CC BY 4.0
//	agent:
//	  id: https://orcid.org/0000-0000-0000-0000
//	  name: Jane Doe
type CrateFile struct {
	License      crate.License      `yaml:"license"`
	Agent        crate.Agent        `yaml:"agent"`
	Project      crate.Project      `yaml:"project"`
	Organisation crate.Organisation `yaml:"organisation"`
}

// LoadCrateFile reads and decodes a crate metadata file. Unknown keys are
// rejected so typos do not silently drop metadata.
func LoadCrateFile(path string) (*CrateFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open crate config: %w", err)
	}
	defer f.Close()

	var meta CrateFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&meta); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse crate config %s: %w", path, err)
	}
	return &meta, nil
}

func (m *CrateFile) apply(opts *crate.Options) {
	opts.License = m.License
	opts.Agent = m.Agent
	opts.Project = m.Project
	opts.Organisation = m.Organisation
}
