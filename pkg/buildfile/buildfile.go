// Package buildfile loads the YAML build plan. It is a thin data layer:
// values are read, defaulted, and handed to the orchestrator; field-level
// validation belongs to the engine that consumes them.
package buildfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultBaseImage = "alpine:latest"

// File is the top-level build plan.
type File struct {
	From          ImageSpec   `yaml:"from" json:"from"`
	To            ImageSpec   `yaml:"to" json:"to"`
	Layers        []LayerSpec `yaml:"layers" json:"layers"`
	Outputs       OutputSpec  `yaml:"outputs" json:"outputs"`
	AllowInsecure bool        `yaml:"allowInsecureRegistries" json:"allowInsecureRegistries"`
}

// ImageSpec names an image plus how to authenticate against its registry.
type ImageSpec struct {
	Image      string   `yaml:"image" json:"image"`
	Tags       []string `yaml:"tags" json:"tags"`
	Auth       AuthSpec `yaml:"auth" json:"auth"`
	CredHelper string   `yaml:"credHelper" json:"credHelper"`
}

// AuthSpec is the inline auth section of an image. Prefer credential helpers
// or the KILN_*_AUTH_* environment overrides over committing passwords to a
// build file.
type AuthSpec struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LayerSpec is one application layer: a display name and its source files.
type LayerSpec struct {
	Name  string   `yaml:"name" json:"name"`
	Files []string `yaml:"files" json:"files"`
}

// OutputSpec holds the artifact paths written after a successful build.
type OutputSpec struct {
	Digest   string `yaml:"digest" json:"digest"`
	ImageID  string `yaml:"imageId" json:"imageId"`
	Metadata string `yaml:"metadata" json:"metadata"`
}

// Load reads and defaults a build plan from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading build file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing build file %s: %w", path, err)
	}
	f.applyDefaults()
	if f.To.Image == "" {
		return nil, fmt.Errorf("build file %s: 'to.image' is required", path)
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.From.Image == "" {
		f.From.Image = defaultBaseImage
	}
}
