// Package config loads the YAML settings file describing the base image,
// the derived images, container naming and registry credentials. Settings
// are resolved (environment variables interpolated, package lists split)
// once at load time and treated as read-only afterwards.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// RequirementsFileName is the name of the generated requirements artifact
// placed in the build context. Copy entries must not collide with it.
const RequirementsFileName = "requirements.txt"

// DefaultContainerNameFormat is used when the container section leaves
// name_format empty. Placeholders follow strftime.
const DefaultContainerNameFormat = "wc_env-%Y-%m-%d-%H-%M-%S"

type Settings struct {
	Verbose   bool          `yaml:"verbose"`
	BaseImage BaseImageSpec `yaml:"base_image"`
	Images    []ImageSpec   `yaml:"images"`
	Container ContainerSpec `yaml:"container"`
	Registry  RegistrySpec  `yaml:"registry"`
}

type BaseImageSpec struct {
	Repo               string            `yaml:"repo"`
	Tags               []string          `yaml:"tags"`
	DockerfileTemplate string            `yaml:"dockerfile_template"`
	Context            string            `yaml:"context"`
	BuildArgs          map[string]string `yaml:"build_args,omitempty"`
}

type ImageSpec struct {
	Repo           string      `yaml:"repo"`
	Tags           []string    `yaml:"tags"`
	Base           string      `yaml:"base,omitempty"`
	ConfigPath     string      `yaml:"config_path,omitempty"`
	SSHKey         string      `yaml:"ssh_key,omitempty"`
	PythonVersion  string      `yaml:"python_version"`
	PythonPackages PackageList `yaml:"python_packages,omitempty"`
	PathsToCopy    []CopyPath  `yaml:"paths_to_copy,omitempty"`
}

// CopyPath maps a host path to its destination inside the image.
type CopyPath struct {
	Host  string `yaml:"host"`
	Image string `yaml:"image"`
}

type ContainerSpec struct {
	NameFormat     string      `yaml:"name_format"`
	PythonPackages PackageList `yaml:"python_packages,omitempty"`
}

// RegistrySpec holds optional registry credentials. When both fields are
// empty, push relies on credentials already cached by the engine.
type RegistrySpec struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Configured reports whether any credential was provided.
func (r RegistrySpec) Configured() bool {
	return r.Username != "" || r.Password != ""
}

// PackageList is an ordered list of package identifiers, decoded from a
// multi-line YAML block. Blank lines and # comments are dropped.
type PackageList []string

func (p *PackageList) UnmarshalYAML(value *yaml.Node) error {
	var block string
	if err := value.Decode(&block); err != nil {
		return err
	}
	*p = SplitPackageBlock(block)
	return nil
}

func (p PackageList) MarshalYAML() (interface{}, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return strings.Join(p, "\n") + "\n", nil
}

// SplitPackageBlock splits a multi-line package block into ordered entries,
// trimming whitespace and dropping blank and comment lines.
func SplitPackageBlock(block string) []string {
	var packages []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		packages = append(packages, line)
	}
	return packages
}

// Load reads, interpolates and validates a settings file.
func Load(filename string) (*Settings, error) {
	file, err := os.Open(filename)
	if err != nil {
		log.Error().Err(err).Str("config", filename).Msg("Error loading config")
		return nil, &ParseError{Path: filename, Err: err}
	}
	defer file.Close()

	var settings Settings
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil {
		log.Error().Err(err).Msg("Decoding YAML " + filename + " failed! Check syntax and try again")
		return nil, &ParseError{Path: filename, Err: err}
	}

	if err := settings.resolve(); err != nil {
		return nil, err
	}
	if err := settings.validate(filename); err != nil {
		return nil, err
	}
	return &settings, nil
}

// resolve interpolates ${VAR} references in every path-valued field and
// fills in defaults.
func (s *Settings) resolve() error {
	expand := func(field string, value *string) error {
		resolved, err := interpolate(*value, field)
		if err != nil {
			return err
		}
		*value = resolved
		return nil
	}

	if err := expand("base_image.dockerfile_template", &s.BaseImage.DockerfileTemplate); err != nil {
		return err
	}
	if err := expand("base_image.context", &s.BaseImage.Context); err != nil {
		return err
	}
	for i := range s.Images {
		img := &s.Images[i]
		prefix := fmt.Sprintf("images[%d]", i)
		if err := expand(prefix+".config_path", &img.ConfigPath); err != nil {
			return err
		}
		if err := expand(prefix+".ssh_key", &img.SSHKey); err != nil {
			return err
		}
		for j := range img.PathsToCopy {
			p := &img.PathsToCopy[j]
			if err := expand(fmt.Sprintf("%s.paths_to_copy[%d].host", prefix, j), &p.Host); err != nil {
				return err
			}
			if err := expand(fmt.Sprintf("%s.paths_to_copy[%d].image", prefix, j), &p.Image); err != nil {
				return err
			}
		}
		if img.Base == "" {
			img.Base = s.BaseImage.Repo
		}
	}
	if s.Container.NameFormat == "" {
		s.Container.NameFormat = DefaultContainerNameFormat
	}
	return nil
}

func (s *Settings) validate(filename string) error {
	if s.BaseImage.Repo == "" {
		return &ParseError{Path: filename, Err: fmt.Errorf("missing required key base_image.repo")}
	}
	if len(s.BaseImage.Tags) == 0 {
		return &ValueError{Field: "base_image.tags", Msg: "tag list must not be empty"}
	}

	repos := map[string]bool{s.BaseImage.Repo: true}
	for _, img := range s.Images {
		repos[img.Repo] = true
	}

	baseReferenced := false
	for i, img := range s.Images {
		field := fmt.Sprintf("images[%d]", i)
		if img.Repo == "" {
			return &ParseError{Path: filename, Err: fmt.Errorf("missing required key %s.repo", field)}
		}
		if len(img.Tags) == 0 {
			return &ValueError{Field: field + ".tags", Msg: "tag list must not be empty"}
		}
		if !repos[img.Base] {
			return &ValueError{Field: field + ".base", Msg: fmt.Sprintf("unknown base image %q", img.Base)}
		}
		if img.Base == s.BaseImage.Repo {
			baseReferenced = true
		}
		for j, p := range img.PathsToCopy {
			if p.Host == "" || p.Image == "" {
				return &ValueError{Field: fmt.Sprintf("%s.paths_to_copy[%d]", field, j), Msg: "host and image paths are required"}
			}
			if strings.HasSuffix(p.Host, RequirementsFileName) {
				return &ValueError{
					Field: fmt.Sprintf("%s.paths_to_copy[%d].host", field, j),
					Msg:   "copied files cannot have name " + RequirementsFileName,
				}
			}
		}
	}
	if len(s.Images) > 0 && !baseReferenced {
		return &ValueError{Field: "images", Msg: "at least one image must build from " + s.BaseImage.Repo}
	}
	return nil
}

// Image resolves an image spec by repo name.
func (s *Settings) Image(repo string) (*ImageSpec, bool) {
	for i := range s.Images {
		if s.Images[i].Repo == repo {
			return &s.Images[i], true
		}
	}
	return nil, false
}
