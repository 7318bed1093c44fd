// Package manager orchestrates the image-build workflow: render a
// Dockerfile into a build context, invoke the container engine, apply tags,
// push, and instantiate named containers. Every external action goes through
// an injected cmd.Runner; there is no internal state machine and ordering
// between operations (base image before dependent image before container) is
// the caller's responsibility.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KarrLab/wc-env/pkg/cmd"
	"github.com/KarrLab/wc-env/pkg/config"
	"github.com/KarrLab/wc-env/pkg/dockerfile"
	"github.com/KarrLab/wc-env/pkg/requirements"
	"github.com/KarrLab/wc-env/pkg/util"
)

// imageRequirementsFileName is where the requirements artifact lands inside
// a derived image.
const imageRequirementsFileName = "/tmp/requirements.txt"

type Manager struct {
	settings *config.Settings
	runner   cmd.Runner
	now      func() time.Time
}

func New(settings *config.Settings, runner cmd.Runner) *Manager {
	return &Manager{
		settings: settings,
		runner:   runner,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for container naming.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) verbose() bool {
	return m.settings.Verbose
}

// BuildBaseImage builds the third-party dependency image: collate the
// requirements of every configured image, render the base Dockerfile
// template with its build args, build and tag.
func (m *Manager) BuildBaseImage(ctx context.Context) error {
	base := m.settings.BaseImage

	buildDir, err := os.MkdirTemp("", "wc-env-build-")
	if err != nil {
		return err
	}
	defer func() { util.WarnOnError(os.RemoveAll(buildDir), "cleaning up build context") }()

	if base.Context != "" {
		if err := copyContext(base.Context, buildDir); err != nil {
			return err
		}
	}

	var packages []string
	for _, img := range m.settings.Images {
		packages = append(packages, img.PythonPackages...)
	}
	reqs, err := requirements.Collate(ctx, packages)
	if err != nil {
		return err
	}
	if err := writeRequirements(buildDir, reqs); err != nil {
		return err
	}

	templateText, err := os.ReadFile(base.DockerfileTemplate)
	if err != nil {
		return err
	}
	args := make(map[string]interface{}, len(base.BuildArgs)+1)
	for k, v := range base.BuildArgs {
		args[k] = v
	}
	args["image_tag"] = versionTag(base.Tags)

	text, err := dockerfile.RenderMap(string(templateText), args)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(buildDir, "Dockerfile"), []byte(text), 0o644); err != nil {
		return err
	}

	return m.buildAndTag(ctx, base.Repo, base.Tags, buildDir, true)
}

// BuildImage builds the derived image named by repo: stage copy paths and
// the requirements artifact into a build context, render the Dockerfile,
// build and tag.
func (m *Manager) BuildImage(ctx context.Context, repo string) error {
	img, ok := m.settings.Image(repo)
	if !ok {
		return &UnknownImageError{Repo: repo}
	}

	buildDir, err := os.MkdirTemp("", "wc-env-build-")
	if err != nil {
		return err
	}
	defer func() { util.WarnOnError(os.RemoveAll(buildDir), "cleaning up build context") }()

	pathsToCopy, err := m.collectPathsToCopy(img)
	if err != nil {
		return err
	}
	staged, err := stagePathsToCopy(buildDir, pathsToCopy)
	if err != nil {
		return err
	}

	requirementsFileName := ""
	if len(img.PythonPackages) > 0 {
		if err := writeRequirements(buildDir, img.PythonPackages); err != nil {
			return err
		}
		staged = append(staged, config.CopyPath{
			Host:  config.RequirementsFileName,
			Image: imageRequirementsFileName,
		})
		requirementsFileName = imageRequirementsFileName
	}

	baseTags, err := m.baseTags(img.Base)
	if err != nil {
		return err
	}
	text, err := dockerfile.Render(dockerfile.DefaultTemplate, dockerfile.RenderContext{
		Repo:                 img.Base,
		Tags:                 baseTags,
		PythonVersion:        img.PythonVersion,
		RequirementsFileName: requirementsFileName,
		PathsToCopy:          staged,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(buildDir, "Dockerfile"), []byte(text), 0o644); err != nil {
		return err
	}

	return m.buildAndTag(ctx, img.Repo, img.Tags, buildDir, false)
}

// baseTags resolves the tag list of the image a derived image builds from.
// The first tag is the primary one used in FROM lines.
func (m *Manager) baseTags(base string) ([]string, error) {
	if base == m.settings.BaseImage.Repo {
		return m.settings.BaseImage.Tags, nil
	}
	if img, ok := m.settings.Image(base); ok {
		return img.Tags, nil
	}
	return nil, &UnknownImageError{Repo: base}
}

// collectPathsToCopy gathers the configuration files (*.cfg from the config
// directory), the ssh key and the explicit copy entries of an image spec.
func (m *Manager) collectPathsToCopy(img *config.ImageSpec) ([]config.CopyPath, error) {
	var paths []config.CopyPath

	if img.ConfigPath != "" {
		matches, err := filepath.Glob(filepath.Join(img.ConfigPath, "*.cfg"))
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			paths = append(paths, config.CopyPath{
				Host:  match,
				Image: filepath.Join("/root/.wc", filepath.Base(match)),
			})
		}
	}
	if img.SSHKey != "" {
		paths = append(paths, config.CopyPath{Host: img.SSHKey, Image: "/root/.ssh/id_rsa"})
	}
	return append(paths, img.PathsToCopy...), nil
}

// stagePathsToCopy copies host paths into the build context and rewrites
// them relative to it, preserving input order.
func stagePathsToCopy(buildDir string, paths []config.CopyPath) ([]config.CopyPath, error) {
	staged := make([]config.CopyPath, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p.Host)
		if err != nil {
			return nil, err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(abs), "/")
		if err := util.CopyTree(abs, filepath.Join(buildDir, filepath.FromSlash(rel))); err != nil {
			return nil, err
		}
		staged = append(staged, config.CopyPath{Host: rel, Image: p.Image})
	}
	return staged, nil
}

func writeRequirements(buildDir string, packages []string) error {
	name := filepath.Join(buildDir, config.RequirementsFileName)
	return os.WriteFile(name, []byte(strings.Join(packages, "\n")+"\n"), 0o644)
}

// versionTag picks the tag embedded into the base template as image_tag: the
// pinned version when one follows the primary tag, the primary tag otherwise.
func versionTag(tags []string) string {
	if len(tags) > 1 {
		return tags[1]
	}
	return tags[0]
}

// buildAndTag invokes the engine once and then applies every tag in order.
func (m *Manager) buildAndTag(ctx context.Context, repo string, tags []string, buildDir string, pull bool) error {
	primary := repo + ":" + tags[0]

	build := cmd.New("docker").Arg("build").
		Arg("-f", "Dockerfile").
		Arg("-t", primary)
	if pull {
		build = build.Arg("--pull")
	}
	build = build.Arg(".").
		Dir(buildDir).
		PreInfo("Building " + primary).
		SetVerbose(m.verbose())

	if result, err := m.runner.Run(ctx, build); err != nil {
		return &BuildError{Ref: primary, ExitCode: result.ExitCode, Output: result.Output(), Err: err}
	}

	for _, tag := range tags[1:] {
		ref := repo + ":" + tag
		tagger := cmd.New("docker").Arg("tag").
			Arg(primary).
			Arg(ref).
			PreInfo("Tagging " + ref).
			SetVerbose(m.verbose())
		if result, err := m.runner.Run(ctx, tagger); err != nil {
			return &BuildError{Ref: ref, ExitCode: result.ExitCode, Output: result.Output(), Err: err}
		}
	}

	log.Info().Str("image", repo).Interface("tags", tags).Msg("Built")
	return nil
}

// RemoveImage removes every tagged version of the named image.
func (m *Manager) RemoveImage(ctx context.Context, repo string) error {
	tags, err := m.imageTags(repo)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		remover := cmd.New("docker").Arg("image", "rm", "-f").
			Arg(repo + ":" + tag).
			SetVerbose(m.verbose())
		if _, err := m.runner.Run(ctx, remover); err != nil {
			return fmt.Errorf("removing %s:%s: %w", repo, tag, err)
		}
	}
	return nil
}

// imageTags resolves the tag list of any configured repo, base included.
func (m *Manager) imageTags(repo string) ([]string, error) {
	if repo == m.settings.BaseImage.Repo {
		return m.settings.BaseImage.Tags, nil
	}
	if img, ok := m.settings.Image(repo); ok {
		return img.Tags, nil
	}
	return nil, &UnknownImageError{Repo: repo}
}

func copyContext(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("build context %q must be a directory", src)
	}
	return util.CopyTree(src, dst)
}
