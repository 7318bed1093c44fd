package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/KarrLab/wc-env/pkg/cmd"
)

// CreateContainer instantiates a named container from the primary tag of the
// image named by repo, then installs the container-level package list into
// it. The name comes from expanding the configured strftime format against
// the current moment.
func (m *Manager) CreateContainer(ctx context.Context, repo string) (string, error) {
	img, ok := m.settings.Image(repo)
	if !ok {
		return "", &UnknownImageError{Repo: repo}
	}

	name := Strftime(m.settings.Container.NameFormat, m.now())
	exists, err := m.containerExists(ctx, name)
	if err != nil {
		return "", err
	}
	if exists {
		return "", &ContainerExistsError{Name: name}
	}

	ref := img.Repo + ":" + img.Tags[0]
	run := cmd.New("docker").Arg("run").
		Arg("-d", "-i", "-t").
		Arg("--name", name).
		Arg(ref).
		Arg("bash").
		PreInfo("Creating container " + name + " from " + ref).
		SetVerbose(m.verbose())
	if _, err := m.runner.Run(ctx, run); err != nil {
		return "", fmt.Errorf("creating container %s: %w", name, err)
	}

	for _, pkg := range m.settings.Container.PythonPackages {
		install := cmd.New("docker").Arg("exec", name).
			Arg("pip" + img.PythonVersion).
			Arg("install")
		if editable, ok := strings.CutPrefix(pkg, "-e "); ok {
			install = install.Arg("-e", strings.TrimSpace(editable))
		} else {
			install = install.Arg(pkg)
		}
		install = install.PreInfo("Installing " + pkg).SetVerbose(m.verbose())
		if _, err := m.runner.Run(ctx, install); err != nil {
			return "", fmt.Errorf("installing %s in container %s: %w", pkg, name, err)
		}
	}

	log.Info().Str("container", name).Str("image", ref).Msg("Created")
	return name, nil
}

// containerExists asks the engine whether a container with the given name
// already exists, running or not.
func (m *Manager) containerExists(ctx context.Context, name string) (bool, error) {
	list := cmd.New("docker").Arg("ps", "-a").
		Arg("--filter", "name=^/"+name+"$").
		Arg("--format", "{{.Names}}")
	result, err := m.runner.Run(ctx, list)
	if err != nil {
		return false, fmt.Errorf("listing containers: %w", err)
	}
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// RemoveContainers removes every container whose name matches the
// configured name format.
func (m *Manager) RemoveContainers(ctx context.Context) error {
	list := cmd.New("docker").Arg("ps", "-a").Arg("--format", "{{.Names}}")
	result, err := m.runner.Run(ctx, list)
	if err != nil {
		return fmt.Errorf("listing containers: %w", err)
	}

	pattern := StrftimePattern(m.settings.Container.NameFormat)
	for _, line := range strings.Split(result.Stdout, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || !pattern.MatchString(name) {
			continue
		}
		remover := cmd.New("docker").Arg("rm", "-f").
			Arg(name).
			PreInfo("Removing container " + name).
			SetVerbose(m.verbose())
		if _, err := m.runner.Run(ctx, remover); err != nil {
			return fmt.Errorf("removing container %s: %w", name, err)
		}
	}
	return nil
}
