package manager_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KarrLab/wc-env/pkg/cmd"
	"github.com/KarrLab/wc-env/pkg/config"
	"github.com/KarrLab/wc-env/pkg/manager"
)

// fakeRunner records every command and serves scripted results, capturing
// the generated build context before it is cleaned up.
type fakeRunner struct {
	commands []string
	// Dockerfile and requirements artifact captured from each docker build
	dockerfiles  []string
	requirements []string
	contextFiles [][]string

	// substring of command string -> canned stdout
	stdout map[string]string
	// substring of command string -> failure
	failOn     string
	failResult cmd.Result
}

func (f *fakeRunner) Run(_ context.Context, c *cmd.Cmd) (cmd.Result, error) {
	line := c.String()
	f.commands = append(f.commands, line)

	if strings.HasPrefix(line, "docker build") {
		dir := c.WorkDir()
		if data, err := os.ReadFile(filepath.Join(dir, "Dockerfile")); err == nil {
			f.dockerfiles = append(f.dockerfiles, string(data))
		}
		if data, err := os.ReadFile(filepath.Join(dir, config.RequirementsFileName)); err == nil {
			f.requirements = append(f.requirements, string(data))
		}
		var files []string
		_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				rel, _ := filepath.Rel(dir, path)
				files = append(files, filepath.ToSlash(rel))
			}
			return nil
		})
		f.contextFiles = append(f.contextFiles, files)
	}

	if f.failOn != "" && strings.Contains(line, f.failOn) {
		return f.failResult, errors.New("exit status 1")
	}
	for needle, out := range f.stdout {
		if strings.Contains(line, needle) {
			return cmd.Result{Stdout: out}, nil
		}
	}
	return cmd.Result{}, nil
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	sshKey := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(sshKey, []byte("key"), 0o600))

	configDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "core.cfg"), []byte("[wc]\n"), 0o644))

	return &config.Settings{
		BaseImage: config.BaseImageSpec{
			Repo: "acme/base",
			Tags: []string{"latest", "1.2"},
		},
		Images: []config.ImageSpec{{
			Repo:           "acme/app",
			Tags:           []string{"latest", "0.0.1"},
			Base:           "acme/base",
			ConfigPath:     configDir,
			SSHKey:         sshKey,
			PythonVersion:  "3.6",
			PythonPackages: config.PackageList{"pylint", "pytest"},
		}},
		Container: config.ContainerSpec{
			NameFormat:     "wc_env-%Y-%m-%d",
			PythonPackages: config.PackageList{"ipython"},
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
}

func TestBuildImageUnknownRepo(t *testing.T) {
	runner := &fakeRunner{}
	m := manager.New(testSettings(t), runner)

	err := m.BuildImage(context.Background(), "acme/nope")
	var unknownErr *manager.UnknownImageError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "acme/nope", unknownErr.Repo)
	assert.Empty(t, runner.commands)
}

func TestBuildImage(t *testing.T) {
	runner := &fakeRunner{}
	m := manager.New(testSettings(t), runner)

	require.NoError(t, m.BuildImage(context.Background(), "acme/app"))

	// one build, then one tag per secondary tag
	require.Len(t, runner.commands, 2)
	assert.Contains(t, runner.commands[0], "docker build")
	assert.Contains(t, runner.commands[0], "-t acme/app:latest")
	assert.Equal(t, "docker tag acme/app:latest acme/app:0.0.1", runner.commands[1])

	require.Len(t, runner.dockerfiles, 1)
	rendered := runner.dockerfiles[0]
	assert.Contains(t, rendered, "FROM acme/base:latest")
	assert.Contains(t, rendered, "/root/.wc/core.cfg")
	assert.Contains(t, rendered, "/root/.ssh/id_rsa")
	assert.Contains(t, rendered, "COPY requirements.txt /tmp/requirements.txt")
	assert.Contains(t, rendered, "pip3.6 install -U -r /tmp/requirements.txt")

	require.Len(t, runner.requirements, 1)
	assert.Equal(t, "pylint\npytest\n", runner.requirements[0])
}

func TestBuildImageNoPackages(t *testing.T) {
	settings := testSettings(t)
	settings.Images[0].PythonPackages = nil

	runner := &fakeRunner{}
	m := manager.New(settings, runner)
	require.NoError(t, m.BuildImage(context.Background(), "acme/app"))

	require.Len(t, runner.dockerfiles, 1)
	assert.NotContains(t, runner.dockerfiles[0], "pip3.6 install")
	assert.Empty(t, runner.requirements)
}

func TestBuildImageError(t *testing.T) {
	runner := &fakeRunner{
		failOn:     "docker build",
		failResult: cmd.Result{ExitCode: 1, Stderr: "unknown instruction: COPPY\n"},
	}
	m := manager.New(testSettings(t), runner)

	err := m.BuildImage(context.Background(), "acme/app")
	var buildErr *manager.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 1, buildErr.ExitCode)
	assert.Contains(t, buildErr.Output, "unknown instruction")
	assert.Equal(t, "acme/app:latest", buildErr.Ref)
}

func TestBuildBaseImage(t *testing.T) {
	settings := testSettings(t)

	contextDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "setup.sh"), []byte("#!/bin/sh\n"), 0o755))

	template := filepath.Join(t.TempDir(), "base.Dockerfile.tpl")
	require.NoError(t, os.WriteFile(template, []byte(
		"FROM ubuntu:24.04\nARG python={{ .python_version }}\nLABEL version={{ .image_tag }}\n"), 0o644))

	settings.BaseImage.Context = contextDir
	settings.BaseImage.DockerfileTemplate = template
	settings.BaseImage.BuildArgs = map[string]string{"python_version": "3.6"}

	runner := &fakeRunner{}
	m := manager.New(settings, runner)
	require.NoError(t, m.BuildBaseImage(context.Background()))

	require.Len(t, runner.commands, 2)
	assert.Contains(t, runner.commands[0], "docker build")
	assert.Contains(t, runner.commands[0], "-t acme/base:latest")
	assert.Contains(t, runner.commands[0], "--pull")
	assert.Equal(t, "docker tag acme/base:latest acme/base:1.2", runner.commands[1])

	require.Len(t, runner.dockerfiles, 1)
	assert.Contains(t, runner.dockerfiles[0], "ARG python=3.6")
	// the second tag is the pinned version embedded into the template
	assert.Contains(t, runner.dockerfiles[0], "LABEL version=1.2")

	// requirements of the configured images, collated and sorted
	require.Len(t, runner.requirements, 1)
	assert.Equal(t, "pylint\npytest\n", runner.requirements[0])

	// the context directory was copied into the build dir
	require.Len(t, runner.contextFiles, 1)
	assert.Contains(t, runner.contextFiles[0], "setup.sh")
}

func TestCreateContainer(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{"docker ps": ""}}
	m := manager.New(testSettings(t), runner).WithClock(fixedClock)

	name, err := m.CreateContainer(context.Background(), "acme/app")
	require.NoError(t, err)
	assert.Equal(t, "wc_env-2024-03-05", name)

	require.Len(t, runner.commands, 3)
	assert.Contains(t, runner.commands[0], "docker ps -a")
	assert.Contains(t, runner.commands[1], "docker run")
	assert.Contains(t, runner.commands[1], "--name wc_env-2024-03-05")
	assert.Contains(t, runner.commands[1], "acme/app:latest bash")
	assert.Equal(t, "docker exec wc_env-2024-03-05 pip3.6 install ipython", runner.commands[2])
}

func TestCreateContainerExists(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{"docker ps": "wc_env-2024-03-05\n"}}
	m := manager.New(testSettings(t), runner).WithClock(fixedClock)

	_, err := m.CreateContainer(context.Background(), "acme/app")
	var existsErr *manager.ContainerExistsError
	require.ErrorAs(t, err, &existsErr)
	assert.Equal(t, "wc_env-2024-03-05", existsErr.Name)
	// nothing was created
	require.Len(t, runner.commands, 1)
}

func TestCreateContainerEditablePackage(t *testing.T) {
	settings := testSettings(t)
	settings.Container.PythonPackages = config.PackageList{"-e /usr/git_repos/wc_lang"}

	runner := &fakeRunner{stdout: map[string]string{"docker ps": ""}}
	m := manager.New(settings, runner).WithClock(fixedClock)

	_, err := m.CreateContainer(context.Background(), "acme/app")
	require.NoError(t, err)
	assert.Equal(t, "docker exec wc_env-2024-03-05 pip3.6 install -e /usr/git_repos/wc_lang",
		runner.commands[2])
}

func TestPushAllTags(t *testing.T) {
	runner := &fakeRunner{}
	m := manager.New(testSettings(t), runner)

	require.NoError(t, m.Push(context.Background(), "acme/app"))
	require.Len(t, runner.commands, 2)
	assert.Equal(t, "docker push acme/app:latest", runner.commands[0])
	assert.Equal(t, "docker push acme/app:0.0.1", runner.commands[1])
}

func TestPushLogsInWhenConfigured(t *testing.T) {
	settings := testSettings(t)
	settings.Registry = config.RegistrySpec{Username: "jane", Password: "hunter2"}

	runner := &fakeRunner{}
	m := manager.New(settings, runner)

	require.NoError(t, m.Push(context.Background(), "acme/app"))
	require.Len(t, runner.commands, 3)
	assert.Contains(t, runner.commands[0], "docker login -u jane")
	// the password never reaches logs or recorded command lines
	assert.NotContains(t, runner.commands[0], "hunter2")
}

func TestPushHalfConfiguredCredentials(t *testing.T) {
	settings := testSettings(t)
	settings.Registry = config.RegistrySpec{Username: "jane"}

	m := manager.New(settings, &fakeRunner{})
	err := m.Push(context.Background(), "acme/app")
	var authErr *manager.AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestPushError(t *testing.T) {
	runner := &fakeRunner{
		failOn:     "docker push",
		failResult: cmd.Result{ExitCode: 1, Stderr: "connection timed out\n"},
	}
	m := manager.New(testSettings(t), runner)

	err := m.Push(context.Background(), "acme/app")
	var pushErr *manager.PushError
	require.ErrorAs(t, err, &pushErr)
	assert.Equal(t, "acme/app:latest", pushErr.Ref)
	assert.Contains(t, pushErr.Output, "connection timed out")
}

func TestPushUnknownRepo(t *testing.T) {
	m := manager.New(testSettings(t), &fakeRunner{})
	err := m.Push(context.Background(), "acme/nope")
	var unknownErr *manager.UnknownImageError
	require.ErrorAs(t, err, &unknownErr)
}

func TestPullBaseImage(t *testing.T) {
	runner := &fakeRunner{}
	m := manager.New(testSettings(t), runner)

	require.NoError(t, m.Pull(context.Background(), "acme/base"))
	require.Len(t, runner.commands, 2)
	assert.Equal(t, "docker pull acme/base:latest", runner.commands[0])
	assert.Equal(t, "docker pull acme/base:1.2", runner.commands[1])
}

func TestLoginRequiresCredentials(t *testing.T) {
	m := manager.New(testSettings(t), &fakeRunner{})
	err := m.Login(context.Background())
	var authErr *manager.AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestRemoveImage(t *testing.T) {
	runner := &fakeRunner{}
	m := manager.New(testSettings(t), runner)

	require.NoError(t, m.RemoveImage(context.Background(), "acme/app"))
	require.Len(t, runner.commands, 2)
	assert.Equal(t, "docker image rm -f acme/app:latest", runner.commands[0])
	assert.Equal(t, "docker image rm -f acme/app:0.0.1", runner.commands[1])
}

func TestRemoveContainersMatchesNameFormat(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{
		"docker ps": "wc_env-2024-03-05\nunrelated\nwc_env-2023-12-31\n",
	}}
	m := manager.New(testSettings(t), runner)

	require.NoError(t, m.RemoveContainers(context.Background()))
	require.Len(t, runner.commands, 3)
	assert.Equal(t, "docker rm -f wc_env-2024-03-05", runner.commands[1])
	assert.Equal(t, "docker rm -f wc_env-2023-12-31", runner.commands[2])
}
