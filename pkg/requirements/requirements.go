// Package requirements prepares the Python package lists that end up in the
// generated requirements artifact. Plain entries pass through; git+https
// entries are cloned so their own requirements files can be collated into
// the base image, the way the modeling packages declare their third-party
// dependencies.
package requirements

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/rs/zerolog/log"
)

// requirements files read from each cloned package repo
var requirementsFiles = []string{
	"requirements.txt",
	filepath.Join("tests", "requirements.txt"),
	filepath.Join("docs", "requirements.txt"),
	"requirements.optional.txt",
}

const gitPrefix = "git+"

// Parse splits a multi-line requirements block into ordered entries,
// trimming whitespace and dropping blank and comment lines.
func Parse(block string) []string {
	var entries []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries
}

// EggName extracts the package name from a git+https requirement like
// git+https://host/org/pkg.git#egg=pkg-0.0.1. Empty when the entry is not
// a VCS requirement.
func EggName(entry string) string {
	if !strings.HasPrefix(entry, gitPrefix) {
		return ""
	}
	_, egg, found := strings.Cut(entry, "#egg=")
	if !found {
		return ""
	}
	name, _, _ := strings.Cut(egg, "-")
	return name
}

// CloneURL strips the VCS prefix and the egg fragment from a requirement.
func CloneURL(entry string) string {
	url := strings.TrimPrefix(entry, gitPrefix)
	url, _, _ = strings.Cut(url, "#")
	return url
}

// Collate resolves the transitive third-party requirements of the given
// entries. Each git+https entry is cloned and its requirements files are
// read; entries referring back to the collated modeling packages themselves
// are dropped. The result is deduplicated and sorted.
func Collate(ctx context.Context, entries []string) ([]string, error) {
	tempDir, err := os.MkdirTemp("", "wc-env-reqs-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	// names of the modeling packages being collated, so their own entries
	// in each other's requirements don't leak into the artifact
	ownPackages := map[string]bool{}
	for _, entry := range entries {
		if name := EggName(entry); name != "" {
			ownPackages[name] = true
		}
	}

	collated := map[string]bool{}
	for _, entry := range entries {
		name := EggName(entry)
		if name == "" {
			collated[entry] = true
			continue
		}

		cloneDir := filepath.Join(tempDir, name)
		log.Debug().Str("package", name).Str("url", CloneURL(entry)).Msg("Cloning")
		if _, err := git.PlainCloneContext(ctx, cloneDir, false, &git.CloneOptions{
			URL: CloneURL(entry),
		}); err != nil {
			return nil, err
		}

		for _, file := range requirementsFiles {
			for _, req := range readRequirements(filepath.Join(cloneDir, file)) {
				if ownPackages[EggName(req)] {
					continue
				}
				collated[req] = true
			}
		}
	}

	result := make([]string, 0, len(collated))
	for req := range collated {
		result = append(result, req)
	}
	sort.Strings(result)
	return result, nil
}

// readRequirements reads a pip requirements file, skipping blank lines,
// comments and section headers. A missing file is not an error.
func readRequirements(filename string) []string {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil
	}

	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' || line[0] == '[' {
			continue
		}
		// strip trailing comments, but not the #egg= fragment
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		entries = append(entries, line)
	}
	return entries
}
