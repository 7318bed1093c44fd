package manager

import (
	"context"
	"fmt"

	"github.com/KarrLab/wc-env/pkg/cmd"
)

// Login authenticates against the registry with the configured credentials.
func (m *Manager) Login(ctx context.Context) error {
	registry := m.settings.Registry
	if registry.Username == "" || registry.Password == "" {
		return &AuthenticationError{Msg: "both username and password are required"}
	}

	login := cmd.New("docker").Arg("login").
		Arg("-u", registry.Username).
		Arg("-p").SecretArg(registry.Password).
		PreInfo("Logging in as " + registry.Username)
	if _, err := m.runner.Run(ctx, login); err != nil {
		return &AuthenticationError{Msg: "login failed for " + registry.Username}
	}
	return nil
}

// Push pushes every tag of the named image. With credentials configured a
// login runs first; without them the engine's cached credentials are used.
// Failed pushes are not retried.
func (m *Manager) Push(ctx context.Context, repo string) error {
	tags, err := m.imageTags(repo)
	if err != nil {
		return err
	}

	if m.settings.Registry.Configured() {
		if err := m.Login(ctx); err != nil {
			return err
		}
	}

	for _, tag := range tags {
		ref := repo + ":" + tag
		pusher := cmd.New("docker").Arg("push").
			Arg(ref).
			PreInfo("Pushing " + ref).
			SetVerbose(m.verbose())
		if result, err := m.runner.Run(ctx, pusher); err != nil {
			return &PushError{Ref: ref, Output: result.Output(), Err: err}
		}
	}
	return nil
}

// Pull pulls every tag of the named image.
func (m *Manager) Pull(ctx context.Context, repo string) error {
	tags, err := m.imageTags(repo)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		ref := repo + ":" + tag
		puller := cmd.New("docker").Arg("pull").
			Arg(ref).
			PreInfo("Pulling " + ref).
			SetVerbose(m.verbose())
		if _, err := m.runner.Run(ctx, puller); err != nil {
			return fmt.Errorf("pulling %s: %w", ref, err)
		}
	}
	return nil
}
