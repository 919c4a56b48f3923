package lxd

import (
	"context"
	"log/slog"
)

// Session manages instances, images and the project grouping of one
// application within the backend. All operations are synchronous and
// blocking; callers serialize invocations per project.
type Session interface {
	ListInstances(ctx context.Context) ([]Instance, error)
	DeleteInstance(ctx context.Context, name string, force bool) error

	// ListImages returns the fingerprints of all images in the project.
	ListImages(ctx context.Context) ([]string, error)
	DeleteImage(ctx context.Context, fingerprint string) error

	ListProjects(ctx context.Context) ([]string, error)
	DeleteProject(ctx context.Context, name string) error
}

// CLISession implements Session by shelling out to lxc.
type CLISession struct {
	cli *CLI
}

// NewCLISession returns a Session scoped to the given LXD project.
func NewCLISession(project string, logger *slog.Logger) *CLISession {
	return &CLISession{cli: NewCLI(project, logger)}
}

func (s *CLISession) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	if err := s.cli.runJSON(ctx, true, &instances, "list"); err != nil {
		return nil, err
	}
	return instances, nil
}

func (s *CLISession) DeleteInstance(ctx context.Context, name string, force bool) error {
	args := []string{"delete"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, name)
	_, err := s.cli.run(ctx, runOptions{scoped: true}, args...)
	return err
}

func (s *CLISession) ListImages(ctx context.Context) ([]string, error) {
	var images []struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := s.cli.runJSON(ctx, true, &images, "image", "list"); err != nil {
		return nil, err
	}
	fingerprints := make([]string, 0, len(images))
	for _, image := range images {
		fingerprints = append(fingerprints, image.Fingerprint)
	}
	return fingerprints, nil
}

func (s *CLISession) DeleteImage(ctx context.Context, fingerprint string) error {
	_, err := s.cli.run(ctx, runOptions{scoped: true}, "image", "delete", fingerprint)
	return err
}

func (s *CLISession) ListProjects(ctx context.Context) ([]string, error) {
	var projects []struct {
		Name string `json:"name"`
	}
	if err := s.cli.runJSON(ctx, false, &projects, "project", "list"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(projects))
	for _, project := range projects {
		names = append(names, project.Name)
	}
	return names, nil
}

func (s *CLISession) DeleteProject(ctx context.Context, name string) error {
	_, err := s.cli.run(ctx, runOptions{}, "project", "delete", name)
	return err
}
