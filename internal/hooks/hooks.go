// Package hooks implements the maintenance hooks that reclaim stale base
// instances and, on uninstall, the application's whole LXD project.
//
// A base instance's full name looks like:
//
//	base-instance-whatevercraft-buildd-base-v7-craft-com.ubuntu.cloud-buildd-daily-core24
//
// The part that matters here is the embedded compatibility tag
// ("whatevercraft-buildd-base-v7"): base instances not stamped with the
// live tag are superseded and get deleted, along with every instance
// derived from them.
package hooks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/canonical/craft-providers-sub001/internal/base"
	"github.com/canonical/craft-providers-sub001/internal/logging"
	"github.com/canonical/craft-providers-sub001/internal/lxd"
)

// ProjectNotFoundError reports that the application's LXD project does not
// exist. The hooks abort rather than create it: a missing project means
// there is nothing to clean.
type ProjectNotFoundError struct {
	Project string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project %q does not exist in LXD", e.Project)
}

// Options configure a hook Helper.
type Options struct {
	// Project is the LXD project to operate on. Required.
	Project string

	// Session overrides the backend session; defaults to a CLI session
	// scoped to Project.
	Session lxd.Session

	// CompatibilityTag is the live tag; base instances not stamped with
	// it are superseded. Defaults to base.DefaultTag.
	CompatibilityTag string

	// Simulate short-circuits every destructive call: intent is logged,
	// nothing is deleted.
	Simulate bool

	Logger *slog.Logger
}

// Helper carries the hook business logic. Callers must serialize hook
// invocations per project; the list-then-delete sequence has no
// transactional guarantee, and safety across retries comes from
// idempotence instead.
type Helper struct {
	session  lxd.Session
	project  string
	tag      string
	simulate bool
	logger   *slog.Logger
}

// NewHelper validates that LXD and the project are reachable and returns a
// Helper. A missing backend or project is fatal; the hooks never proceed
// past a broken session.
func NewHelper(ctx context.Context, opts Options) (*Helper, error) {
	if opts.Project == "" {
		return nil, fmt.Errorf("project name is required")
	}

	logger := logging.Ensure(opts.Logger).With("component", "hooks", "project", opts.Project)

	session := opts.Session
	if session == nil {
		session = lxd.NewCLISession(opts.Project, logger)
	}

	tag := opts.CompatibilityTag
	if tag == "" {
		tag = base.DefaultTag
	}

	projects, err := session.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, project := range projects {
		if project == opts.Project {
			found = true
			break
		}
	}
	if !found {
		return nil, &ProjectNotFoundError{Project: opts.Project}
	}

	return &Helper{
		session:  session,
		project:  opts.Project,
		tag:      tag,
		simulate: opts.Simulate,
		logger:   logger,
	}, nil
}

// ConfigureHook deletes base instances whose compatibility tag is
// superseded, then every instance derived from a deleted base. Re-running
// it after a partial failure only re-deletes instances that still exist;
// with no intervening changes it deletes nothing.
func (h *Helper) ConfigureHook(ctx context.Context) error {
	instances, err := h.session.ListInstances(ctx)
	if err != nil {
		return err
	}

	deletedBases := make(map[string]bool)
	for _, instance := range instances {
		if !instance.IsBaseInstance() {
			h.logger.Debug("not a base instance", "instance", instance.Name)
			continue
		}
		if instance.IsCurrentBaseInstance(h.tag) {
			h.logger.Debug("base instance is current", "instance", instance.Name)
			continue
		}

		// A base instance without the live tag is assumed old, not
		// future.
		h.logger.Debug("base instance uses old compatibility tag, deleting", "instance", instance.Name)
		if err := h.deleteInstance(ctx, instance); err != nil {
			return err
		}
		fullName, err := instance.BaseInstanceName()
		if err != nil {
			return err
		}
		deletedBases[fullName] = true
	}

	if len(deletedBases) == 0 {
		h.logger.Debug("no base instances were deleted, so no derived instances to delete")
		return nil
	}

	// Cascade: re-list and delete everything descended from a deleted
	// base.
	instances, err = h.session.ListInstances(ctx)
	if err != nil {
		return err
	}
	didDelete := false
	for _, instance := range instances {
		fullName, err := instance.BaseInstanceName()
		if err != nil {
			// Not cloned from a base instance; not ours to cascade.
			h.logger.Debug("instance has no base instance record", "instance", instance.Name)
			continue
		}
		if !deletedBases[fullName] {
			continue
		}
		h.logger.Debug("base instance was deleted, deleting derived instance", "instance", instance.Name)
		if err := h.deleteInstance(ctx, instance); err != nil {
			return err
		}
		didDelete = true
	}
	if !didDelete {
		h.logger.Debug("found no instances derived from deleted base instances")
	}
	return nil
}

// RemoveHook tears down the whole project on application uninstall: every
// instance, then every image, then the project itself. Images must go
// before the project; LXD refuses to delete a project that still owns
// objects.
func (h *Helper) RemoveHook(ctx context.Context) error {
	instances, err := h.session.ListInstances(ctx)
	if err != nil {
		return err
	}
	for _, instance := range instances {
		if err := h.deleteInstance(ctx, instance); err != nil {
			return err
		}
	}

	fingerprints, err := h.session.ListImages(ctx)
	if err != nil {
		return err
	}
	for _, fingerprint := range fingerprints {
		h.logger.Info("removing image", "fingerprint", fingerprint)
		if h.simulate {
			continue
		}
		if err := h.session.DeleteImage(ctx, fingerprint); err != nil {
			return err
		}
	}

	h.logger.Info("removing project")
	if h.simulate {
		return nil
	}
	return h.session.DeleteProject(ctx, h.project)
}

// deleteInstance deletes one instance, honoring simulate mode. A failed
// delete is fatal: continuing could leave derived instances referencing a
// half-removed base.
func (h *Helper) deleteInstance(ctx context.Context, instance lxd.Instance) error {
	h.logger.Info("removing instance", "instance", instance.Name)
	if h.simulate {
		return nil
	}
	if err := h.session.DeleteInstance(ctx, instance.Name, true); err != nil {
		return fmt.Errorf("failed to remove LXD instance %q: %w", instance.Name, err)
	}
	return nil
}
