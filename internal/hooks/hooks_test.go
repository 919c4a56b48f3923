package hooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/canonical/craft-providers-sub001/internal/lxd"
)

// fakeSession keeps backend state in memory and records every destructive
// call in order.
type fakeSession struct {
	instances []lxd.Instance
	images    []string
	projects  []string

	ops []string

	failDelete string // instance name whose deletion fails
}

func (f *fakeSession) ListInstances(context.Context) ([]lxd.Instance, error) {
	return append([]lxd.Instance(nil), f.instances...), nil
}

func (f *fakeSession) DeleteInstance(_ context.Context, name string, force bool) error {
	if name == f.failDelete {
		return fmt.Errorf("instance %q is busy", name)
	}
	f.ops = append(f.ops, "delete-instance "+name)
	if !force {
		return fmt.Errorf("refusing to delete %q without force", name)
	}
	kept := f.instances[:0]
	for _, instance := range f.instances {
		if instance.Name != name {
			kept = append(kept, instance)
		}
	}
	f.instances = kept
	return nil
}

func (f *fakeSession) ListImages(context.Context) ([]string, error) {
	return append([]string(nil), f.images...), nil
}

func (f *fakeSession) DeleteImage(_ context.Context, fingerprint string) error {
	f.ops = append(f.ops, "delete-image "+fingerprint)
	return nil
}

func (f *fakeSession) ListProjects(context.Context) ([]string, error) {
	return append([]string(nil), f.projects...), nil
}

func (f *fakeSession) DeleteProject(_ context.Context, name string) error {
	f.ops = append(f.ops, "delete-project "+name)
	return nil
}

func baseInstance(name string) lxd.Instance {
	return lxd.Instance{
		Name:           name,
		Status:         "Stopped",
		ExpandedConfig: map[string]string{"image.description": name},
	}
}

func derivedInstance(name, baseName string) lxd.Instance {
	return lxd.Instance{
		Name:           name,
		Status:         "Running",
		ExpandedConfig: map[string]string{"image.description": baseName},
	}
}

const (
	liveTag       = "snapcraft-buildd-base-v7"
	currentBase   = "base-instance-snapcraft-buildd-base-v7-craft-jammy"
	supersededOne = "base-instance-snapcraft-buildd-base-v5-craft-jammy"
	supersededTwo = "base-instance-snapcraft-buildd-base-v6-craft-noble"
)

func populatedSession() *fakeSession {
	return &fakeSession{
		instances: []lxd.Instance{
			baseInstance(currentBase),
			baseInstance(supersededOne),
			baseInstance(supersededTwo),
			derivedInstance("snapcraft-old-build", supersededOne),
			derivedInstance("snapcraft-live-build", currentBase),
		},
		images:   []string{"abc123", "def456"},
		projects: []string{"default", "snapcraft"},
	}
}

func newTestHelper(t *testing.T, session *fakeSession, simulate bool) *Helper {
	t.Helper()
	helper, err := NewHelper(context.Background(), Options{
		Project:          "snapcraft",
		Session:          session,
		CompatibilityTag: liveTag,
		Simulate:         simulate,
	})
	if err != nil {
		t.Fatalf("NewHelper() error = %v", err)
	}
	return helper
}

func remaining(session *fakeSession) map[string]bool {
	names := make(map[string]bool, len(session.instances))
	for _, instance := range session.instances {
		names[instance.Name] = true
	}
	return names
}

func TestConfigureHookCascade(t *testing.T) {
	t.Parallel()

	session := populatedSession()
	helper := newTestHelper(t, session, false)

	if err := helper.ConfigureHook(context.Background()); err != nil {
		t.Fatalf("ConfigureHook() error = %v", err)
	}

	left := remaining(session)
	for _, name := range []string{currentBase, "snapcraft-live-build"} {
		if !left[name] {
			t.Fatalf("instance %q was deleted, want kept", name)
		}
	}
	for _, name := range []string{supersededOne, supersededTwo, "snapcraft-old-build"} {
		if left[name] {
			t.Fatalf("instance %q was kept, want deleted", name)
		}
	}
}

func TestConfigureHookIsIdempotent(t *testing.T) {
	t.Parallel()

	session := populatedSession()
	helper := newTestHelper(t, session, false)

	if err := helper.ConfigureHook(context.Background()); err != nil {
		t.Fatalf("first ConfigureHook() error = %v", err)
	}
	opsAfterFirst := len(session.ops)

	if err := helper.ConfigureHook(context.Background()); err != nil {
		t.Fatalf("second ConfigureHook() error = %v", err)
	}
	if len(session.ops) != opsAfterFirst {
		t.Fatalf("second run deleted %d more objects, want 0: %v",
			len(session.ops)-opsAfterFirst, session.ops[opsAfterFirst:])
	}
}

func TestConfigureHookSkipsForeignInstances(t *testing.T) {
	t.Parallel()

	session := populatedSession()
	// An instance created outside the launcher has no base record; the
	// cascade must leave it alone.
	session.instances = append(session.instances, lxd.Instance{Name: "pet-container", Status: "Running"})
	helper := newTestHelper(t, session, false)

	if err := helper.ConfigureHook(context.Background()); err != nil {
		t.Fatalf("ConfigureHook() error = %v", err)
	}
	if !remaining(session)["pet-container"] {
		t.Fatal("instance without a base record was deleted, want kept")
	}
}

func TestConfigureHookSimulate(t *testing.T) {
	t.Parallel()

	session := populatedSession()
	helper := newTestHelper(t, session, true)

	if err := helper.ConfigureHook(context.Background()); err != nil {
		t.Fatalf("ConfigureHook() error = %v", err)
	}
	if len(session.ops) != 0 {
		t.Fatalf("simulate mode deleted: %v", session.ops)
	}
	if len(session.instances) != 5 {
		t.Fatalf("simulate mode left %d instances, want 5", len(session.instances))
	}
}

func TestConfigureHookDeleteFailureIsFatal(t *testing.T) {
	t.Parallel()

	session := populatedSession()
	session.failDelete = supersededOne
	helper := newTestHelper(t, session, false)

	err := helper.ConfigureHook(context.Background())
	if err == nil {
		t.Fatal("ConfigureHook() error = nil, want failed delete propagated")
	}
	if !strings.Contains(err.Error(), supersededOne) {
		t.Fatalf("error = %v, want mention of failed instance", err)
	}
}

func TestRemoveHookOrdering(t *testing.T) {
	t.Parallel()

	session := populatedSession()
	helper := newTestHelper(t, session, false)

	if err := helper.RemoveHook(context.Background()); err != nil {
		t.Fatalf("RemoveHook() error = %v", err)
	}

	// Instances first, then images, then the project: LXD refuses to
	// drop a project that still owns objects.
	phase := 0
	for _, op := range session.ops {
		var opPhase int
		switch {
		case strings.HasPrefix(op, "delete-instance "):
			opPhase = 0
		case strings.HasPrefix(op, "delete-image "):
			opPhase = 1
		case strings.HasPrefix(op, "delete-project "):
			opPhase = 2
		default:
			t.Fatalf("unexpected op %q", op)
		}
		if opPhase < phase {
			t.Fatalf("op %q out of order in %v", op, session.ops)
		}
		phase = opPhase
	}

	if got := session.ops[len(session.ops)-1]; got != "delete-project snapcraft" {
		t.Fatalf("last op = %q, want project deletion", got)
	}
	deletions := 0
	for _, op := range session.ops {
		if strings.HasPrefix(op, "delete-instance ") {
			deletions++
		}
	}
	if deletions != 5 {
		t.Fatalf("RemoveHook() deleted %d instances, want all 5", deletions)
	}
}

func TestRemoveHookSimulate(t *testing.T) {
	t.Parallel()

	session := populatedSession()
	helper := newTestHelper(t, session, true)

	if err := helper.RemoveHook(context.Background()); err != nil {
		t.Fatalf("RemoveHook() error = %v", err)
	}
	if len(session.ops) != 0 {
		t.Fatalf("simulate mode deleted: %v", session.ops)
	}
}

func TestNewHelperMissingProject(t *testing.T) {
	t.Parallel()

	session := &fakeSession{projects: []string{"default"}}
	_, err := NewHelper(context.Background(), Options{
		Project: "snapcraft",
		Session: session,
	})

	var notFound *ProjectNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("NewHelper() error = %v, want ProjectNotFoundError", err)
	}
	if notFound.Project != "snapcraft" {
		t.Fatalf("Project = %q, want snapcraft", notFound.Project)
	}
}

func TestNewHelperRequiresProjectName(t *testing.T) {
	t.Parallel()

	if _, err := NewHelper(context.Background(), Options{}); err == nil {
		t.Fatal("NewHelper() without project error = nil, want non-nil")
	}
}
