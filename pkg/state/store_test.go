package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/woody-containers/woody/pkg/cgroups"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "woody", "state.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleState(id string) *ContainerState {
	return &ContainerState{
		ID:      id,
		PID:     1234,
		Status:  "running",
		Command: []string{"/bin/sleep", "300"},
		Rootfs:  "/var/lib/woody/rootfs",
		Created: time.Now().UTC().Truncate(time.Millisecond),
		Limits: cgroups.ResourceLimits{
			CpuShares:   512,
			CpuQuota:    -1,
			CpuPeriod:   100000,
			MemoryLimit: 52428800,
			PidsLimit:   10,
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	want := sampleState("abc123")
	if err := store.SaveContainer(ctx, want); err != nil {
		t.Fatalf("SaveContainer: %v", err)
	}

	got, err := store.LoadContainer(ctx, "abc123")
	if err != nil {
		t.Fatalf("LoadContainer: %v", err)
	}
	if got.ID != want.ID || got.PID != want.PID || got.Status != want.Status {
		t.Errorf("loaded record = %+v", got)
	}
	if len(got.Command) != 2 || got.Command[0] != "/bin/sleep" {
		t.Errorf("Command = %v", got.Command)
	}
	if got.Limits != want.Limits {
		t.Errorf("Limits = %+v, want %+v", got.Limits, want.Limits)
	}
	if !got.Created.Equal(want.Created) {
		t.Errorf("Created = %v, want %v", got.Created, want.Created)
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	record := sampleState("abc123")
	if err := store.SaveContainer(ctx, record); err != nil {
		t.Fatalf("SaveContainer: %v", err)
	}

	record.Status = "exited"
	record.PID = 0
	record.ExitCode = 137
	if err := store.SaveContainer(ctx, record); err != nil {
		t.Fatalf("second SaveContainer: %v", err)
	}

	got, err := store.LoadContainer(ctx, "abc123")
	if err != nil {
		t.Fatalf("LoadContainer: %v", err)
	}
	if got.Status != "exited" || got.PID != 0 || got.ExitCode != 137 {
		t.Errorf("record after overwrite = %+v", got)
	}

	all, err := store.ListContainers(ctx)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("ListContainers returned %d records, want 1", len(all))
	}
}

func TestLoadMissing(t *testing.T) {
	store := openStore(t)
	if _, err := store.LoadContainer(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadContainer(missing) = %v, want ErrNotFound", err)
	}
}

func TestListOrdersByCreation(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	older := sampleState("older")
	older.Created = time.Now().Add(-time.Hour).UTC()
	newer := sampleState("newer")

	if err := store.SaveContainer(ctx, newer); err != nil {
		t.Fatalf("SaveContainer: %v", err)
	}
	if err := store.SaveContainer(ctx, older); err != nil {
		t.Fatalf("SaveContainer: %v", err)
	}

	all, err := store.ListContainers(ctx)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	if len(all) != 2 || all[0].ID != "older" || all[1].ID != "newer" {
		ids := make([]string, len(all))
		for i, c := range all {
			ids[i] = c.ID
		}
		t.Errorf("ListContainers order = %v, want [older newer]", ids)
	}
}

func TestDelete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.SaveContainer(ctx, sampleState("abc123")); err != nil {
		t.Fatalf("SaveContainer: %v", err)
	}
	if err := store.DeleteContainer(ctx, "abc123"); err != nil {
		t.Fatalf("DeleteContainer: %v", err)
	}
	if _, err := store.LoadContainer(ctx, "abc123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record survived delete: %v", err)
	}

	// Deleting again is a no-op, not an error.
	if err := store.DeleteContainer(ctx, "abc123"); err != nil {
		t.Errorf("DeleteContainer(missing) = %v", err)
	}
}
