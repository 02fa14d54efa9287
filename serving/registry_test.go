package serving

import (
	"strings"
	"testing"
	"time"
)

func TestRegistry_CreateAndDefault(t *testing.T) {
	registry := NewRegistry("suntimes")

	mv, err := registry.Create("v1", "abc")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !mv.IsDefault {
		t.Error("First created version should be the default")
	}

	mv2, err := registry.Create("v2", "def")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if mv2.IsDefault {
		t.Error("Second version should not become the default")
	}

	if def := registry.Default(); def == nil || def.Version != "v1" {
		t.Errorf("Expected default v1, got %+v", def)
	}
}

func TestRegistry_CreateDuplicate(t *testing.T) {
	registry := NewRegistry("suntimes")

	if _, err := registry.Create("v1", "abc"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	_, err := registry.Create("v1", "abc")
	if err == nil {
		t.Fatal("Expected error for duplicate version, got nil")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected already-exists error, got %v", err)
	}
}

func TestRegistry_CreateEmptyVersion(t *testing.T) {
	registry := NewRegistry("suntimes")
	if _, err := registry.Create("", "abc"); err == nil {
		t.Error("Expected error for empty version, got nil")
	}
}

func TestRegistry_EnsureVersion(t *testing.T) {
	registry := NewRegistry("suntimes")

	_, created, err := registry.EnsureVersion("v1", "abc")
	if err != nil {
		t.Fatalf("EnsureVersion returned error: %v", err)
	}
	if !created {
		t.Error("Expected first EnsureVersion to create")
	}

	mv, created, err := registry.EnsureVersion("v1", "other-checksum")
	if err != nil {
		t.Fatalf("EnsureVersion returned error: %v", err)
	}
	if created {
		t.Error("Expected second EnsureVersion not to create")
	}
	if mv.Checksum != "abc" {
		t.Errorf("EnsureVersion must not overwrite existing checksum, got %q", mv.Checksum)
	}
}

func TestRegistry_SetDefault(t *testing.T) {
	registry := NewRegistry("suntimes")
	registry.Create("v1", "abc") //nolint:errcheck
	registry.Create("v2", "def") //nolint:errcheck

	if err := registry.SetDefault("v2"); err != nil {
		t.Fatalf("SetDefault returned error: %v", err)
	}

	if def := registry.Default(); def == nil || def.Version != "v2" {
		t.Errorf("Expected default v2, got %+v", def)
	}
	if registry.Get("v1").IsDefault {
		t.Error("Old default should have been cleared")
	}

	if err := registry.SetDefault("missing"); err == nil {
		t.Error("Expected error for unknown version, got nil")
	}
}

func TestRegistry_Delete(t *testing.T) {
	registry := NewRegistry("suntimes")
	registry.Create("v1", "abc") //nolint:errcheck
	registry.Create("v2", "def") //nolint:errcheck

	// Default cannot be deleted
	if err := registry.Delete("v1"); err == nil {
		t.Error("Expected error deleting the default version, got nil")
	}

	if err := registry.Delete("v2"); err != nil {
		t.Errorf("Delete returned error: %v", err)
	}
	if registry.Get("v2") != nil {
		t.Error("Deleted version still present")
	}

	if err := registry.Delete("missing"); err == nil {
		t.Error("Expected error deleting unknown version, got nil")
	}
}

func TestRegistry_ListOrder(t *testing.T) {
	registry := NewRegistry("suntimes")

	registry.restore(ModelVersion{Model: "suntimes", Version: "v2", CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)})
	registry.restore(ModelVersion{Model: "suntimes", Version: "v1", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	registry.restore(ModelVersion{Model: "suntimes", Version: "v3", CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), IsDefault: true})

	list := registry.List()
	if len(list) != 3 {
		t.Fatalf("Expected 3 versions, got %d", len(list))
	}

	expected := []string{"v1", "v2", "v3"}
	for i, version := range expected {
		if list[i].Version != version {
			t.Errorf("Position %d: expected %s, got %s", i, version, list[i].Version)
		}
	}

	if def := registry.Default(); def == nil || def.Version != "v3" {
		t.Errorf("Expected restored default v3, got %+v", def)
	}
}
