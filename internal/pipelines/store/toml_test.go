package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/pipelines"
)

// setupTestStore creates a store backed by a temp file.
func setupTestStore(t *testing.T) (*tomlStore, string) {
	t.Helper()

	testFile := filepath.Join(t.TempDir(), "test_pipelines.toml")
	return NewTOML(testFile).(*tomlStore), testFile
}

func testSpec(id string) pipelines.PipelineSpec {
	return pipelines.PipelineSpec{
		ID:     id,
		Name:   "Test " + id,
		Device: "sim-back-0",
		Outputs: []pipelines.OutputSpec{
			{Kind: "preview", Surface: "preview-surface"},
			{Kind: "photo", Surface: "/tmp/{id}.jpg", Format: "jpeg", Resolution: "1920x1080"},
		},
	}
}

func TestNewTOML(t *testing.T) {
	s := NewTOML("").(*tomlStore)
	if s.configPath != "pipelines.toml" {
		t.Errorf("expected default path 'pipelines.toml', got %s", s.configPath)
	}

	s = NewTOML("/custom/path.toml").(*tomlStore)
	if s.configPath != "/custom/path.toml" {
		t.Errorf("expected custom path '/custom/path.toml', got %s", s.configPath)
	}
	if s.config.Version != 1 {
		t.Errorf("expected version 1, got %d", s.config.Version)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	s, _ := setupTestStore(t)

	if err := s.Load(); err != nil {
		t.Errorf("Load should not error on non-existent file, got: %v", err)
	}
	if len(s.GetAllPipelines()) != 0 {
		t.Errorf("expected empty store, got %d pipelines", len(s.GetAllPipelines()))
	}
}

func TestAddAndLoad(t *testing.T) {
	s, testFile := setupTestStore(t)

	spec := testSpec("front-door")
	spec.Controls = &camera.Controls{
		FlashMode:    camera.FlashAuto,
		FocusMode:    camera.FocusContinuousAuto,
		ZoomRatio:    2,
		MinFrameRate: 15,
		MaxFrameRate: 30,
	}
	if err := s.AddPipeline(spec); err != nil {
		t.Fatalf("AddPipeline failed: %v", err)
	}

	if _, err := os.Stat(testFile); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}

	s2 := NewTOML(testFile)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	loaded, ok := s2.GetPipeline("front-door")
	if !ok {
		t.Fatal("front-door not found after load")
	}
	if loaded.Device != spec.Device {
		t.Errorf("expected device %s, got %s", spec.Device, loaded.Device)
	}
	if len(loaded.Outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(loaded.Outputs))
	}
	if loaded.Outputs[1].Resolution != "1920x1080" {
		t.Errorf("expected resolution 1920x1080, got %s", loaded.Outputs[1].Resolution)
	}
	if loaded.Controls == nil {
		t.Fatal("controls were not persisted")
	}
	if loaded.Controls.FlashMode != camera.FlashAuto {
		t.Errorf("expected flash mode auto, got %s", loaded.Controls.FlashMode)
	}
	if loaded.Controls.ZoomRatio != 2 {
		t.Errorf("expected zoom 2, got %v", loaded.Controls.ZoomRatio)
	}
}

func TestUpdatePipeline(t *testing.T) {
	s, testFile := setupTestStore(t)

	if err := s.AddPipeline(testSpec("p1")); err != nil {
		t.Fatalf("AddPipeline failed: %v", err)
	}

	updated := testSpec("p1")
	updated.Name = "Renamed"
	if err := s.UpdatePipeline("p1", updated); err != nil {
		t.Fatalf("UpdatePipeline failed: %v", err)
	}

	s2 := NewTOML(testFile)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	loaded, _ := s2.GetPipeline("p1")
	if loaded.Name != "Renamed" {
		t.Errorf("update was not persisted, got name %s", loaded.Name)
	}

	if err := s.UpdatePipeline("missing", updated); err == nil {
		t.Error("expected error updating a missing pipeline")
	}
}

func TestRemovePipeline(t *testing.T) {
	s, testFile := setupTestStore(t)

	if err := s.AddPipeline(testSpec("p1")); err != nil {
		t.Fatalf("AddPipeline failed: %v", err)
	}
	if err := s.RemovePipeline("p1"); err != nil {
		t.Fatalf("RemovePipeline failed: %v", err)
	}

	s2 := NewTOML(testFile)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := s2.GetPipeline("p1"); ok {
		t.Error("removed pipeline still present after reload")
	}
}

func TestGetAllPipelinesReturnsCopy(t *testing.T) {
	s, _ := setupTestStore(t)
	if err := s.AddPipeline(testSpec("p1")); err != nil {
		t.Fatalf("AddPipeline failed: %v", err)
	}

	all := s.GetAllPipelines()
	delete(all, "p1")

	if _, ok := s.GetPipeline("p1"); !ok {
		t.Error("mutating the returned map changed the store")
	}
}

func TestLoadInvalidFile(t *testing.T) {
	s, testFile := setupTestStore(t)
	if err := os.WriteFile(testFile, []byte("this is [not toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadUsesMapKeyAsID(t *testing.T) {
	s, testFile := setupTestStore(t)
	content := `version = 1

[pipelines.garage]
device = "sim-back-0"

[[pipelines.garage.outputs]]
kind = "preview"
`
	if err := os.WriteFile(testFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	spec, ok := s.GetPipeline("garage")
	if !ok {
		t.Fatal("garage not loaded")
	}
	if spec.ID != "garage" {
		t.Errorf("expected id garage, got %q", spec.ID)
	}
	if len(spec.Outputs) != 1 || spec.Outputs[0].Kind != "preview" {
		t.Errorf("unexpected outputs %+v", spec.Outputs)
	}
}
