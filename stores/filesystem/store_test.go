package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"designdeck/core"
)

func sampleDesign(id string) *core.Design {
	return &core.Design{
		ID:     id,
		Name:   "landing page",
		Width:  1920,
		Height: 1080,
		Elements: map[string]core.Element{
			"a": {
				ID:       "a",
				Type:     core.ElementText,
				Geometry: core.Geometry{X: 10, Y: 20, Width: 200, Height: 40},
				Opacity:  1,
				Text:     &core.TextProps{Content: "hello", FontSize: 16},
			},
		},
		Order: []string{"a"},
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	if err := s.Save(ctx, sampleDesign("d1")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := s.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != "landing page" || got.Width != 1920 {
		t.Errorf("got design %q width %v", got.Name, got.Width)
	}
	el, ok := got.Elements["a"]
	if !ok || el.Text == nil || el.Text.Content != "hello" {
		t.Errorf("element payload did not survive the round trip: %+v", el)
	}
}

func TestGetUnknownDesign(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, core.ErrDesignNotFound) {
		t.Errorf("Get(unknown) = %v, want ErrDesignNotFound", err)
	}
}

func TestPathLikeIDsRejected(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", "./x"} {
		if _, err := s.Get(ctx, id); err == nil || errors.Is(err, core.ErrDesignNotFound) {
			t.Errorf("Get(%q) = %v, want an invalid-id error", id, err)
		}
		d := sampleDesign("d1")
		d.ID = id
		if err := s.Save(ctx, d); err == nil {
			t.Errorf("Save() accepted path-like id %q", id)
		}
	}
}

func TestSavePreservesCreatedAt(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	if err := s.Save(ctx, sampleDesign("d1")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	first, _ := s.Get(ctx, "d1")
	if first.CreatedAt.IsZero() {
		t.Fatal("CreatedAt was not stamped on first save")
	}

	updated := sampleDesign("d1")
	updated.Name = "landing page v2"
	if err := s.Save(ctx, updated); err != nil {
		t.Fatalf("Save() update failed: %v", err)
	}

	second, _ := s.Get(ctx, "d1")
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Name != "landing page v2" {
		t.Errorf("name = %q, want updated name", second.Name)
	}
}

func TestListSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	ctx := context.Background()

	if err := s.Save(ctx, sampleDesign("d1")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write garbage file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	designs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(designs) != 1 || designs[0].ID != "d1" {
		t.Errorf("listed %v, want just d1", designs)
	}
}

func TestDelete(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	if err := s.Save(ctx, sampleDesign("d1")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := s.Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Get(ctx, "d1"); !errors.Is(err, core.ErrDesignNotFound) {
		t.Errorf("Get() after delete = %v, want ErrDesignNotFound", err)
	}
	if err := s.Delete(ctx, "d1"); !errors.Is(err, core.ErrDesignNotFound) {
		t.Errorf("Delete(unknown) = %v, want ErrDesignNotFound", err)
	}
}
