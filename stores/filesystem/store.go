package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"designdeck/core"
)

type fsStore struct {
	basePath string
}

// NewStore creates a filesystem-backed design store. Each design is one JSON
// file named <id>.json under basePath.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) designPath(id string) (string, error) {
	// A design id must be a simple name, never a path.
	if id == "" || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid design id %q", id)
	}
	return filepath.Join(s.basePath, id+".json"), nil
}

func (s *fsStore) List(ctx context.Context) ([]*core.Design, error) {
	files, err := os.ReadDir(s.basePath)
	if err != nil {
		logrus.WithError(err).Error("Failed to read design directory")
		return nil, err
	}

	designs := make([]*core.Design, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.basePath, file.Name()))
		if err != nil {
			logrus.WithError(err).Warnf("Failed to read %s, skipping", file.Name())
			continue
		}
		var d core.Design
		if err := json.Unmarshal(data, &d); err != nil {
			logrus.WithError(err).Warnf("Failed to decode %s, skipping", file.Name())
			continue
		}
		designs = append(designs, d.Meta())
	}
	return designs, nil
}

func (s *fsStore) Get(ctx context.Context, id string) (*core.Design, error) {
	path, err := s.designPath(id)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"design_id": id, "file_path": path})

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Design with specified ID not found")
			return nil, core.ErrDesignNotFound
		}
		log.WithError(err).Error("Failed to retrieve design")
		return nil, err
	}

	var d core.Design
	if err := json.Unmarshal(data, &d); err != nil {
		log.WithError(err).Error("Failed to decode design")
		return nil, err
	}
	log.Debug("Design retrieved successfully")
	return &d, nil
}

func (s *fsStore) Save(ctx context.Context, design *core.Design) error {
	path, err := s.designPath(design.ID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"design_id": design.ID, "file_path": path})

	stored := design.Clone()
	now := time.Now()
	if existing, err := s.Get(ctx, design.ID); err == nil {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	// Write-then-rename so a crash mid-write never leaves a torn file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write design")
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		log.WithError(err).Error("Failed to move design into place")
		return err
	}
	log.Info("Design saved successfully")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, id string) error {
	path, err := s.designPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return core.ErrDesignNotFound
		}
		return err
	}
	logrus.WithField("design_id", id).Info("Design deleted successfully")
	return nil
}
