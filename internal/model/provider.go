package model

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// errFound stops the directory walk early.
var errFound = errors.New("found")

// Provider loads the regressor: first from a file named FileName anywhere
// under SearchRoot, otherwise from the registry's best version.
type Provider struct {
	FileName    string
	SearchRoot  string
	ModelName   string
	Metric      string
	SortOrder   SortOrder
	DownloadDir string

	// Features, when set, must equal the model's declared features.
	Features []string

	Registry Registry
}

// Load returns the validated model.
func (p *Provider) Load(ctx context.Context) (*Booster, error) {
	path, err := p.findLocal()
	if err != nil {
		return nil, err
	}

	if path == "" {
		if p.Registry == nil {
			return nil, fmt.Errorf("%w: %s not found locally and no registry configured", ErrModelNotFound, p.FileName)
		}
		v, err := p.Registry.BestModel(ctx, p.ModelName, p.Metric, p.SortOrder)
		if err != nil {
			return nil, err
		}
		log.Printf("INFO: best %s is version %d (%s=%v)", v.Name, v.Version, p.Metric, v.Metrics[p.Metric])

		dir, err := p.Registry.Download(ctx, v, p.FileName, p.downloadDir())
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, p.FileName)
	} else {
		log.Printf("INFO: loading local model %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	b, err := LoadBooster(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := b.Validate(p.Features); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *Provider) downloadDir() string {
	if p.DownloadDir != "" {
		return p.DownloadDir
	}
	return filepath.Join(os.TempDir(), "citibike-models")
}

// findLocal walks SearchRoot for FileName, skipping hidden directories.
func (p *Provider) findLocal() (string, error) {
	root := p.SearchRoot
	if root == "" {
		root = "."
	}
	if p.FileName == "" {
		return "", fmt.Errorf("model file name is not configured")
	}

	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable directories are skipped.
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == p.FileName {
			found = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", err
	}
	return found, nil
}
