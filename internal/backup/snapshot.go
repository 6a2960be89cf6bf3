package backup

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/KilimcininKorOglu/obaidx/internal/backend"
)

// Snapshot errors.
var (
	ErrTargetNotEmpty = errors.New("backup: target directory is not empty")
	ErrNoManifest     = errors.New("backup: directory holds no snapshot manifest")
)

const (
	manifestFile = "manifest.yaml"
	dataSubdir   = "data"
)

// Manifest describes a snapshot.
type Manifest struct {
	Created time.Time `yaml:"created"`
	BaseDN  string    `yaml:"baseDN"`
	Entries int       `yaml:"entries"`
	// Indexes lists the attributes indexed when the snapshot was taken,
	// with their trust state.
	Indexes []ManifestIndex `yaml:"indexes"`
}

// ManifestIndex is the state of one attribute index in a snapshot.
type ManifestIndex struct {
	Attribute string   `yaml:"attribute"`
	Types     []string `yaml:"types"`
	Trusted   bool     `yaml:"trusted"`
}

// Snapshot writes a checkpoint of the store behind ec to dir/data and a
// manifest to dir/manifest.yaml. dir must be absent or empty.
func Snapshot(ec *backend.EntryContainer, dir string) (*Manifest, error) {
	if err := ensureEmpty(dir); err != nil {
		return nil, err
	}
	n, err := ec.EntryCount()
	if err != nil {
		return nil, err
	}
	stats, err := ec.IndexStats()
	if err != nil {
		return nil, err
	}
	m := &Manifest{Created: time.Now().UTC(), BaseDN: ec.BaseDN(), Entries: n}
	for _, s := range stats {
		m.Indexes = append(m.Indexes, ManifestIndex{Attribute: s.Attribute, Types: s.Types, Trusted: s.Trusted})
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := ec.Store().Checkpoint(filepath.Join(dir, dataSubdir)); err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "backup: encode manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return nil, errors.Wrap(err, "backup: write manifest")
	}
	return m, nil
}

// ReadManifest reads the manifest of the snapshot in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNoManifest, dir)
	}
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "backup: decode manifest")
	}
	return m, nil
}

// Restore copies the snapshot in src into dataDir, which must be absent or
// empty. The store must not be open.
func Restore(src, dataDir string) (*Manifest, error) {
	m, err := ReadManifest(src)
	if err != nil {
		return nil, err
	}
	if err := ensureEmpty(dataDir); err != nil {
		return nil, err
	}
	if err := copyDir(filepath.Join(src, dataSubdir), dataDir); err != nil {
		return nil, errors.Wrap(err, "backup: restore")
	}
	return m, nil
}

func ensureEmpty(dir string) error {
	names, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return errors.Wrap(ErrTargetNotEmpty, dir)
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
