package imagestore

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
)

// Orphan is a stored file that no plant refers to.
type Orphan struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// SweepResult reports one orphan sweep.
type SweepResult struct {
	CandidateCount int      `json:"candidate_count"`
	DeletedCount   int      `json:"deleted_count"`
	FailedCount    int      `json:"failed_count"`
	ReclaimedBytes int64    `json:"reclaimed_bytes"`
	DryRun         bool     `json:"dry_run"`
	Orphans        []Orphan `json:"orphans"`
	Missing        []string `json:"missing"`
}

// Orphans lists regular files in the storage directory that are neither the
// default image nor referenced by any of the given image paths. Leftover
// temporary upload files are included.
func (m *Manager) Orphans(referenced []string) ([]Orphan, error) {
	keep := m.referencedNames(referenced)
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Orphan{}, nil
		}
		return nil, err
	}

	out := []Orphan{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if name == m.defaultName {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, Orphan{Name: name, Path: filepath.Join(m.root, name), SizeBytes: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Missing returns referenced non-default image paths whose files do not
// exist, or that do not name a file in the storage directory at all.
func (m *Manager) Missing(referenced []string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, imagePath := range referenced {
		if m.IsDefault(imagePath) {
			continue
		}
		if _, ok := seen[imagePath]; ok {
			continue
		}
		seen[imagePath] = struct{}{}
		file, err := m.FilePath(imagePath)
		if err != nil {
			out = append(out, imagePath)
			continue
		}
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			out = append(out, imagePath)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep finds orphans and missing files and, when apply is set, deletes the
// orphans.
func (m *Manager) Sweep(referenced []string, apply bool) (SweepResult, error) {
	orphans, err := m.Orphans(referenced)
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{
		CandidateCount: len(orphans),
		DryRun:         !apply,
		Orphans:        orphans,
		Missing:        m.Missing(referenced),
	}
	if !apply {
		return result, nil
	}
	for _, orphan := range orphans {
		if err := os.Remove(orphan.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			result.FailedCount++
			continue
		}
		result.DeletedCount++
		result.ReclaimedBytes += orphan.SizeBytes
	}
	return result, nil
}

func (m *Manager) referencedNames(referenced []string) map[string]struct{} {
	out := make(map[string]struct{}, len(referenced))
	for _, imagePath := range referenced {
		name, err := m.fileName(imagePath)
		if err != nil {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}
