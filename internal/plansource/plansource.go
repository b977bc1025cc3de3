// Package plansource ingests plan files dropped into a watched directory.
// Each file is a YAML document naming the submitting agent and the plan
// body; successfully handed-off files are moved aside so a restart does
// not resubmit them.
package plansource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// planFile is the on-disk shape of a submitted plan.
type planFile struct {
	Source      string `yaml:"source"`
	domain.Plan `yaml:",inline"`
}

// ParsePlanFile reads and validates a single plan file.
func ParsePlanFile(path string) (domain.SubmittedPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.SubmittedPlan{}, fmt.Errorf("reading plan file: %w", err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return domain.SubmittedPlan{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	source := pf.Source
	if source == "" {
		// Fall back to the filename stem, e.g. gpt-5.yaml submitted by gpt-5.
		source = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := pf.Plan.Validate(); err != nil {
		return domain.SubmittedPlan{}, err
	}

	return domain.SubmittedPlan{
		Plan:       pf.Plan,
		Source:     source,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// IsPlanFile reports whether a path looks like a plan submission.
func IsPlanFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ListPlanFiles returns the plan files currently sitting in dir, oldest
// first by modification time.
func ListPlanFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing plans dir: %w", err)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var found []candidate
	for _, entry := range entries {
		if entry.IsDir() || !IsPlanFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{filepath.Join(dir, entry.Name()), info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].mod.Before(found[j].mod) })

	paths := make([]string, len(found))
	for i, c := range found {
		paths[i] = c.path
	}
	return paths, nil
}

// Archive moves a consumed plan file into the processed subdirectory,
// stamping the name to avoid collisions on resubmission.
func Archive(path string) error {
	dir := filepath.Join(filepath.Dir(path), "processed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	base := filepath.Base(path)
	stamped := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), base)
	if err := os.Rename(path, filepath.Join(dir, stamped)); err != nil {
		return fmt.Errorf("archiving plan file: %w", err)
	}
	return nil
}
