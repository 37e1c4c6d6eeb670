// Package seed registers services listed in a YAML file at startup.
//
//	groups:
//	  "-1001234":
//	    - name: site
//	      url: https://example.com
//	    - name: db
//	      url: db.internal
//	      port: 5432
//	      kind: socket
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/monitor"
)

type Entry struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Port *int   `yaml:"port"`
	Kind string `yaml:"kind"`
}

type File struct {
	Groups map[string][]Entry `yaml:"groups"`
}

// Load reads and parses a seed file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse seed yaml: %w", err)
	}
	return f, nil
}

// Apply registers every entry through reg. Names already present in a group
// are skipped, so applying the same file on every start is safe. Invalid
// entries do not stop the others; their errors are returned combined.
func Apply(ctx context.Context, reg *monitor.Registry, f File, log *zap.Logger) (added int, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	groups := make([]string, 0, len(f.Groups))
	for g := range f.Groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, g := range groups {
		for _, e := range f.Groups[g] {
			kind, kerr := domain.ParseTransportKind(e.Kind)
			if kerr != nil {
				err = multierr.Append(err, fmt.Errorf("seed %s/%s: %w", g, e.Name, kerr))
				continue
			}
			_, aerr := reg.Add(ctx, g, monitor.AddRequest{Name: e.Name, Target: e.URL, Port: e.Port, Kind: kind})
			switch {
			case aerr == nil:
				added++
			case errors.Is(aerr, domain.ErrDuplicateName):
				log.Debug("seed_skipped", zap.String("group", g), zap.String("service", e.Name))
			default:
				err = multierr.Append(err, fmt.Errorf("seed %s/%s: %w", g, e.Name, aerr))
			}
		}
	}
	log.Info("seed_applied", zap.Int("added", added), zap.Int("groups", len(groups)))
	return added, err
}
