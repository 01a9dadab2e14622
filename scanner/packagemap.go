package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BaSui01/bundlekit/types"
)

// MapFileName is the namespace map written by the package manager into the
// vendor directory.
const MapFileName = "autoload_namespaces.json"

// PackageMap maps a namespace prefix to the directories it is loaded from.
type PackageMap map[string][]string

// Namespaces returns the namespace keys sorted.
func (pm PackageMap) Namespaces() []string {
	keys := make([]string, 0, len(pm))
	for k := range pm {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadPackageMap reads <projectRoot>/<vendorDir>/autoload_namespaces.json.
// Values may be a single path or a list of paths; relative paths are
// resolved against projectRoot. A missing vendor directory or map file means
// the project is not managed and is fatal.
func LoadPackageMap(projectRoot, vendorDir string) (PackageMap, error) {
	vendor := vendorDir
	if !filepath.IsAbs(vendor) {
		vendor = filepath.Join(projectRoot, vendorDir)
	}

	info, err := os.Stat(vendor)
	if err != nil {
		return nil, types.NewProjectNotManagedError(projectRoot, err)
	}
	if !info.IsDir() {
		return nil, types.NewProjectNotManagedError(projectRoot, fmt.Errorf("%s is not a directory", vendor))
	}

	mapPath := filepath.Join(vendor, MapFileName)
	data, err := os.ReadFile(mapPath)
	if err != nil {
		return nil, types.NewProjectNotManagedError(projectRoot, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, types.NewProjectNotManagedError(projectRoot, fmt.Errorf("parse %s: %w", mapPath, err))
	}

	pm := make(PackageMap, len(raw))
	for ns, value := range raw {
		paths, err := decodePaths(value)
		if err != nil {
			return nil, types.NewProjectNotManagedError(projectRoot, fmt.Errorf("namespace %q: %w", ns, err))
		}
		for i, p := range paths {
			if !filepath.IsAbs(p) {
				paths[i] = filepath.Join(projectRoot, p)
			}
		}
		pm[ns] = paths
	}
	return pm, nil
}

func decodePaths(value json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(value, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(value, &many); err != nil {
		return nil, err
	}
	return many, nil
}
