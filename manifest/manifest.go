package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/BaSui01/bundlekit/types"
)

const (
	// FileName is the manifest file looked up at depth 0 of a package.
	FileName = "bundles.json"

	// Extension of persisted manifest copies.
	Extension = ".json"

	// EnvAll is the pseudo-environment active everywhere unless a named
	// environment claims the plugin.
	EnvAll = "all"

	// ClassSuffix marks the plugin class file of a package.
	ClassSuffix = "Plugin"

	// DefaultActionExt is appended to the short action class name when the
	// manifest does not name the action source explicitly.
	DefaultActionExt = ".lua"
)

// Declaration is one plugin entry of a manifest.
type Declaration struct {
	ClassName    string
	Environments []string
	Overrides    []string
}

// Identifier returns the plugin identifier of the declared class.
func (d Declaration) Identifier() string {
	return PluginIdentifier(d.ClassName)
}

// InEnvironment reports whether env is one of the declared environments.
func (d Declaration) InEnvironment(env string) bool {
	for _, e := range d.Environments {
		if e == env {
			return true
		}
	}
	return false
}

// LifecycleAction describes the hook class run on install and uninstall.
type LifecycleAction struct {
	ClassName  string `json:"class"`
	SourcePath string `json:"source"`
}

// Resource is an auxiliary YAML file declared for one environment.
type Resource struct {
	Environment string
	Path        string
}

// Resolver reports whether a class name can be resolved.
type Resolver interface {
	Has(name string) bool
}

// Manifest is the parsed form of one package manifest. It is immutable.
type Manifest struct {
	identifier   string
	path         string
	declarations []Declaration
	action       *LifecycleAction
	config       []Resource
	routing      string
}

// rawManifest mirrors the on-disk JSON.
type rawManifest struct {
	Bundles       *orderedmap.OrderedMap[string, json.RawMessage] `json:"bundles"`
	ActionManager json.RawMessage                                 `json:"actionManager"`
	ActionSource  string                                          `json:"actionSource"`
	Config        *orderedmap.OrderedMap[string, string]          `json:"config"`
	Routing       string                                          `json:"routing"`
}

type rawDeclaration struct {
	Environments []string `json:"environments"`
	Overrides    []string `json:"overrides"`
}

// Load reads and parses the manifest at path.
func Load(identifier, path string) (*Manifest, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewMalformedManifestError(path, err)
	}
	return Parse(identifier, path, body)
}

// Parse builds a Manifest from body. path locates the manifest on disk and
// anchors relative resource paths.
func Parse(identifier, path string, body []byte) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, types.NewMalformedManifestError(path, err)
	}

	m := &Manifest{
		identifier: strings.ToLower(identifier),
		path:       path,
		routing:    raw.Routing,
	}

	// "bundles" is required; an empty object is a package with no plugins.
	if raw.Bundles == nil {
		return nil, types.NewMalformedManifestError(path, errors.New(`missing "bundles" object`))
	}
	for pair := raw.Bundles.Oldest(); pair != nil; pair = pair.Next() {
		decl, err := parseDeclaration(pair.Key, pair.Value)
		if err != nil {
			return nil, types.NewMalformedManifestError(path, err)
		}
		m.declarations = append(m.declarations, decl)
	}

	action, err := parseAction(raw.ActionManager, raw.ActionSource)
	if err != nil {
		return nil, types.NewMalformedManifestError(path, err)
	}
	m.action = action

	if raw.Config != nil {
		for pair := raw.Config.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Key == "" || pair.Value == "" {
				continue
			}
			m.config = append(m.config, Resource{Environment: pair.Key, Path: pair.Value})
		}
	}

	return m, nil
}

func parseDeclaration(className string, value json.RawMessage) (Declaration, error) {
	if strings.TrimSpace(className) == "" {
		return Declaration{}, errors.New("empty plugin class name")
	}
	decl := Declaration{ClassName: className}

	trimmed := strings.TrimSpace(string(value))
	if trimmed == "" || trimmed == "null" {
		return decl, nil
	}
	if trimmed[0] == '"' {
		var marker string
		if err := json.Unmarshal(value, &marker); err != nil {
			return Declaration{}, fmt.Errorf("plugin %s: %w", className, err)
		}
		// Any string marker is the degenerate form.
		return decl, nil
	}

	var rd rawDeclaration
	if err := json.Unmarshal(value, &rd); err != nil {
		return Declaration{}, fmt.Errorf("plugin %s: %w", className, err)
	}
	decl.Environments = dedupe(rd.Environments)
	decl.Overrides = dedupe(rd.Overrides)
	return decl, nil
}

func parseAction(raw json.RawMessage, source string) (*LifecycleAction, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var class string
	if err := json.Unmarshal(raw, &class); err != nil {
		return nil, fmt.Errorf("actionManager: %w", err)
	}
	if class == "" {
		return nil, nil
	}
	if source == "" {
		source = PluginIdentifier(class) + DefaultActionExt
	}
	return &LifecycleAction{ClassName: class, SourcePath: source}, nil
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Identifier returns the lower-cased package identifier.
func (m *Manifest) Identifier() string { return m.identifier }

// Path returns the manifest file path.
func (m *Manifest) Path() string { return m.path }

// Dir returns the directory holding the manifest.
func (m *Manifest) Dir() string { return filepath.Dir(m.path) }

// Declarations returns the plugin declarations in manifest order.
func (m *Manifest) Declarations() []Declaration {
	out := make([]Declaration, len(m.declarations))
	copy(out, m.declarations)
	return out
}

// Action returns the lifecycle action with its source resolved against the
// manifest directory, or nil when none is declared.
func (m *Manifest) Action() *LifecycleAction {
	if m.action == nil {
		return nil
	}
	return &LifecycleAction{
		ClassName:  m.action.ClassName,
		SourcePath: m.resolve(m.action.SourcePath),
	}
}

// ActionClassName returns the declared action class or "".
func (m *Manifest) ActionClassName() string {
	if m.action == nil {
		return ""
	}
	return m.action.ClassName
}

// LifecycleActionClass returns the action class only when one is declared
// and r can resolve it.
func (m *Manifest) LifecycleActionClass(r Resolver) (string, bool) {
	if m.action == nil || r == nil {
		return "", false
	}
	if !r.Has(m.action.ClassName) {
		return "", false
	}
	return m.action.ClassName, true
}

// ConfigResources returns the declared per-environment config files with
// absolute paths.
func (m *Manifest) ConfigResources() []Resource {
	out := make([]Resource, 0, len(m.config))
	for _, r := range m.config {
		out = append(out, Resource{Environment: r.Environment, Path: m.resolve(r.Path)})
	}
	return out
}

// RoutingResource returns the declared routing file or "".
func (m *Manifest) RoutingResource() string {
	if m.routing == "" {
		return ""
	}
	return m.resolve(m.routing)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir(), p)
}

// PluginIdentifier returns the short identifier of a class name: the segment
// after the last `\` or `.`.
func PluginIdentifier(className string) string {
	i := strings.LastIndexAny(className, `\.`)
	if i < 0 {
		return className
	}
	return className[i+1:]
}

// PackageIdentifier derives the package identifier from the plugin class
// file name: its stem, lower-cased.
func PackageIdentifier(classFile string) string {
	base := filepath.Base(classFile)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// IsClassFile reports whether name follows the *Plugin naming convention.
func IsClassFile(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return len(stem) > len(ClassSuffix) && strings.HasSuffix(stem, ClassSuffix)
}
