// Package templateconfig discovers template configuration files in
// priority order, merges them by template_id (higher priority wins),
// resolves the three-layer defaults merge, and hands back validated
// Template aggregates — wrapped in a NoOp or TTL cache service so
// repeated lookups don't re-read and re-merge disk state.
package templateconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hostfactory/aws-provider/pkg/domain/template"
)

// FileType names where a merged template's definition ultimately came
// from, for source tracking on the Template aggregate.
const (
	FileTypeProviderInstance = "provider_instance"
	FileTypeProviderType     = "provider_type"
	FileTypeMain             = "main"
	FileTypeLegacy           = "legacy"
)

// candidateFile is one file in the priority-ordered discovery list.
type candidateFile struct {
	path     string
	fileType string
}

// Manager discovers, merges, and caches template definitions for one
// provider instance.
type Manager struct {
	dir              string
	providerInstance string
	providerType     string
	cache            CacheService
	globalDefaults   map[string]any
	typeDefaults     map[string]any
	instanceDefaults map[string]any
}

func NewManager(dir, providerInstance, providerType string, cache CacheService, layers DefaultsLayers) *Manager {
	if cache == nil {
		cache = NewNoOpCache()
	}
	return &Manager{
		dir:              dir,
		providerInstance: providerInstance,
		providerType:     providerType,
		cache:            cache,
		globalDefaults:   layers.Global,
		typeDefaults:     layers.ProviderType,
		instanceDefaults: layers.ProviderInstance,
	}
}

func (m *Manager) discoveryOrder() []candidateFile {
	return []candidateFile{
		{filepath.Join(m.dir, m.providerInstance+"_templates.json"), FileTypeProviderInstance},
		{filepath.Join(m.dir, m.providerType+"prov_templates.json"), FileTypeProviderType},
		{filepath.Join(m.dir, "templates.json"), FileTypeMain},
	}
}

// LoadAll discovers every candidate file, merges raw template documents
// by template_id (the earliest-seen, i.e. highest-priority, file wins
// per field in loadAllUncached's merge), resolves defaults, validates,
// and returns the merged Template set. Results are cached under the key
// "templates" using the configured CacheService.
func (m *Manager) LoadAll() ([]*template.Template, error) {
	raw, err := m.cache.GetOrLoad("templates", m.loadAllUncached)
	if err != nil {
		return nil, err
	}
	docs, _ := raw["__documents"].([]map[string]any)
	result := make([]*template.Template, 0, len(docs))
	for _, d := range docs {
		t, err := m.buildTemplate(d)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// Invalidate drops the cached template set, forcing the next LoadAll to
// re-read and re-merge disk state.
func (m *Manager) Invalidate() {
	m.cache.Invalidate("templates")
}

// GetByID returns the single merged, validated template with the given
// id, or (nil, false, nil) if no discovered file defines it.
func (m *Manager) GetByID(id string) (*template.Template, bool, error) {
	all, err := m.LoadAll()
	if err != nil {
		return nil, false, err
	}
	for _, t := range all {
		if t.TemplateID == id {
			return t, true, nil
		}
	}
	return nil, false, nil
}

func (m *Manager) loadAllUncached() (map[string]any, error) {
	merged := map[string]any{} // template_id -> merged raw doc, first file wins per field
	sourceFile := map[string]string{}
	sourceType := map[string]string{}

	for _, cand := range m.discoveryOrder() {
		docs, err := readTemplateFile(cand.path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("templateconfig: reading %s: %w", cand.path, err)
		}
		for id, doc := range docs {
			existing, ok := merged[id].(map[string]any)
			if !ok {
				merged[id] = doc
				sourceFile[id] = cand.path
				sourceType[id] = cand.fileType
				continue
			}
			// existing came from a higher-priority file; it wins field by
			// field over this lower-priority doc.
			combined := map[string]any{}
			for k, v := range doc {
				combined[k] = v
			}
			for k, v := range existing {
				combined[k] = v
			}
			merged[id] = combined
		}
	}

	docs := make([]map[string]any, 0, len(merged))
	for id, doc := range merged {
		d := doc.(map[string]any)
		d["template_id"] = id
		d["__source_file"] = sourceFile[id]
		d["__file_type"] = sourceType[id]
		docs = append(docs, d)
	}
	return map[string]any{"__documents": docs}, nil
}

// readTemplateFile parses either a JSON array of template objects or an
// object map template_id -> template, injecting the map key as
// template_id when the object omits it.
func readTemplateFile(path string) (map[string]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var asArray []map[string]any
	if err := json.Unmarshal(raw, &asArray); err == nil {
		out := make(map[string]map[string]any, len(asArray))
		for _, doc := range asArray {
			id, _ := doc["template_id"].(string)
			if id == "" {
				return nil, fmt.Errorf("templateconfig: %s: array entry missing template_id", path)
			}
			out[id] = doc
		}
		return out, nil
	}
	var asMap map[string]map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("templateconfig: %s: not a template array or template_id map: %w", path, err)
	}
	for id, doc := range asMap {
		if _, ok := doc["template_id"]; !ok {
			doc["template_id"] = id
		}
	}
	return asMap, nil
}

func (m *Manager) buildTemplate(doc map[string]any) (*template.Template, error) {
	sourceFile, _ := doc["__source_file"].(string)
	fileType, _ := doc["__file_type"].(string)
	delete(doc, "__source_file")
	delete(doc, "__file_type")

	resolved, err := ResolveDefaults(DefaultsLayers{
		Global:           m.globalDefaults,
		ProviderType:     m.typeDefaults,
		ProviderInstance: m.instanceDefaults,
	}, doc)
	if err != nil {
		return nil, err
	}

	t, err := decodeTemplate(resolved)
	if err != nil {
		return nil, err
	}
	t.SourceFile = sourceFile
	t.FileType = fileType
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// decodeTemplate round-trips the merged map through JSON into a
// Template, relying on field tags added by the caller's encoding
// convention (snake_case keys matching the domain JSON schema).
func decodeTemplate(doc map[string]any) (*template.Template, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var wire wireTemplate
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	return wire.toDomain(), nil
}
