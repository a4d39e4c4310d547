// Package nativespec lets an operator ship a vendor-exact JSON payload
// on a template — either a launch-template spec or a provider-API
// spec — templated with a small set of bound variables, instead of
// relying entirely on default rendering.
package nativespec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	texttemplate "text/template"

	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
)

// Config toggles the service on or off; when disabled, every call
// returns nil and handlers fall back to default rendering.
type Config struct {
	Enabled bool
}

// Service renders a template's native-spec fields into a concrete
// document, merging in handler-injected values afterward.
type Service struct {
	cfg            Config
	packageName    string
	packageVersion string
}

func NewService(cfg Config, packageName, packageVersion string) *Service {
	return &Service{cfg: cfg, packageName: packageName, packageVersion: packageVersion}
}

// bindVars builds the complete bound-variable set a spec's templated
// expressions may reference.
func (s *Service) bindVars(t *template.Template, r *request.Request, extra map[string]any) map[string]any {
	vars := map[string]any{
		"request_id":      r.RequestID,
		"requested_count": r.MachineCount,
		"template_id":     t.TemplateID,
		"image_id":        t.ImageID,
		"instance_type":   t.InstanceType,
		"package_name":    s.packageName,
		"package_version": s.packageVersion,
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

// funcMap supplies the filters a rendered spec may invoke: arithmetic,
// defaulting, base64 encoding, and conditionals.
func funcMap() texttemplate.FuncMap {
	return texttemplate.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		"mul": func(a, b int) int { return a * b },
		"default": func(def, v any) any {
			switch val := v.(type) {
			case string:
				if val == "" {
					return def
				}
			case nil:
				return def
			}
			return v
		},
		"b64enc": func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) },
		"ternary": func(cond bool, whenTrue, whenFalse any) any {
			if cond {
				return whenTrue
			}
			return whenFalse
		},
	}
}

// render executes raw as a text/template document over vars and
// unmarshals the result into a generic JSON document. A malformed
// template or invalid JSON output is a hard error surfaced at render
// time, never at registration.
func render(raw map[string]any, vars map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("nativespec: marshal spec: %w", err)
	}
	tmpl, err := texttemplate.New("spec").Funcs(funcMap()).Parse(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("nativespec: parse spec: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("nativespec: render spec: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("nativespec: rendered spec is not valid json: %w", err)
	}
	return out, nil
}

// ProcessProviderAPISpec returns the rendered provider_api_spec, or
// nil if the template declares none, or native spec is disabled.
func (s *Service) ProcessProviderAPISpec(t *template.Template, r *request.Request) (map[string]any, error) {
	if !s.cfg.Enabled || t.AWS == nil || len(t.AWS.ProviderAPISpec) == 0 {
		return nil, nil
	}
	return render(t.AWS.ProviderAPISpec, s.bindVars(t, r, nil))
}

// ProcessProviderAPISpecWithMerge renders the provider_api_spec then
// merges handler-injected keys (launch template id/version, computed
// capacity/tag contexts) over the rendered result. Injected keys
// always win over rendered ones.
func (s *Service) ProcessProviderAPISpecWithMerge(t *template.Template, r *request.Request, api string, context map[string]any) (map[string]any, error) {
	rendered, err := s.ProcessProviderAPISpec(t, r)
	if err != nil {
		return nil, err
	}
	if rendered == nil {
		return nil, nil
	}
	for k, v := range context {
		rendered[k] = v
	}
	return rendered, nil
}
