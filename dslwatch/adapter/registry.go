package adapter

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed adapters.yaml
var defaultYAML []byte

// Registry maps page identities to adapters. Read-only after construction.
type Registry struct {
	order []*Adapter
	byID  map[Identity]*Adapter
}

type fileConfig struct {
	Adapters []fileAdapter `yaml:"adapters"`
}

type fileAdapter struct {
	Identity       string `yaml:"identity"`
	LocationSuffix string `yaml:"location_suffix"`
	Container      string `yaml:"container"`
	Root           string `yaml:"root"` // self | parent
	Row            string `yaml:"row"`  // block_row | inline_pair
	RowClass       string `yaml:"row_class"`
	LabelClass     string `yaml:"label_class"`
	ValueClass     string `yaml:"value_class"`
	ShowUptime     bool   `yaml:"show_uptime"`
	Single         string `yaml:"single"`
	Dual           string `yaml:"dual"`
	Button         string `yaml:"button"`
}

// Default returns the registry built from the embedded adapters.yaml.
func Default() *Registry {
	r, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("adapter: embedded adapters.yaml: %v", err))
	}
	return r
}

// LoadFile reads an adapter override file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("adapter: read %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("adapter: %s: %w", path, err)
	}
	return r, nil
}

// Parse builds a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("adapter: parse yaml: %w", err)
	}
	if len(fc.Adapters) == 0 {
		return nil, fmt.Errorf("adapter: no adapters defined")
	}

	r := &Registry{byID: make(map[Identity]*Adapter, len(fc.Adapters))}
	for i, fa := range fc.Adapters {
		a, err := fa.build()
		if err != nil {
			return nil, fmt.Errorf("adapter[%d]: %w", i, err)
		}
		if _, dup := r.byID[a.Identity]; dup {
			return nil, fmt.Errorf("adapter[%d]: duplicate identity %s", i, a.Identity)
		}
		r.byID[a.Identity] = a
		r.order = append(r.order, a)
	}
	return r, nil
}

func (fa fileAdapter) build() (*Adapter, error) {
	var id Identity
	if err := id.UnmarshalText([]byte(fa.Identity)); err != nil {
		return nil, err
	}
	if id == None {
		return nil, fmt.Errorf("identity is required")
	}
	if fa.LocationSuffix == "" {
		return nil, fmt.Errorf("%s: location_suffix is required", id)
	}
	if fa.Container == "" {
		return nil, fmt.Errorf("%s: container is required", id)
	}

	a := &Adapter{
		Identity:          id,
		LocationSuffix:    strings.TrimRight(fa.LocationSuffix, "/"),
		ContainerSelector: fa.Container,
		RowClass:          fa.RowClass,
		LabelClass:        fa.LabelClass,
		ValueClass:        fa.ValueClass,
		ShowUptime:        fa.ShowUptime,
		ButtonHTML:        fa.Button,
	}
	if a.ButtonHTML == "" {
		a.ButtonHTML = ButtonHTML
	}

	switch fa.Root {
	case "", "self":
		a.Root = RootSelf
	case "parent":
		a.Root = RootParent
	default:
		return nil, fmt.Errorf("%s: unknown root rule %q", id, fa.Root)
	}
	switch fa.Row {
	case "", "block_row":
		a.Row = BlockRow
	case "inline_pair":
		a.Row = InlinePair
	default:
		return nil, fmt.Errorf("%s: unknown row kind %q", id, fa.Row)
	}

	single := fa.Single
	if single == "" {
		single = "{{.Value}}"
	}
	var err error
	if a.single, err = template.New(id.String() + ".single").Option("missingkey=error").Parse(single); err != nil {
		return nil, fmt.Errorf("%s: single template: %w", id, err)
	}
	if fa.Dual == "" {
		return nil, fmt.Errorf("%s: dual template is required", id)
	}
	if a.dual, err = template.New(id.String() + ".dual").Option("missingkey=error").Parse(fa.Dual); err != nil {
		return nil, fmt.Errorf("%s: dual template: %w", id, err)
	}
	return a, nil
}

// Resolve returns the adapter for id. None never resolves.
func (r *Registry) Resolve(id Identity) (*Adapter, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// Classify maps a page href to an identity: the first adapter whose
// location suffix ends the href wins. A trailing slash is ignored.
func (r *Registry) Classify(location string) Identity {
	href := strings.TrimRight(location, "/")
	if href == "" {
		return None
	}
	for _, a := range r.order {
		if strings.HasSuffix(href, a.LocationSuffix) {
			return a.Identity
		}
	}
	return None
}

// Adapters returns the adapters in file order.
func (r *Registry) Adapters() []*Adapter {
	out := make([]*Adapter, len(r.order))
	copy(out, r.order)
	return out
}
