package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/BurntSushi/toml"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
)

//go:embed default_script.toml
var defaultScript []byte

type document struct {
	Greeting     Reply  `toml:"greeting"`
	Intents      []Rule `toml:"intent"`
	Fallback     Reply  `toml:"fallback"`
	Confirmation struct {
		Template string `toml:"template"`
	} `toml:"confirmation"`
}

// Default returns the built-in French script of the agency website. The
// script is parsed once and shared; Scripts are immutable.
var Default = sync.OnceValue(func() *Script {
	s, err := Parse(defaultScript)
	if err != nil {
		panic(fmt.Sprintf("embedded default script is invalid: %v", err))
	}
	return s
})

// LoadFile reads a script from a TOML file. An empty path yields Default().
func LoadFile(path string) (*Script, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a TOML script. Unknown keys are rejected so a
// typo cannot silently drop a rule.
func Parse(data []byte) (*Script, error) {
	var doc document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown script keys: %v", undecoded)
	}
	return build(doc)
}

func build(doc document) (*Script, error) {
	if strings.TrimSpace(doc.Greeting.Response) == "" {
		return nil, fmt.Errorf("greeting.response is required")
	}
	if err := validateActions("greeting", doc.Greeting.Actions); err != nil {
		return nil, err
	}
	if len(doc.Intents) == 0 {
		return nil, fmt.Errorf("at least one [[intent]] is required")
	}

	seen := make(map[model.Intent]bool, len(doc.Intents))
	compiled := make([]Rule, 0, len(doc.Intents))
	for i, r := range doc.Intents {
		where := fmt.Sprintf("intent[%d]", i)
		if strings.TrimSpace(string(r.Intent)) == "" {
			return nil, fmt.Errorf("%s: name is required", where)
		}
		where = fmt.Sprintf("intent %q", r.Intent)
		if r.Intent == model.IntentFallback {
			return nil, fmt.Errorf("%s: name is reserved", where)
		}
		if seen[r.Intent] {
			return nil, fmt.Errorf("%s: duplicate name", where)
		}
		seen[r.Intent] = true
		if strings.TrimSpace(r.Response) == "" {
			return nil, fmt.Errorf("%s: response is required", where)
		}
		if err := validateActions(where, r.Actions); err != nil {
			return nil, err
		}

		r.normalized = make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = Normalize(strings.TrimSpace(kw))
			if kw == "" {
				return nil, fmt.Errorf("%s: blank keyword", where)
			}
			r.normalized = append(r.normalized, kw)
		}
		if len(r.normalized) == 0 {
			return nil, fmt.Errorf("%s: at least one keyword is required", where)
		}
		compiled = append(compiled, r)
	}

	if strings.TrimSpace(doc.Fallback.Response) == "" {
		return nil, fmt.Errorf("fallback.response is required")
	}
	if err := validateActions("fallback", doc.Fallback.Actions); err != nil {
		return nil, err
	}

	tpl := doc.Confirmation.Template
	if !strings.Contains(tpl, ".Name") {
		return nil, fmt.Errorf("confirmation.template must reference {{.Name}}")
	}
	if _, err := template.New("confirmation").Option("missingkey=error").Parse(tpl); err != nil {
		return nil, fmt.Errorf("confirmation.template: %w", err)
	}

	return &Script{
		greeting:     doc.Greeting,
		rules:        compiled,
		fallback:     doc.Fallback,
		confirmation: tpl,
	}, nil
}

func validateActions(where string, actions []model.Action) error {
	for i, a := range actions {
		if strings.TrimSpace(a.Label) == "" {
			return fmt.Errorf("%s: action[%d] label is required", where, i)
		}
		if !a.Kind.Valid() {
			return fmt.Errorf("%s: action[%d] unknown kind %q", where, i, a.Kind)
		}
		if strings.TrimSpace(a.Target) == "" {
			return fmt.Errorf("%s: action[%d] target is required", where, i)
		}
	}
	return nil
}
