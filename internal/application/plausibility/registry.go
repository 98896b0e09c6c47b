package plausibility

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/TaxFlow/pkg/errors"
)

// registryFile is the on-disk shape of a rules file.
type registryFile struct {
	Defaults *ConstantsOverride `yaml:"defaults,omitempty"`
	Forms    []FormRules        `yaml:"forms"`
}

// Registry maps form types to rule sets. It is immutable after construction
// and safe for concurrent use.
type Registry struct {
	base  Constants
	forms map[string]FormRules
}

// NewRegistry builds a registry from base constants and form entries. Later
// entries for the same form type replace earlier ones.
func NewRegistry(base Constants, forms []FormRules) (*Registry, error) {
	r := &Registry{base: base, forms: make(map[string]FormRules, len(forms))}
	for _, f := range forms {
		key := strings.ToUpper(strings.TrimSpace(f.FormType))
		if key == "" {
			return nil, errors.New(errors.ErrCodeRuleRegistryInvalid, "form entry without form_type")
		}
		for _, rule := range f.Rules {
			if err := rule.Validate(); err != nil {
				return nil, err
			}
		}
		f.FormType = key
		if len(f.Jurisdictions) > 0 {
			j := make(map[string]ConstantsOverride, len(f.Jurisdictions))
			for k, v := range f.Jurisdictions {
				j[strings.ToUpper(k)] = v
			}
			f.Jurisdictions = j
		}
		r.forms[key] = f
	}
	return r, nil
}

// DefaultRegistry returns the built-in rules with the given base constants.
func DefaultRegistry(base Constants) *Registry {
	r, err := NewRegistry(base, defaultForms())
	if err != nil {
		panic("plausibility: built-in registry invalid: " + err.Error())
	}
	return r
}

// LoadRegistry parses a YAML rules file. Forms present in the file replace the
// built-in entries for that form type; others keep their defaults.
func LoadRegistry(path string, base Constants) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRuleRegistryInvalid, "failed to read rules file").WithDetail(path)
	}
	return ParseRegistry(raw, base)
}

// ParseRegistry is LoadRegistry over an in-memory document.
func ParseRegistry(raw []byte, base Constants) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRuleRegistryInvalid, "failed to parse rules file")
	}
	base = file.Defaults.Apply(base)
	forms := append(defaultForms(), file.Forms...)
	return NewRegistry(base, forms)
}

// Resolve returns the effective rule set: built-in or configured rules for the
// form type, constants layered base → form → jurisdiction.
func (r *Registry) Resolve(formType, jurisdiction string) RuleSet {
	key := strings.ToUpper(strings.TrimSpace(formType))
	f, ok := r.forms[key]
	if !ok {
		return RuleSet{FormType: key, Constants: r.base, Rules: genericRules()}
	}
	c := f.Constants.Apply(r.base)
	if o, ok := f.Jurisdictions[strings.ToUpper(strings.TrimSpace(jurisdiction))]; ok {
		c = o.Apply(c)
	}
	rules := make([]Rule, len(f.Rules))
	copy(rules, f.Rules)
	return RuleSet{FormType: key, Constants: c, Rules: rules}
}

// FormTypes lists the form types with a dedicated entry.
func (r *Registry) FormTypes() []string {
	out := make([]string, 0, len(r.forms))
	for k := range r.forms {
		out = append(out, k)
	}
	return out
}
