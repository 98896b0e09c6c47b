package deadline

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/TaxFlow/internal/domain/deadline"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// definitionsFile is the on-disk shape of the deadline catalogue.
type definitionsFile struct {
	Deadlines []deadline.Definition `yaml:"deadlines"`
}

var defaultJurisdictions = []string{"DE-BW", "DE-BY", "DE-BE", "DE-HH", "DE-NW"}

// DefaultDefinitions returns the annual returns due on 31 July of the year
// after the tax year, for each supported state.
func DefaultDefinitions() []deadline.Definition {
	forms := []struct{ formType, description string }{
		{"ANLAGE_KAP", "capital income annex"},
		{"ANLAGE_V", "rental income annex"},
		{"UST", "annual VAT return"},
		{"GEWST", "trade tax return"},
	}
	out := make([]deadline.Definition, 0, len(defaultJurisdictions)*len(forms))
	for _, j := range defaultJurisdictions {
		for _, f := range forms {
			out = append(out, deadline.Definition{
				Jurisdiction: j,
				FormType:     f.formType,
				Month:        7,
				Day:          31,
				YearOffset:   1,
				Recurring:    true,
				Description:  f.description,
			})
		}
	}
	return out
}

// LoadDefinitions reads a YAML catalogue and validates every entry.
func LoadDefinitions(path string) ([]deadline.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDeadlineDefinitionBad, "failed to read deadline definitions").WithDetail(path)
	}
	return ParseDefinitions(raw)
}

// ParseDefinitions is LoadDefinitions over an in-memory document.
func ParseDefinitions(raw []byte) ([]deadline.Definition, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDeadlineDefinitionBad, "failed to parse deadline definitions")
	}
	for _, d := range file.Deadlines {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Deadlines, nil
}
