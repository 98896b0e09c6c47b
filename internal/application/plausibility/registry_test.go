package plausibility

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/pkg/errors"
)

func TestRegistry_ResolveFallsBackToGeneric(t *testing.T) {
	r := DefaultRegistry(DefaultConstants())
	set := r.Resolve("UNKNOWN_FORM", "DE")
	assert.Equal(t, "UNKNOWN_FORM", set.FormType)
	require.Len(t, set.Rules, 1)
	assert.Equal(t, KindDeviation, set.Rules[0].Kind)
	assert.Equal(t, DefaultConstants(), set.Constants)
}

func TestRegistry_ConstantLayering(t *testing.T) {
	doc := []byte(`
defaults:
  deviation_threshold: 0.25
forms:
  - form_type: anlage_kap
    constants:
      withholding_ceiling: 0.20
    jurisdictions:
      de-nw:
        withholding_ceiling: 0.26
    rules:
      - id: kap_withholding
        kind: withholding
        field: withholdingTax
        dependent_field: grossDividends
        severity: warning
        require_action: true
`)
	r, err := ParseRegistry(doc, DefaultConstants())
	require.NoError(t, err)

	generic := r.Resolve("UST", "DE-BY")
	assert.Equal(t, 0.25, generic.Constants.DeviationThreshold)
	assert.Greater(t, len(generic.Rules), 1, "built-in UST rules stay in place")

	kap := r.Resolve("ANLAGE_KAP", "DE-BY")
	assert.Equal(t, 0.20, kap.Constants.WithholdingCeiling)
	assert.Equal(t, 0.25, kap.Constants.DeviationThreshold)
	require.Len(t, kap.Rules, 1)
	assert.True(t, kap.Rules[0].RequireAction)

	nw := r.Resolve("ANLAGE_KAP", "DE-NW")
	assert.Equal(t, 0.26, nw.Constants.WithholdingCeiling)
	assert.Equal(t, 1.00, nw.Constants.ConsistencyTolerance)
}

func TestRegistry_RejectsInvalidRules(t *testing.T) {
	cases := map[string]string{
		"unknown kind":       "forms:\n  - form_type: X\n    rules:\n      - {id: r, kind: magic}\n",
		"missing limit":      "forms:\n  - form_type: X\n    rules:\n      - {id: r, kind: threshold, field: a, dependent_field: b}\n",
		"bad severity":       "forms:\n  - form_type: X\n    rules:\n      - {id: r, kind: completeness, field: a, severity: medium}\n",
		"missing form type":  "forms:\n  - rules: []\n",
		"malformed document": "forms: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(doc), DefaultConstants())
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeRuleRegistryInvalid))
		})
	}
}

func TestLoadRegistry_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  consistency_tolerance: 0.5\n"), 0o600))

	r, err := LoadRegistry(path, DefaultConstants())
	require.NoError(t, err)
	assert.Equal(t, 0.5, r.Resolve("ANLAGE_V", "").Constants.ConsistencyTolerance)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"), DefaultConstants())
	assert.True(t, errors.IsCode(err, errors.ErrCodeRuleRegistryInvalid))
}

func TestDefaultRegistry_FormTypes(t *testing.T) {
	assert.ElementsMatch(t, []string{"ANLAGE_KAP", "ANLAGE_V", "UST", "GEWST"}, DefaultRegistry(DefaultConstants()).FormTypes())
}
