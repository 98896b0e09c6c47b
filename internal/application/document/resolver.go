package document

import (
	"context"

	"github.com/turtacn/TaxFlow/internal/application/port"
	"github.com/turtacn/TaxFlow/internal/domain/template"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// Template sources, most specific first.
const (
	SourceStored          = "stored"
	SourceStoredLegalForm = "stored_any_legal_form"
	SourceSynthesized     = "synthesized"
	SourceGeneric         = "generic"
)

type candidate struct {
	key    template.Key
	source string
}

// Resolved is a template ready for filling.
type Resolved struct {
	XML        string `json:"xml"`
	Source     string `json:"source"`
	TemplateID string `json:"template_id,omitempty"`
}

// Resolver finds the template for a form. Lookup order:
//
//  1. active stored template for (formType, legalForm, taxYear)
//  2. active stored template for (formType, "", taxYear)
//  3. synthesized from the form type's namespace and body fragments
//  4. synthesized from the generic fragments
//
// Steps 3 and 4 never fail, so an unknown form type still yields a document.
type Resolver struct {
	repo    template.Repository
	metrics port.Metrics
	logger  logging.Logger
}

// NewResolver builds a Resolver. repo may be nil to always synthesize.
func NewResolver(repo template.Repository, metrics port.Metrics, logger logging.Logger) *Resolver {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Resolver{repo: repo, metrics: metrics, logger: logger.Named("template")}
}

// Resolve returns the template for the key. Only repository failures other
// than NotFound are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, formType, legalForm string, taxYear int) (*Resolved, error) {
	key := template.NormalizeKey(formType, legalForm, taxYear)

	candidates := []candidate{{key, SourceStored}}
	if key.LegalForm != "" {
		candidates = append(candidates, candidate{template.Key{FormType: key.FormType, TaxYear: key.TaxYear}, SourceStoredLegalForm})
	}

	if r.repo != nil {
		for _, c := range candidates {
			tpl, err := r.repo.FindActive(ctx, c.key)
			if err == nil {
				r.metrics.RecordTemplateResolution(key.FormType, c.source)
				return &Resolved{XML: tpl.XMLTemplate, Source: c.source, TemplateID: tpl.ID}, nil
			}
			if !errors.IsNotFound(err) {
				return nil, errors.Wrap(err, errors.CodeUnknown, "failed to look up form template")
			}
		}
	}

	xml, known := synthesize(key.FormType)
	source := SourceSynthesized
	if !known {
		source = SourceGeneric
	}
	r.logger.Info("no stored template, using fallback",
		logging.String("form_type", key.FormType),
		logging.String("legal_form", key.LegalForm),
		logging.Int("tax_year", key.TaxYear),
		logging.String("source", source))
	r.metrics.RecordTemplateResolution(key.FormType, source)
	return &Resolved{XML: xml, Source: source}, nil
}
