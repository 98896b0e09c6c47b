package document

import "strings"

// genericKey selects the fallback fragments.
const genericKey = "*"

var namespaceFragments = map[string]string{
	"ANLAGE_KAP": `xmlns="urn:taxflow:forms:anlage-kap:v1"`,
	"ANLAGE_V":   `xmlns="urn:taxflow:forms:anlage-v:v1"`,
	"UST":        `xmlns="urn:taxflow:forms:ust:v1"`,
	"GEWST":      `xmlns="urn:taxflow:forms:gewst:v1"`,
	genericKey:   `xmlns="urn:taxflow:forms:generic:v1"`,
}

var bodyFragments = map[string]string{
	"ANLAGE_KAP": `  <CapitalIncome>
    <GrossDividends>{{grossDividends}}</GrossDividends>
    <WithholdingTax>{{withholdingTax}}</WithholdingTax>
    <ForeignIncome>{{foreignIncome}}</ForeignIncome>
    <ForeignCountry>{{foreignCountry}}</ForeignCountry>
    <SaverAllowance>{{saverAllowance}}</SaverAllowance>
  </CapitalIncome>`,
	"ANLAGE_V": `  <RentalIncome>
    <PropertyRef>{{propertyRef}}</PropertyRef>
    <Income>{{rentalIncome}}</Income>
    <Costs total="{{totalCosts}}">
      <Maintenance>{{maintenanceCosts}}</Maintenance>
      <Interest>{{interestCosts}}</Interest>
      <Depreciation basis="{{depreciationBasis}}">{{depreciation}}</Depreciation>
      <Other>{{otherCosts}}</Other>
    </Costs>
  </RentalIncome>`,
	"UST": `  <VatReturn>
    <Revenue>{{revenue}}</Revenue>
    <OutputVat>{{outputVat}}</OutputVat>
    <InputVat>{{inputVatNegative}}</InputVat>
    <VatPayable>{{vatPayable}}</VatPayable>
  </VatReturn>`,
	"GEWST": `  <TradeTax>
    <TradeProfit>{{tradeProfit}}</TradeProfit>
    <Additions>{{additions}}</Additions>
    <Reductions>{{reductions}}</Reductions>
    <TradeTaxBase>{{tradeTaxBase}}</TradeTaxBase>
    <Municipality>{{municipality}}</Municipality>
  </TradeTax>`,
	genericKey: `  <Body>
    <Note>{{note}}</Note>
  </Body>`,
}

// fragmentFor returns the fragment for formType and whether it was found.
func fragmentFor(set map[string]string, formType string) (string, bool) {
	if f, ok := set[formType]; ok {
		return f, true
	}
	return set[genericKey], false
}

// synthesize combines namespace and body fragments under the common envelope.
// The result depends only on formType.
func synthesize(formType string) (xml string, known bool) {
	ns, nsKnown := fragmentFor(namespaceFragments, formType)
	body, bodyKnown := fragmentFor(bodyFragments, formType)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<Declaration ` + ns + ` form="` + escape(formType) + `" taxYear="{{meta.taxYear}}">` + "\n")
	b.WriteString("  <Header>\n")
	b.WriteString("    <SubjectRef>{{meta.subjectRef}}</SubjectRef>\n")
	b.WriteString("    <LegalForm>{{meta.legalForm}}</LegalForm>\n")
	b.WriteString("    <Jurisdiction>{{meta.jurisdiction}}</Jurisdiction>\n")
	b.WriteString("    <SubmissionRef>{{meta.submissionId}}</SubmissionRef>\n")
	b.WriteString("  </Header>\n")
	b.WriteString(body + "\n")
	b.WriteString("</Declaration>\n")
	return b.String(), nsKnown && bodyKnown
}
