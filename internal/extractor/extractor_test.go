package extractor

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"form990/internal/models"
	"form990/internal/schema"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()

	e, err := New(schema.MustDefault(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return e
}

func contractorXML(n int) string {
	var sb strings.Builder

	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, `
      <ContractorCompensationGrp>
        <ContractorName><BusinessName><BusinessNameLine1Txt>Vendor %d LLC</BusinessNameLine1Txt></BusinessName></ContractorName>
        <ContractorAddress><USAddress>
          <AddressLine1Txt>%d Main St</AddressLine1Txt>
          <CityNm>Springfield</CityNm>
          <StateAbbreviationCd>IL</StateAbbreviationCd>
          <ZIPCd>62701</ZIPCd>
        </USAddress></ContractorAddress>
        <ServicesDesc>Consulting %d</ServicesDesc>
        <CompensationAmt>%d00000</CompensationAmt>
      </ContractorCompensationGrp>`, i, i, i, i)
	}

	return sb.String()
}

func filing(irs990 string) []byte {
	return []byte(`<?xml version="1.0" encoding="utf-8"?>
<Return xmlns="http://www.irs.gov/efile" returnVersion="2022v5.0">
  <ReturnHeader>
    <TaxYr>2022</TaxYr>
    <Filer>
      <EIN>131624241</EIN>
      <BusinessName>
        <BusinessNameLine1Txt>  Example Foundation Inc  </BusinessNameLine1Txt>
      </BusinessName>
    </Filer>
  </ReturnHeader>
  <ReturnData>
    <IRS990>` + irs990 + `
    </IRS990>
  </ReturnData>
</Return>`)
}

func TestExtract_KeySetIsFixed(t *testing.T) {
	e := newTestExtractor(t)
	want := strings.Join(e.Keys(), ",")

	docs := map[string][]byte{
		"header only":    filing(""),
		"with revenue":   filing(`<TotalRevenueGrp><TotalRevenueColumnAmt>1200</TotalRevenueColumnAmt></TotalRevenueGrp>`),
		"7 contractors":  filing(contractorXML(7)),
		"1 contractor":   filing(contractorXML(1)),
		"unknown extras": filing(`<SomethingNew>1</SomethingNew>`),
	}

	for name, doc := range docs {
		rec, err := e.Extract(doc)
		if err != nil {
			t.Fatalf("%s: Extract failed: %v", name, err)
		}

		if got := strings.Join(rec.Keys(), ","); got != want {
			t.Errorf("%s: key order differs from schema order", name)
		}
	}
}

func TestExtract_HeaderFields(t *testing.T) {
	e := newTestExtractor(t)

	rec, err := e.Extract(filing(`<MissionDesc>
        Feed people.
      </MissionDesc>`))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	checks := map[string]string{
		"Ein":                  "131624241",
		"OrganizationName":     "Example Foundation Inc",
		"TaxYr":                "2022",
		"MissionDesc":          "Feed people.",
		"WebsiteAddressTxt":    "",
		"TotalRevenue":         "",
		"Contractor_1_Name":    "",
		"Contractor_5_Address": "",
	}

	for key, want := range checks {
		got, ok := rec.Get(key)
		if !ok {
			t.Errorf("Expected key %s to be present", key)
		}

		if got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}
}

func TestExtract_CapsContractorsAtFive(t *testing.T) {
	e := newTestExtractor(t)

	rec, err := e.Extract(filing(contractorXML(7)))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	for i := 1; i <= 5; i++ {
		if got := rec.Value(schema.ContractorKey(i, "Name")); got != fmt.Sprintf("Vendor %d LLC", i) {
			t.Errorf("Contractor %d name: got %q", i, got)
		}
	}

	for _, k := range rec.Keys() {
		if strings.HasPrefix(k, "Contractor_6_") || strings.HasPrefix(k, "Contractor_7_") {
			t.Errorf("Unexpected key %s", k)
		}
	}
}

func TestExtract_PadsMissingContractors(t *testing.T) {
	e := newTestExtractor(t)

	rec, err := e.Extract(filing(contractorXML(2)))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := rec.Value("Contractor_2_Services"); got != "Consulting 2" {
		t.Errorf("Expected Consulting 2, got %q", got)
	}

	if got := rec.Value("Contractor_1_Compensation"); got != "100000" {
		t.Errorf("Expected 100000, got %q", got)
	}

	if got := rec.Value("Contractor_1_Address"); got != "1 Main St, Springfield, IL, 62701" {
		t.Errorf("Unexpected address %q", got)
	}

	for i := 3; i <= 5; i++ {
		for _, part := range schema.ContractorParts {
			key := schema.ContractorKey(i, part)

			v, ok := rec.Get(key)
			if !ok || v != "" {
				t.Errorf("Expected %s present and empty, got %q (present=%v)", key, v, ok)
			}
		}
	}
}

func TestExtract_ContractorNameAndAddressFallbacks(t *testing.T) {
	e := newTestExtractor(t)

	doc := filing(`
      <ContractorCompensationGrp>
        <ContractorName><PersonNm>Jane Roe</PersonNm></ContractorName>
        <ContractorAddress><USAddress>
          <AddressLine1Txt>9 Elm Rd</AddressLine1Txt>
          <CityNm></CityNm>
          <ZIPCd>10001</ZIPCd>
        </USAddress></ContractorAddress>
        <ServicesDesc>Legal</ServicesDesc>
        <CompensationAmt>5</CompensationAmt>
      </ContractorCompensationGrp>
      <ContractorCompensationGrp>
        <ContractorName><BusinessName><BusinessNameLine1Txt>Overseas Ltd</BusinessNameLine1Txt></BusinessName></ContractorName>
        <ContractorAddress><ForeignAddress>
          <AddressLine1Txt>1 High St</AddressLine1Txt>
          <CityNm>London</CityNm>
          <ForeignPostalCd>EC1A 1BB</ForeignPostalCd>
        </ForeignAddress></ContractorAddress>
      </ContractorCompensationGrp>`)

	rec, err := e.Extract(doc)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := rec.Value("Contractor_1_Name"); got != "Jane Roe" {
		t.Errorf("Expected person name, got %q", got)
	}

	if got := rec.Value("Contractor_1_Address"); got != "9 Elm Rd, 10001" {
		t.Errorf("Expected empty components omitted, got %q", got)
	}

	if got := rec.Value("Contractor_2_Name"); got != "Overseas Ltd" {
		t.Errorf("Expected business name, got %q", got)
	}

	if got := rec.Value("Contractor_2_Address"); got != "1 High St, London, EC1A 1BB" {
		t.Errorf("Expected foreign address, got %q", got)
	}
}

func TestExtract_SecondCandidateWhenFirstEmpty(t *testing.T) {
	e := newTestExtractor(t)

	rec, err := e.Extract(filing(`
      <RentalIncomeOrLossGrp>
        <RealAmt>   </RealAmt>
        <PersonalAmt>4500</PersonalAmt>
      </RentalIncomeOrLossGrp>`))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := rec.Value("NetRentalIncomeAmt"); got != "4500" {
		t.Errorf("Expected 4500 from second candidate, got %q", got)
	}
}

func TestExtract_FirstCandidateWins(t *testing.T) {
	e := newTestExtractor(t)

	rec, err := e.Extract(filing(`
      <RentalIncomeOrLossGrp>
        <RealAmt>100</RealAmt>
        <PersonalAmt>4500</PersonalAmt>
      </RentalIncomeOrLossGrp>`))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := rec.Value("NetRentalIncomeAmt"); got != "100" {
		t.Errorf("Expected first candidate value 100, got %q", got)
	}
}

func TestExtract_ValuesStayLiteral(t *testing.T) {
	e := newTestExtractor(t)

	rec, err := e.Extract(filing(`<TotalAssetsGrp><BOYAmt>1</BOYAmt><EOYAmt>-00012</EOYAmt></TotalAssetsGrp>`))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := rec.Value("TotalAssetsGrp"); got != "-00012" {
		t.Errorf("Expected literal -00012, got %q", got)
	}
}

func TestExtract_IgnoresOtherNamespaces(t *testing.T) {
	e := newTestExtractor(t)

	doc := []byte(`<Return xmlns="http://www.irs.gov/efile" xmlns:x="urn:other">
  <ReturnHeader><Filer><x:EIN>999</x:EIN><EIN>123</EIN></Filer></ReturnHeader>
</Return>`)

	rec, err := e.Extract(doc)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := rec.Value("Ein"); got != "123" {
		t.Errorf("Expected EIN from the e-file namespace, got %q", got)
	}
}

func TestExtract_RecoversTruncatedDocument(t *testing.T) {
	e := newTestExtractor(t)

	full := string(filing(`<TotalRevenueGrp><TotalRevenueColumnAmt>77</TotalRevenueColumnAmt></TotalRevenueGrp>` + contractorXML(1)))
	truncated := full[:strings.Index(full, "<ServicesDesc>")]

	rec, err := e.Extract([]byte(truncated))
	if err != nil {
		t.Fatalf("Expected lenient extraction, got %v", err)
	}

	if got := rec.Value("TotalRevenue"); got != "77" {
		t.Errorf("Expected 77, got %q", got)
	}

	if got := rec.Value("Contractor_1_Name"); got != "Vendor 1 LLC" {
		t.Errorf("Expected partial contractor, got %q", got)
	}

	if got := rec.Value("Contractor_1_Services"); got != "" {
		t.Errorf("Expected empty services, got %q", got)
	}
}

func TestExtract_Failures(t *testing.T) {
	e := newTestExtractor(t)

	tests := map[string][]byte{
		"empty":      nil,
		"plain text": []byte("Service Unavailable"),
		"no values":  []byte(`<Return xmlns="http://www.irs.gov/efile"><ReturnHeader/></Return>`),
		"html page":  []byte(`<html><body><h1>Not Found</h1></body></html>`),
	}

	for name, raw := range tests {
		rec, err := e.Extract(raw)
		if !errors.Is(err, models.ErrExtractionFailed) {
			t.Errorf("%s: expected ErrExtractionFailed, got %v", name, err)
		}

		if rec != nil {
			t.Errorf("%s: expected no record", name)
		}
	}
}

func TestExtract_StrayEndTagKeepsLaterFields(t *testing.T) {
	e := newTestExtractor(t)

	doc := []byte(`<Return xmlns="http://www.irs.gov/efile"><ReturnHeader><Filer><EIN>123456789</EIN></Filerx></ReturnHeader>` +
		`<ReturnData><IRS990><TotalRevenueGrp><TotalRevenueColumnAmt>500</TotalRevenueColumnAmt></TotalRevenueGrp></IRS990></ReturnData></Return>`)

	rec, err := e.Extract(doc)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := rec.Value("Ein"); got != "123456789" {
		t.Errorf("Expected EIN 123456789, got %q", got)
	}

	if got := rec.Value("TotalRevenue"); got != "500" {
		t.Errorf("Expected 500 after the stray end tag, got %q", got)
	}
}

func TestExtract_BareLessThanInText(t *testing.T) {
	e := newTestExtractor(t)

	rec, err := e.Extract(filing(`<MissionDesc>A < B Org</MissionDesc>
      <TotalRevenueGrp><TotalRevenueColumnAmt>900</TotalRevenueColumnAmt></TotalRevenueGrp>` + contractorXML(1)))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := rec.Value("MissionDesc"); got != "A < B Org" {
		t.Errorf("Expected literal mission text, got %q", got)
	}

	if got := rec.Value("TotalRevenue"); got != "900" {
		t.Errorf("Expected 900 after the bare '<', got %q", got)
	}

	if got := rec.Value("Contractor_1_Services"); got != "Consulting 1" {
		t.Errorf("Expected contractor services, got %q", got)
	}
}

func TestExtract_PrefixedFiling(t *testing.T) {
	e := newTestExtractor(t)

	doc := []byte(`<efile:Return xmlns:efile="http://www.irs.gov/efile">
  <efile:ReturnHeader><efile:TaxYr>2021</efile:TaxYr>
    <efile:Filer><efile:EIN>987654321</efile:EIN></efile:Filer>
  </efile:ReturnHeader>
</efile:Return>`)

	rec, err := e.Extract(doc)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := rec.Value("Ein"); got != "987654321" {
		t.Errorf("Expected EIN under a custom prefix, got %q", got)
	}

	if got := rec.Value("TaxYr"); got != "2021" {
		t.Errorf("Expected TaxYr 2021, got %q", got)
	}
}

func TestParse_EndTagClosesMatchingAncestor(t *testing.T) {
	doc, err := Parse([]byte(`<r><a><b>1</a><c>2</c></r>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(doc.Root.Children) != 2 {
		t.Fatalf("Expected a and c under the root, got %d children", len(doc.Root.Children))
	}

	if got := doc.Root.Children[1].Name.Local; got != "c" {
		t.Errorf("Expected c as second child, got %s", got)
	}

	if doc.Size() != 4 {
		t.Errorf("Expected 4 elements, got %d", doc.Size())
	}
}

func TestParse_CommentsAndCDATAKeepMarkup(t *testing.T) {
	doc, err := Parse([]byte(`<r><!-- a < b --><a><![CDATA[x < y]]></a></r>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := doc.Root.Children[0].Text(); got != "x < y" {
		t.Errorf("Expected CDATA text, got %q", got)
	}

	if doc.Recovered != nil {
		t.Errorf("Expected a clean parse, got %v", doc.Recovered)
	}
}

func TestEscapeStrayLT(t *testing.T) {
	tests := map[string]string{
		"<a>1 < 2</a>":         "<a>1 &lt; 2</a>",
		"<a>x<</a>":            "<a>x&lt;</a>",
		"<a/>":                 "<a/>",
		"<?xml?><a>b</a>":      "<?xml?><a>b</a>",
		"<!-- < --><a/>":       "<!-- < --><a/>",
		"<a><![CDATA[<]]></a>": "<a><![CDATA[<]]></a>",
		"tail <":               "tail &lt;",
	}

	for in, want := range tests {
		if got := string(escapeStrayLT([]byte(in))); got != want {
			t.Errorf("escapeStrayLT(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFind_DocumentOrder(t *testing.T) {
	doc, err := Parse([]byte(`<r xmlns="urn:t"><a><b>1</b><a><b>2</b></a><b>3</b></a></r>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ns := map[string]string{"t": "urn:t"}

	nodes := Find(doc.Root, schema.MustCompilePath(".//t:a/t:b", ns))

	var got []string
	for _, n := range nodes {
		got = append(got, n.Text())
	}

	if strings.Join(got, ",") != "1,2,3" {
		t.Errorf("Expected document order 1,2,3, got %v", got)
	}

	if txt := TextOf(doc.Root, schema.MustCompilePath(".//t:a/t:b", ns)); txt != "1" {
		t.Errorf("Expected first match 1, got %q", txt)
	}

	if n := First(doc.Root, schema.MustCompilePath("./t:b", ns)); n != nil {
		t.Errorf("Expected no direct child b of root, got %v", n.Name)
	}
}

func TestTextOf_Attribute(t *testing.T) {
	doc, err := Parse([]byte(`<r xmlns="urn:t" version="2022v5.0"><a/></r>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	p := schema.MustCompilePath("/t:r/@version", map[string]string{"t": "urn:t"})
	if got := TextOf(doc.Root.Children[0], p); got != "2022v5.0" {
		t.Errorf("Expected attribute value, got %q", got)
	}
}
