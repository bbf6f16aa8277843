package cli

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"form990/internal/models"
)

const sampleFiling = `<?xml version="1.0" encoding="utf-8"?>
<Return xmlns="http://www.irs.gov/efile">
  <ReturnHeader>
    <TaxYr>2022</TaxYr>
    <Filer>
      <EIN>123456789</EIN>
      <BusinessName><BusinessNameLine1Txt>Example Foundation</BusinessNameLine1Txt></BusinessName>
    </Filer>
  </ReturnHeader>
  <ReturnData><IRS990><MissionDesc>Helping | people</MissionDesc></IRS990></ReturnData>
</Return>`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := cmd.Execute()

	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	return path
}

// catalogConfig starts a fake catalog that knows EIN 123456789 and writes a
// config file pointing at it.
func catalogConfig(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/organizations/123456789" {
			fmt.Fprint(w, `<a href="/download-xml?object_id=202301">x</a>`)

			return
		}

		if r.URL.Query().Get("object_id") == "202301" {
			fmt.Fprint(w, sampleFiling)

			return
		}

		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	return writeFile(t, "config.yaml", "catalog:\n  base_url: \""+srv.URL+"\"\n")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}

	if out != "form990 "+Version+"\n" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema")
	if err != nil {
		t.Fatalf("schema failed: %v", err)
	}

	for _, want := range []string{"990-efile-v1", "| OrganizationName", "Up to 5 contractors"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output", want)
		}
	}

	dump, err := execute(t, "schema", "--dump")
	if err != nil {
		t.Fatalf("schema --dump failed: %v", err)
	}

	if !strings.Contains(dump, "namespace:") || !strings.Contains(dump, "www.irs.gov/efile") {
		t.Errorf("Expected YAML dump, got %q", dump[:min(len(dump), 200)])
	}
}

func TestExtractCommand(t *testing.T) {
	path := writeFile(t, "filing.xml", sampleFiling)

	out, err := execute(t, "extract", path)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	if !strings.Contains(out, "Example Foundation") {
		t.Errorf("Expected organization name in output:\n%s", out)
	}

	if !strings.Contains(out, `Helping \| people`) {
		t.Errorf("Expected escaped pipe in output:\n%s", out)
	}

	if strings.Contains(out, "Contractor_1_Name") {
		t.Error("Empty fields should be hidden without --all")
	}

	all, err := execute(t, "extract", "--all", path)
	if err != nil {
		t.Fatalf("extract --all failed: %v", err)
	}

	if !strings.Contains(all, "Contractor_1_Name") {
		t.Error("Expected empty fields with --all")
	}
}

func TestExtractCommand_NotXML(t *testing.T) {
	path := writeFile(t, "filing.xml", "not a filing")

	if _, err := execute(t, "extract", path); !errors.Is(err, models.ErrExtractionFailed) {
		t.Errorf("Expected ErrExtractionFailed, got %v", err)
	}
}

func TestResolveCommand(t *testing.T) {
	cfgPath := catalogConfig(t)

	out, err := execute(t, "--config", cfgPath, "resolve", "12-3456789", "2022")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if !strings.Contains(out, "Handle:   202301") {
		t.Errorf("Unexpected output:\n%s", out)
	}

	if _, err := execute(t, "--config", cfgPath, "resolve", "999999999", "2022"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRunCommand(t *testing.T) {
	cfgPath := catalogConfig(t)
	input := writeFile(t, "targets.csv", "ein,year\n123456789,2022\n999999999,2022\n")
	output := filepath.Join(t.TempDir(), "extract.csv")

	out, err := execute(t, "--config", cfgPath, "run", input, "-o", output)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "] Success: EIN 123456789, Year 2022") {
		t.Errorf("Expected success progress line:\n%s", out)
	}

	if !strings.Contains(out, "[100%]") {
		t.Errorf("Expected a completed progress line:\n%s", out)
	}

	if !strings.Contains(out, "Wrote 1 rows to "+output) {
		t.Errorf("Expected write confirmation:\n%s", out)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(string(data), "Ein,OrganizationName,Contractor_1_Address") {
		t.Errorf("Unexpected header: %q", strings.SplitN(string(data), "\n", 2)[0])
	}
}

func TestRunCommand_Failures(t *testing.T) {
	cfgPath := catalogConfig(t)

	empty := writeFile(t, "targets.csv", "ein,year\n999999999,2022\n")
	out, err := execute(t, "--config", cfgPath, "run", empty, "-o", filepath.Join(t.TempDir(), "x.csv"))

	if !errors.Is(err, models.ErrEmptyResult) {
		t.Errorf("Expected ErrEmptyResult, got %v", err)
	}

	if !strings.Contains(out, "no data could be extracted") {
		t.Errorf("Expected empty result message:\n%s", out)
	}

	tooMany := writeFile(t, "many.csv", "ein,year\n1,2022\n2,2022\n3,2022\n")
	if _, err := execute(t, "--config", cfgPath, "run", tooMany, "--max-rows", "2"); !errors.Is(err, models.ErrTooManyRows) {
		t.Errorf("Expected ErrTooManyRows, got %v", err)
	}

	if _, err := execute(t, "--config", cfgPath, "run", empty, "--format", "json"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestProgressLine(t *testing.T) {
	evt := models.Event{Message: "Success: EIN 1, Year 2022", Completed: 2, Total: 5}

	if got := ProgressLine(evt); got != "[ 40%] Success: EIN 1, Year 2022" {
		t.Errorf("Unexpected progress line: %q", got)
	}
}
