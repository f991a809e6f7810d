package xslt_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/midbel/codecs/xml"

	"github.com/xcential/xslt"
)

const sheetHeader = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">` +
	`<xsl:output omit-xml-declaration="yes"/>`

type TestCase struct {
	Name      string
	Transform string
	Input     string
	Params    map[string]any
	Options   *xslt.Options
	Want      string
	Failed    bool
}

func runTests(t *testing.T, tests []TestCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			got, err := execute(tt)
			if err != nil {
				if tt.Failed {
					return
				}
				t.Errorf("error executing transform: %s", err)
				return
			}
			if tt.Failed {
				t.Errorf("expected error but transformation pass!")
				return
			}
			if got != tt.Want {
				t.Logf("want: %s", tt.Want)
				t.Logf("got : %s", got)
				t.Errorf("results mismatched")
			}
		})
	}
}

func execute(tt TestCase) (string, error) {
	doc, err := xml.ParseString(tt.Input)
	if err != nil {
		return "", err
	}
	transform, err := xml.ParseString(sheetHeader + tt.Transform + `</xsl:stylesheet>`)
	if err != nil {
		return "", err
	}
	return xslt.Process(context.Background(), doc, transform, tt.Params, tt.Options)
}

func TestIdentity(t *testing.T) {
	tests := []TestCase{
		{
			Name:      "copy-of/root",
			Transform: `<xsl:template match="/"><xsl:copy-of select="*"/></xsl:template>`,
			Input:     `<a><b x="1"/></a>`,
			Want:      `<a><b x="1"/></a>`,
		},
		{
			Name: "copy/shallow",
			Transform: `<xsl:template match="/"><xsl:for-each select="a/b">` +
				`<xsl:copy><in/></xsl:copy></xsl:for-each></xsl:template>`,
			Input: `<a><b x="1"><skip/></b></a>`,
			Want:  `<b><in/></b>`,
		},
	}
	runTests(t, tests)
}

func TestModes(t *testing.T) {
	tests := []TestCase{
		{
			Name: "modes/disjoint",
			Transform: `<xsl:template match="/">` +
				`<xsl:apply-templates select="r/item"/>` +
				`<xsl:apply-templates select="r/item" mode="x"/>` +
				`</xsl:template>` +
				`<xsl:template match="item" mode="x">X:<xsl:value-of select="@id"/></xsl:template>` +
				`<xsl:template match="item">id=<xsl:value-of select="@id"/></xsl:template>`,
			Input: `<r><item id="1"/><item id="2"/></r>`,
			Want:  `id=1id=2X:1X:2`,
		},
		{
			Name: "modes/unmatched-text-copied",
			Transform: `<xsl:template match="/"><xsl:apply-templates select="r/node()"/></xsl:template>` +
				`<xsl:template match="item">[i]</xsl:template>`,
			Input: `<r>left<item/>right</r>`,
			Want:  `left[i]right`,
		},
	}
	runTests(t, tests)
}

func TestForEach(t *testing.T) {
	tests := []TestCase{
		{
			Name: "foreach/sort-number-descending",
			Transform: `<xsl:template match="/"><xsl:for-each select="r/n">` +
				`<xsl:sort select="." data-type="number" order="descending"/>` +
				`<v><xsl:value-of select="."/></v></xsl:for-each></xsl:template>`,
			Input: `<r><n>10</n><n>2</n><n>30</n></r>`,
			Want:  `<v>30</v><v>10</v><v>2</v>`,
		},
		{
			Name: "foreach/sort-text-ascending",
			Transform: `<xsl:template match="/"><xsl:for-each select="r/n">` +
				`<xsl:sort select="."/>` +
				`<xsl:value-of select="."/></xsl:for-each></xsl:template>`,
			Input: `<r><n>b</n><n>c</n><n>a</n></r>`,
			Want:  `abc`,
		},
		{
			Name: "foreach/position",
			Transform: `<xsl:template match="/"><xsl:for-each select="r/n">` +
				`<xsl:value-of select="position()"/></xsl:for-each></xsl:template>`,
			Input: `<r><n/><n/><n/></r>`,
			Want:  `123`,
		},
	}
	runTests(t, tests)
}

func TestAttributeValueTemplates(t *testing.T) {
	tests := []TestCase{
		{
			Name: "avt/literal-element",
			Transform: `<xsl:template match="/"><xsl:for-each select="r">` +
				`<e a="pre-{@x}-post"/></xsl:for-each></xsl:template>`,
			Input: `<r x="7"/>`,
			Want:  `<e a="pre-7-post"/>`,
		},
		{
			Name: "avt/escaped-braces",
			Transform: `<xsl:template match="/"><xsl:for-each select="r">` +
				`<e a="{{@x}}"/></xsl:for-each></xsl:template>`,
			Input: `<r x="7"/>`,
			Want:  `<e a="{@x}"/>`,
		},
	}
	runTests(t, tests)
}

func TestCallTemplate(t *testing.T) {
	sum := `<xsl:template match="/">` +
		`<xsl:call-template name="sum"><xsl:with-param name="n" select="5"/></xsl:call-template>` +
		`</xsl:template>` +
		`<xsl:template name="sum">` +
		`<xsl:param name="n"/>` +
		`<xsl:param name="acc" select="0"/>` +
		`<xsl:choose>` +
		`<xsl:when test="$n = 0"><xsl:value-of select="$acc"/></xsl:when>` +
		`<xsl:otherwise>` +
		`<xsl:call-template name="sum">` +
		`<xsl:with-param name="n" select="$n - 1"/>` +
		`<xsl:with-param name="acc" select="$acc + $n"/>` +
		`</xsl:call-template>` +
		`</xsl:otherwise>` +
		`</xsl:choose>` +
		`</xsl:template>`
	tests := []TestCase{
		{
			Name:      "call-template/recursive-sum",
			Transform: sum,
			Input:     `<r v="5"/>`,
			Want:      `15`,
		},
		{
			Name:      "call-template/not-found",
			Transform: `<xsl:template match="/"><xsl:call-template name="nope"/></xsl:template>`,
			Input:     `<r/>`,
			Failed:    true,
		},
	}
	runTests(t, tests)
}

func TestFunctions(t *testing.T) {
	tests := []TestCase{
		{
			Name: "format-number/pattern",
			Transform: `<xsl:template match="/">` +
				`<xsl:value-of select="format-number(-1234.5, '#,##0.00;(#,##0.00)')"/>` +
				`</xsl:template>`,
			Input: `<r/>`,
			Want:  `(1,234.50)`,
		},
		{
			Name: "format-number/decimal-format",
			Transform: `<xsl:decimal-format name="eu" decimal-separator="," grouping-separator="."/>` +
				`<xsl:template match="/">` +
				`<xsl:value-of select="format-number(1234.5, '#.##0,00', 'eu')"/>` +
				`</xsl:template>`,
			Input: `<r/>`,
			Want:  `1.234,50`,
		},
		{
			Name: "upper-lower",
			Transform: `<xsl:template match="/">` +
				`<xsl:value-of select="upper-case('go')"/>-<xsl:value-of select="lower-case('GO')"/>` +
				`</xsl:template>`,
			Input: `<r/>`,
			Want:  `GO-go`,
		},
		{
			Name: "replace-matches",
			Transform: `<xsl:template match="/">` +
				`<xsl:value-of select="replace('a-b-c', '-', '+')"/>:<xsl:value-of select="matches('abc', '^a')"/>` +
				`</xsl:template>`,
			Input: `<r/>`,
			Want:  `a+b+c:true`,
		},
	}
	runTests(t, tests)
}

func TestGenerateIdStable(t *testing.T) {
	tt := TestCase{
		Transform: `<xsl:template match="/">` +
			`<xsl:value-of select="generate-id(r)"/>:<xsl:value-of select="generate-id(r)"/>` +
			`</xsl:template>`,
		Input: `<r/>`,
	}
	got, err := execute(tt)
	if err != nil {
		t.Fatalf("error executing transform: %s", err)
	}
	first, second, ok := strings.Cut(got, ":")
	if !ok {
		t.Fatalf("unexpected output %q", got)
	}
	if first != second {
		t.Errorf("generate-id not stable within one run: %q vs %q", first, second)
	}
	if len(first) != 12 {
		t.Errorf("expected a 12 hex digit identifier, got %q", first)
	}
}

func TestParams(t *testing.T) {
	tests := []TestCase{
		{
			Name: "param/from-caller",
			Transform: `<xsl:param name="greeting" select="'missed'"/>` +
				`<xsl:template match="/"><xsl:value-of select="$greeting"/></xsl:template>`,
			Input:  `<r/>`,
			Params: map[string]any{"greeting": "hello"},
			Want:   `hello`,
		},
		{
			Name: "param/default",
			Transform: `<xsl:param name="greeting" select="'dflt'"/>` +
				`<xsl:template match="/"><xsl:value-of select="$greeting"/></xsl:template>`,
			Input: `<r/>`,
			Want:  `dflt`,
		},
		{
			Name: "variable/shadowing",
			Transform: `<xsl:variable name="v" select="'outer'"/>` +
				`<xsl:template match="/">` +
				`<xsl:variable name="v" select="'inner'"/>` +
				`<xsl:value-of select="$v"/>` +
				`</xsl:template>`,
			Input: `<r/>`,
			Want:  `inner`,
		},
	}
	runTests(t, tests)
}

func TestCustomFunctions(t *testing.T) {
	transform := `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform" xmlns:my="urn:test">` +
		`<xsl:output omit-xml-declaration="yes"/>` +
		`<xsl:template match="/"><xsl:value-of select="my:shout('hey')"/></xsl:template>` +
		`</xsl:stylesheet>`
	doc, err := xml.ParseString(`<r/>`)
	if err != nil {
		t.Fatal(err)
	}
	sheet, err := xml.ParseString(transform)
	if err != nil {
		t.Fatal(err)
	}
	opts := xslt.Options{
		CustomFunctions: map[string]map[string]xslt.CustomFunc{
			"urn:test": {
				"shout": func(args ...string) (string, error) {
					if len(args) != 1 {
						return "", fmt.Errorf("one argument expected")
					}
					return strings.ToUpper(args[0]) + "!", nil
				},
			},
		},
	}
	got, err := xslt.Process(context.Background(), doc, sheet, nil, &opts)
	if err != nil {
		t.Fatalf("error executing transform: %s", err)
	}
	if got != "HEY!" {
		t.Errorf("want %q, got %q", "HEY!", got)
	}
}

func TestIncludes(t *testing.T) {
	library := `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">` +
		`<xsl:template name="hello">hi from lib</xsl:template>` +
		`<xsl:template match="item">LIB</xsl:template>` +
		`</xsl:stylesheet>`
	fetcher := xslt.FetcherFunc(func(_ context.Context, url string) (string, error) {
		if url == "lib.xsl" {
			return library, nil
		}
		return "", fmt.Errorf("%s: no such document", url)
	})
	tests := []TestCase{
		{
			Name: "include/named-template",
			Transform: `<xsl:include href="lib.xsl"/>` +
				`<xsl:template match="/"><xsl:call-template name="hello"/></xsl:template>`,
			Input:   `<r/>`,
			Options: &xslt.Options{Fetcher: fetcher},
			Want:    `hi from lib`,
		},
		{
			Name: "import/principal-wins",
			Transform: `<xsl:import href="lib.xsl"/>` +
				`<xsl:template match="/"><xsl:apply-templates select="r/item"/></xsl:template>` +
				`<xsl:template match="item">MAIN</xsl:template>`,
			Input:   `<r><item/></r>`,
			Options: &xslt.Options{Fetcher: fetcher},
			Want:    `MAIN`,
		},
		{
			Name: "import/fallback-to-imported",
			Transform: `<xsl:import href="lib.xsl"/>` +
				`<xsl:template match="/"><xsl:apply-templates select="r/item"/></xsl:template>`,
			Input:   `<r><item/></r>`,
			Options: &xslt.Options{Fetcher: fetcher},
			Want:    `LIB`,
		},
		{
			Name: "include/missing-swallowed",
			Transform: `<xsl:include href="gone.xsl"/>` +
				`<xsl:template match="/">still here</xsl:template>`,
			Input:   `<r/>`,
			Options: &xslt.Options{Fetcher: fetcher},
			Want:    `still here`,
		},
	}
	runTests(t, tests)
}

func TestDocumentFunction(t *testing.T) {
	fetcher := xslt.FetcherFunc(func(_ context.Context, url string) (string, error) {
		if url == "other.xml" {
			return `<other ok="yes"/>`, nil
		}
		return "", fmt.Errorf("%s: no such document", url)
	})
	tt := TestCase{
		Transform: `<xsl:template match="/"><xsl:copy-of select="document('other.xml')"/></xsl:template>`,
		Input:     `<r/>`,
		Options:   &xslt.Options{Fetcher: fetcher},
		Want:      `<other ok="yes"/>`,
	}
	got, err := execute(tt)
	if err != nil {
		t.Fatalf("error executing transform: %s", err)
	}
	if got != tt.Want {
		t.Errorf("want %q, got %q", tt.Want, got)
	}
}

func TestOutputEscaping(t *testing.T) {
	tests := []TestCase{
		{
			Name: "value-of/escaped",
			Transform: `<xsl:template match="/">` +
				`<xsl:value-of select="'&lt;raw/&gt;'"/>` +
				`</xsl:template>`,
			Input: `<r/>`,
			Want:  `&lt;raw/&gt;`,
		},
		{
			Name: "value-of/disable-output-escaping",
			Transform: `<xsl:template match="/">` +
				`<xsl:value-of select="'&lt;raw/&gt;'" disable-output-escaping="yes"/>` +
				`</xsl:template>`,
			Input: `<r/>`,
			Want:  `<raw/>`,
		},
	}
	runTests(t, tests)
}

func TestWhitespacePolicy(t *testing.T) {
	tests := []TestCase{
		{
			Name: "normalize/default",
			Transform: `<xsl:template match="/">` +
				`<xsl:for-each select="r/t"><xsl:value-of select="."/></xsl:for-each>` +
				`</xsl:template>`,
			Input: `<r><t>hello   world</t></r>`,
			Want:  `hello world`,
		},
		{
			Name: "preserve/listed",
			Transform: `<xsl:preserve-space elements="t"/>` +
				`<xsl:template match="/">` +
				`<xsl:for-each select="r/t"><xsl:value-of select="."/></xsl:for-each>` +
				`</xsl:template>`,
			Input: `<r><t>hello   world</t></r>`,
			Want:  `hello   world`,
		},
	}
	runTests(t, tests)
}

func TestConstructors(t *testing.T) {
	tests := []TestCase{
		{
			Name: "element-attribute",
			Transform: `<xsl:template match="/">` +
				`<xsl:element name="e"><xsl:attribute name="a">v</xsl:attribute>body</xsl:element>` +
				`</xsl:template>`,
			Input: `<r/>`,
			Want:  `<e a="v">body</e>`,
		},
		{
			Name: "comment",
			Transform: `<xsl:template match="/">` +
				`<xsl:comment>note</xsl:comment>` +
				`</xsl:template>`,
			Input: `<r/>`,
			Want:  `<!--note-->`,
		},
		{
			Name: "if/choose",
			Transform: `<xsl:template match="/">` +
				`<xsl:if test="r/@on = 'yes'">ON</xsl:if>` +
				`<xsl:choose>` +
				`<xsl:when test="r/@on = 'no'">NO</xsl:when>` +
				`<xsl:otherwise>OTHER</xsl:otherwise>` +
				`</xsl:choose>` +
				`</xsl:template>`,
			Input: `<r on="yes"/>`,
			Want:  `ONOTHER`,
		},
	}
	runTests(t, tests)
}

func TestFailures(t *testing.T) {
	tests := []TestCase{
		{
			Name:      "unknown-instruction",
			Transform: `<xsl:template match="/"><xsl:frobnicate/></xsl:template>`,
			Input:     `<r/>`,
			Failed:    true,
		},
		{
			Name: "message/terminate",
			Transform: `<xsl:template match="/">` +
				`<xsl:message terminate="yes">stop</xsl:message>` +
				`</xsl:template>`,
			Input:  `<r/>`,
			Failed: true,
		},
	}
	runTests(t, tests)
}

func TestDeclaration(t *testing.T) {
	transform := `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">` +
		`<xsl:template match="/"><xsl:copy-of select="*"/></xsl:template>` +
		`</xsl:stylesheet>`
	doc, err := xml.ParseString(`<a/>`)
	if err != nil {
		t.Fatal(err)
	}
	sheet, err := xml.ParseString(transform)
	if err != nil {
		t.Fatal(err)
	}
	got, err := xslt.Process(context.Background(), doc, sheet, nil, nil)
	if err != nil {
		t.Fatalf("error executing transform: %s", err)
	}
	want := `<?xml version="1.0" encoding="UTF-8"?><a/>`
	if got != want {
		t.Errorf("want %q, got %q", want, got)
	}
}

func TestTransformCallback(t *testing.T) {
	req := xslt.Request{
		Source: `<r><item id="1"/></r>`,
		Stylesheet: sheetHeader +
			`<xsl:template match="/">n=<xsl:value-of select="count(r/item)"/></xsl:template>` +
			`</xsl:stylesheet>`,
	}
	var (
		out     string
		callErr error
	)
	xslt.Transform(context.Background(), req, func(err error, res string) {
		callErr = err
		out = res
	})
	if callErr != nil {
		t.Fatalf("unexpected error: %s", callErr)
	}
	if out != "n=1" {
		t.Errorf("want %q, got %q", "n=1", out)
	}
}
