package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"company_spider/internal/models"
)

func companyBlock(class, href, header, city string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="%s">`, class)
	b.WriteString(`<div class="header">`)
	if href != "" {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, href, header)
	} else {
		b.WriteString(header)
	}
	b.WriteString(`</div>`)
	if city != "" {
		fmt.Fprintf(&b, `<span itemprop="location"><span itemprop="name">%s</span></span>`, city)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func listingPage(blocks ...string) []byte {
	return []byte("<html><body><div class=\"list\">" + strings.Join(blocks, "\n") + "</div></body></html>")
}

const primaryClass = "page-list-item container job"

func newTestParser() *Parser {
	return New(zerolog.Nop())
}

func TestParseListingPreservesOrder(t *testing.T) {
	body := listingPage(
		companyBlock(primaryClass, "https://flagma.kz/737522/", "Shini, ТОО", "Алматы"),
		companyBlock(primaryClass, "https://flagma.kz/100/", "Alpha", "Астана"),
		companyBlock(primaryClass, "https://flagma.kz/200", "Beta, ИП", ""),
	)

	companies, err := newTestParser().ParseListing(body, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.Company{
		{CompanyID: "737522", CompanyName: "Shini", CompanyType: "ТОО", City: "Алматы"},
		{CompanyID: "100", CompanyName: "Alpha", CompanyType: "", City: "Астана"},
		{CompanyID: "200", CompanyName: "Beta", CompanyType: "ИП", City: ""},
	}, companies)
}

func TestParseListingNameAndType(t *testing.T) {
	tests := []struct {
		header   string
		wantName string
		wantType string
	}{
		{"Shini, ТОО", "Shini", "ТОО"},
		{"No comma here", "No comma here", ""},
		{"  Spaced \n  Name ,  АО  ", "Spaced Name", "АО"},
		{"First, Second, Third", "First", "Second, Third"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			body := listingPage(companyBlock(primaryClass, "/1/", tt.header, ""))
			companies, err := newTestParser().ParseListing(body, 1)
			require.NoError(t, err)
			require.Len(t, companies, 1)
			assert.Equal(t, tt.wantName, companies[0].CompanyName)
			assert.Equal(t, tt.wantType, companies[0].CompanyType)
		})
	}
}

func TestParseListingPartialRecords(t *testing.T) {
	body := listingPage(
		// non-numeric id, name present
		companyBlock(primaryClass, "https://flagma.kz/company/abc/", "Gamma", ""),
		// no link at all
		companyBlock(primaryClass, "", "Delta, ТОО", "Шымкент"),
		// id present, empty header text
		companyBlock(primaryClass, "https://flagma.kz/555/", "", ""),
	)

	companies, err := newTestParser().ParseListing(body, 4)
	require.NoError(t, err)
	assert.Equal(t, []models.Company{
		{CompanyName: "Gamma"},
		{CompanyName: "Delta", CompanyType: "ТОО", City: "Шымкент"},
		{CompanyID: "555"},
	}, companies)
}

func TestParseListingDropsBlocksWithoutIDAndName(t *testing.T) {
	body := listingPage(
		companyBlock(primaryClass, "https://flagma.kz/about/", "", "Алматы"),
		`<div class="page-list-item container job"><span>no header</span></div>`,
		companyBlock(primaryClass, "https://flagma.kz/42/", "Kept", ""),
	)

	companies, err := newTestParser().ParseListing(body, 2)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "42", companies[0].CompanyID)
}

func TestParseListingFallbackSelector(t *testing.T) {
	body := listingPage(
		companyBlock("page-list-item", "https://flagma.kz/1/", "One", ""),
		companyBlock("page-list-item premium", "https://flagma.kz/2/", "Two", ""),
	)

	companies, err := newTestParser().ParseListing(body, 1)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, "One", companies[0].CompanyName)
	assert.Equal(t, "Two", companies[1].CompanyName)
}

func TestParseListingEmptyPage(t *testing.T) {
	companies, err := newTestParser().ParseListing([]byte("<html><body><p>nothing</p></body></html>"), 9)
	require.NoError(t, err)
	assert.Empty(t, companies)
}

func TestParseListingReaderDecodesCharset(t *testing.T) {
	// "Шины" in windows-1251
	name := string([]byte{0xd8, 0xe8, 0xed, 0xfb})
	body := `<html><head><meta charset="windows-1251"></head><body>` +
		companyBlock(primaryClass, "/77/", name, "") + `</body></html>`

	companies, err := newTestParser().ParseListingReader(strings.NewReader(body), "text/html; charset=windows-1251", 1)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "Шины", companies[0].CompanyName)
	assert.Equal(t, "77", companies[0].CompanyID)
}

func TestDetectPageCount(t *testing.T) {
	body := []byte(`<ul class="pagination">
		<li class="page"><a href="/page-2/">2</a></li>
		<li class="page notactive"><span> 57 </span></li>
	</ul>`)

	count, err := DetectPageCount(body)
	require.NoError(t, err)
	assert.Equal(t, 57, count)
}

func TestDetectPageCountUpperBound(t *testing.T) {
	count, err := DetectPageCount([]byte(fmt.Sprintf(`<li class="page notactive"><span>%d</span></li>`, MaxPageCount)))
	require.NoError(t, err)
	assert.Equal(t, MaxPageCount, count)

	_, err = DetectPageCount([]byte(fmt.Sprintf(`<li class="page notactive"><span>%d</span></li>`, MaxPageCount+1)))
	assert.ErrorIs(t, err, ErrPageCountInvalid)
}

func TestDetectPageCountFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing marker", `<ul><li class="page"><span>3</span></li></ul>`, ErrPageCountNotFound},
		{"marker without span", `<ul><li class="page notactive">3</li></ul>`, ErrPageCountNotFound},
		{"non numeric", `<ul><li class="page notactive"><span>…</span></li></ul>`, ErrPageCountInvalid},
		{"negative", `<ul><li class="page notactive"><span>-2</span></li></ul>`, ErrPageCountInvalid},
		{"garbled huge", `<ul><li class="page notactive"><span>999999999999999</span></li></ul>`, ErrPageCountInvalid},
		{"overflows int", `<ul><li class="page notactive"><span>99999999999999999999999</span></li></ul>`, ErrPageCountInvalid},
		{"empty document", ``, ErrPageCountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DetectPageCount([]byte(tt.body))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
