// Package parser reads company listing pages of the directory site.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"company_spider/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const (
	primaryBlockSelector  = "div.page-list-item.container.job"
	fallbackBlockSelector = "div.page-list-item"
	headerSelector        = "div.header"
	locationSelector      = `span[itemprop="location"]`
	cityNameSelector      = `span[itemprop="name"]`
	pageCountSelector     = "li.page.notactive"

	// MaxPageCount bounds a detected page count. Listings are far below it;
	// anything larger is a garbled pagination marker.
	MaxPageCount = 10000
)

var (
	ErrMalformedDocument = errors.New("malformed document")
	ErrPageCountNotFound = errors.New("page count element not found")
	ErrPageCountInvalid  = errors.New("invalid page count")
)

type Parser struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Parser {
	return &Parser{log: log}
}

// ParseListing extracts company records from a UTF-8 listing page.
// The page number is used for diagnostics only.
func (p *Parser) ParseListing(body []byte, page int) ([]models.Company, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return p.parseDocument(doc, page), nil
}

// ParseListingReader is ParseListing for input in an arbitrary charset,
// e.g. a listing page saved to disk.
func (p *Parser) ParseListingReader(r io.Reader, contentType string, page int) ([]models.Company, error) {
	utf8Reader, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	doc, err := goquery.NewDocumentFromReader(utf8Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return p.parseDocument(doc, page), nil
}

func (p *Parser) parseDocument(doc *goquery.Document, page int) []models.Company {
	blocks := doc.Find(primaryBlockSelector)
	if blocks.Length() == 0 {
		p.log.Warn().Int("page", page).Msg("Primary selector failed, trying fallback selector.")
		blocks = doc.Find(fallbackBlockSelector)
	}

	companies := make([]models.Company, 0, blocks.Length())
	blocks.Each(func(_ int, block *goquery.Selection) {
		company := models.Company{
			CompanyID: extractCompanyID(block),
			City:      extractCity(block),
		}
		company.CompanyName, company.CompanyType = extractNameAndType(block)

		if !company.Valid() {
			p.log.Warn().Int("page", page).Msg("Skipped company entry with no ID or name.")
			return
		}
		companies = append(companies, company)
	})

	p.log.Info().Int("page", page).Int("count", len(companies)).Msg("Parsed companies from page.")
	return companies
}

// extractCompanyID reads the trailing numeric path segment of the header link:
// https://flagma.kz/737522/ -> 737522.
func extractCompanyID(block *goquery.Selection) string {
	link := block.Find(headerSelector).First().Find("a[href]").First()
	href, ok := link.Attr("href")
	if !ok {
		return ""
	}

	href = strings.TrimRight(strings.TrimSpace(href), "/")
	id := href[strings.LastIndex(href, "/")+1:]
	if !isDigits(id) {
		return ""
	}
	return id
}

// extractNameAndType splits "Shini, ТОО" into the name and the legal form.
func extractNameAndType(block *goquery.Selection) (name, companyType string) {
	header := block.Find(headerSelector).First()
	if header.Length() == 0 {
		return "", ""
	}

	text := cleanText(header.Text())
	name, companyType, found := strings.Cut(text, ",")
	if !found {
		return text, ""
	}
	return strings.TrimSpace(name), strings.TrimSpace(companyType)
}

func extractCity(block *goquery.Selection) string {
	location := block.Find(locationSelector).First()
	if location.Length() == 0 {
		return ""
	}
	return cleanText(location.Find(cityNameSelector).First().Text())
}

// DetectPageCount reads the total number of listing pages of a category.
func DetectPageCount(body []byte) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	marker := doc.Find(pageCountSelector).First()
	if marker.Length() == 0 {
		return 0, ErrPageCountNotFound
	}
	span := marker.Find("span").First()
	if span.Length() == 0 {
		return 0, ErrPageCountNotFound
	}

	text := strings.TrimSpace(span.Text())
	count, err := strconv.Atoi(text)
	if err != nil || count < 0 || count > MaxPageCount {
		return 0, fmt.Errorf("%w: %q", ErrPageCountInvalid, text)
	}
	return count, nil
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
