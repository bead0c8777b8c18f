package models

import "time"

// Company is one company block read from a listing page.
type Company struct {
	CompanyID   string `json:"company_id" bson:"company_id,omitempty"`
	CompanyName string `json:"company_name" bson:"company_name"`
	CompanyType string `json:"company_type" bson:"company_type"`
	City        string `json:"city" bson:"city"`
}

// Valid reports whether the record carries enough to be worth storing.
func (c Company) Valid() bool {
	return c.CompanyID != "" || c.CompanyName != ""
}

// CompanyRow is the stored shape of a company.
type CompanyRow struct {
	Company     `bson:",inline"`
	CategoryURL string    `bson:"category_url"`
	ParsedAt    time.Time `bson:"parsed_at"`
}

type CategoryResult struct {
	MaxPages        int   `json:"max_pages"`
	SuccessfulPages []int `json:"successful_pages"`
	SkippedPages    []int `json:"skipped_pages"`
	TotalCompanies  int   `json:"total_companies"`
}

func NewCategoryResult(maxPages int) CategoryResult {
	return CategoryResult{
		MaxPages:        maxPages,
		SuccessfulPages: []int{},
		SkippedPages:    []int{},
	}
}

type CategorySkips struct {
	MaxPages     int   `json:"max_pages"`
	SkippedPages []int `json:"skipped_pages"`
}

// SkippedPagesReport maps a category URL to the pages that need another pass.
type SkippedPagesReport map[string]CategorySkips

// TotalSkipped counts skipped pages across all categories.
func (r SkippedPagesReport) TotalSkipped() int {
	total := 0
	for _, info := range r {
		total += len(info.SkippedPages)
	}
	return total
}

type PageStatus int

const (
	PageFailed PageStatus = iota
	PageEmpty
	PageScraped
)

func (s PageStatus) String() string {
	switch s {
	case PageEmpty:
		return "empty"
	case PageScraped:
		return "scraped"
	default:
		return "failed"
	}
}

// PageOutcome is the result of scraping a single listing page.
// Count is meaningful only for PageEmpty (always 0) and PageScraped.
type PageOutcome struct {
	Status PageStatus
	Count  int
	Err    error
}

func Failed(err error) PageOutcome {
	return PageOutcome{Status: PageFailed, Err: err}
}

func Scraped(count int) PageOutcome {
	if count == 0 {
		return PageOutcome{Status: PageEmpty}
	}
	return PageOutcome{Status: PageScraped, Count: count}
}

func (o PageOutcome) OK() bool {
	return o.Status != PageFailed
}
