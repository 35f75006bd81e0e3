// Package templates holds the templ components that render the upload form
// and the record table. Run `templ generate` after editing a .templ file.
package templates

import (
	"fmt"
	"net/url"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

const uploadAccept = ".csv,.xlsx," + core.MediaTypeCSV + "," + core.MediaTypeXLSX

// IndexProps feeds the upload form.
type IndexProps struct {
	Error       string
	Action      string
	Code        string
	Details     []string // per-row problems
	MaxUploadMB int64
}

// ViewDataProps feeds the record table.
type ViewDataProps struct {
	Records    []core.Record
	Page       int
	TotalPages int
	Total      int64
	HasPrev    bool
	HasNext    bool
	PrevPage   int
	NextPage   int
	Sort       string // echoed into pagination links
}

func pageURL(page int, sort string) templ.SafeURL {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("sort", sort)
	return templ.SafeURL("/viewData?" + q.Encode())
}

// nextSort is the sort value the name column header toggles to.
func nextSort(sort string) string {
	if sort == core.SortDescendingParam {
		return "name"
	}
	return core.SortDescendingParam
}

func sortIndicator(sort string) string {
	if sort == core.SortDescendingParam {
		return "▼"
	}
	return "▲"
}

func pageLabel(p ViewDataProps) string {
	pages := p.TotalPages
	if pages < 1 {
		pages = 1
	}
	return fmt.Sprintf("Page %d of %d (%d records)", p.Page, pages, p.Total)
}
