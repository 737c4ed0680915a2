// Package feed renders lists of catalog books as JSON, generic XML, Atom and
// RSS 2.0 documents for the read-only syndication API. Output is
// deterministic for a given input; the only moving part is the clock used for
// the feed-level timestamp.
package feed

import (
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"lendinglib/internal/book"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// Title heads both the Atom feed and the RSS channel.
	Title = "Book List from Lending Library"
	// Description is the RSS channel description.
	Description = "A list of books from the Lending Library."

	atomTimeFormat = "2006-01-02T15:04:05Z"
	rssTimeFormat  = "Mon, 02 Jan 2006 15:04:05 +0000"
)

// Feed renders book views into syndication documents. SiteURL is the app
// root; SelfURL is the API URL the feed is served from.
type Feed struct {
	SiteURL string
	SelfURL string
	Now     func() time.Time
}

func New(siteURL, selfURL string) *Feed {
	return &Feed{
		SiteURL: strings.TrimRight(siteURL, "/"),
		SelfURL: selfURL,
		Now:     time.Now,
	}
}

func (f *Feed) now() time.Time {
	return f.Now().UTC()
}

func (f *Feed) bookURL(id string) string {
	return f.SiteURL + "/books/" + id + "/info/"
}

// JSON renders {"Books": [...]} with the views in list order.
func (f *Feed) JSON(views []book.View) ([]byte, error) {
	if views == nil {
		views = []book.View{}
	}
	return json.Marshal(struct {
		Books []book.View
	}{Books: views})
}

// XML renders a generic document: a pluralized root element with one child
// element per object and one grandchild per field. All values are
// stringified: booleans as true/false, absent values as empty elements.
func (f *Feed) XML(model string, views []book.View) ([]byte, error) {
	x := newBuilder()
	x.open(model + "s")
	for _, v := range views {
		x.open(model)
		for _, kv := range viewFields(v) {
			x.leaf(kv.key, kv.value)
		}
		x.close(model)
	}
	x.close(model + "s")
	return x.bytes(), nil
}

// Atom renders an Atom Syndication Format (RFC 4287) feed with one entry per
// book. Entry ids are tag: URIs built from the host, the date the book was
// added and the book's info path.
func (f *Feed) Atom(views []book.View) ([]byte, error) {
	x := newBuilder()
	x.open("feed", attr("xmlns", "http://www.w3.org/2005/Atom"))
	x.leaf("title", Title)
	x.empty("link", attr("href", f.SelfURL), attr("rel", "self"))
	x.leaf("id", f.SiteURL+"/")
	x.leaf("updated", f.now().Format(atomTimeFormat))

	for _, v := range views {
		link := f.bookURL(v.ID)

		x.open("entry")
		x.leaf("title", v.Title)
		x.empty("link", attr("href", link))
		x.leaf("id", tagURI(link, v.DateAdded))
		x.leaf("updated", v.DateAdded.UTC().Format(atomTimeFormat))
		x.leaf("summary", v.Synopsis)
		x.open("author")
		x.leaf("name", v.Author)
		x.close("author")
		x.leaf("yearpublished", intText(v.YearPublished))
		x.leaf("picture", v.Picture)
		x.leaf("isavailable", strconv.FormatBool(v.IsAvailable))
		if v.DueDate != nil {
			if due, err := time.Parse(book.DueDateFormat, *v.DueDate); err == nil {
				x.leaf("duedate", due.UTC().Format(atomTimeFormat))
			}
		}
		x.open("lender")
		x.leaf("email", v.Lender)
		x.close("lender")
		if v.Borrower != nil {
			x.open("borrower")
			x.leaf("name", v.Borrower.Name)
			x.leaf("email", v.Borrower.Email)
			x.close("borrower")
		}
		x.close("entry")
	}

	x.close("feed")
	return x.bytes(), nil
}

// RSS renders an RSS 2.0 channel with one item per book. Dates use the
// RFC-2822 style with a fixed +0000 offset.
func (f *Feed) RSS(views []book.View) ([]byte, error) {
	x := newBuilder()
	x.open("rss", attr("version", "2.0"))
	x.open("channel")
	x.leaf("title", Title)
	x.leaf("description", Description)
	x.leaf("link", f.SelfURL)
	x.leaf("pubDate", f.now().Format(rssTimeFormat))

	for _, v := range views {
		x.open("item")
		x.leaf("title", v.Title)
		x.leaf("link", f.bookURL(v.ID))
		x.leaf("pubDate", v.DateAdded.UTC().Format(rssTimeFormat))
		x.leaf("description", v.Synopsis)
		x.leaf("author", v.Author)
		x.leaf("yearpublished", intText(v.YearPublished))
		x.leaf("picture", v.Picture)
		x.leaf("isavailable", strconv.FormatBool(v.IsAvailable))
		if v.DueDate != nil {
			if due, err := time.Parse(book.DueDateFormat, *v.DueDate); err == nil {
				x.leaf("duedate", due.UTC().Format(rssTimeFormat))
			}
		}
		x.leaf("lender", v.Lender)
		if v.Borrower != nil {
			x.leaf("borrower", borrowerText(v.Borrower))
		}
		x.close("item")
	}

	x.close("channel")
	x.close("rss")
	return x.bytes(), nil
}

// tagURI builds a tag: URI from an absolute entry link and the entry date,
// e.g. tag:example.org,2015-06-01:/books/42/info.
func tagURI(link string, date time.Time) string {
	rest := link
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	host := rest
	path := ""
	if i := strings.Index(rest, "/"); i >= 0 {
		host = rest[:i]
		path = strings.Trim(rest[i:], "/")
	}
	return "tag:" + host + "," + date.UTC().Format("2006-01-02") + ":/" + path
}

type field struct {
	key   string
	value string
}

// viewFields flattens a view into the generic XML field order, matching the
// view's serialized field set.
func viewFields(v book.View) []field {
	return []field{
		{"author", v.Author},
		{"borrower", borrowerText(v.Borrower)},
		{"date_added", v.DateAdded.UTC().Format(time.RFC3339)},
		{"due_date", stringText(v.DueDate)},
		{"id", v.ID},
		{"is_available", strconv.FormatBool(v.IsAvailable)},
		{"lender", v.Lender},
		{"picture", v.Picture},
		{"synopsis", v.Synopsis},
		{"title", v.Title},
		{"year_published", intText(v.YearPublished)},
	}
}

// borrowerText renders a borrower as "email (name)", the same shape RSS items
// use.
func borrowerText(b *book.Borrower) string {
	if b == nil {
		return ""
	}
	return b.Email + " (" + b.Name + ")"
}

func stringText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intText(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
