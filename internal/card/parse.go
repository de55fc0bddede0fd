package card

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	dataTableSelector = "table.dataTable"
	cardImageSelector = `td img[src*="YoukaiGazou/image/"]`
	manifestMarker    = "IIIF/manifest"
	viewerMarker      = "iiif-viewer"
)

// Media holds the links found on a card page. Empty fields were not found.
type Media struct {
	ImageURL    string
	ManifestURL string
	ViewerURL   string
}

// ParseMetadata maps the rows of the page's first data table to canonical
// fields. Unknown labels are ignored and a page without a table yields an
// empty map.
func ParseMetadata(doc *goquery.Document) map[Field]string {
	meta := map[Field]string{}

	table := doc.Find(dataTableSelector).First()
	if table.Length() == 0 {
		return meta
	}

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		th := tr.Find("th").First()
		td := tr.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		field, ok := Labels[joinText(th.Nodes[0], "")]
		if !ok {
			return
		}
		meta[field] = joinText(td.Nodes[0], " ")
	})
	return meta
}

// ExtractMedia finds the card image and the first IIIF manifest and viewer
// links. Relative links resolve against base.
func ExtractMedia(doc *goquery.Document, base *url.URL) Media {
	var m Media

	if src, ok := doc.Find(cardImageSelector).First().Attr("src"); ok && src != "" {
		m.ImageURL = resolve(base, src)
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m.ManifestURL == "" && strings.Contains(href, manifestMarker) {
			m.ManifestURL = resolve(base, href)
		}
		if m.ViewerURL == "" && strings.Contains(href, viewerMarker) {
			m.ViewerURL = resolve(base, href)
		}
		return m.ManifestURL == "" || m.ViewerURL == ""
	})
	return m
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// joinText concatenates the trimmed, non-empty descendant text nodes of n
// with sep.
func joinText(n *html.Node, sep string) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, sep)
}
