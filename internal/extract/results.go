package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SearchHit is one organic result from a search results page
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
}

// ParseSearchResults reads the DuckDuckGo HTML results page. Ads and hits
// without a usable http(s) URL are skipped; duplicate URLs keep the first hit.
func ParseSearchResults(htmlContent string, baseURL string) ([]SearchHit, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Div && hasClass(n, "result") {
			if hasClass(n, "result--ad") {
				return
			}
			if hit, ok := parseResult(n, base); ok && !seen[hit.URL] {
				seen[hit.URL] = true
				hits = append(hits, hit)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return hits, nil
}

func parseResult(n *html.Node, base *url.URL) (SearchHit, bool) {
	var hit SearchHit

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a") && hit.URL == "":
				hit.URL = resolveResultURL(base, attr(n, "href"))
				hit.Title = collapse(visibleText(n))
				return
			case hasClass(n, "result__snippet") && hit.Excerpt == "":
				hit.Excerpt = collapse(visibleText(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return hit, hit.URL != ""
}

// resolveResultURL unwraps DuckDuckGo's /l/?uddg= redirect links and
// resolves relative hrefs. Only http and https URLs are kept.
func resolveResultURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)

	if target := resolved.Query().Get("uddg"); target != "" && strings.HasPrefix(resolved.Path, "/l/") {
		inner, err := url.Parse(target)
		if err != nil {
			return ""
		}
		resolved = inner
	}

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
