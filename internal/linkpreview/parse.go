package linkpreview

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Meta is the preview metadata found in a document head
type Meta struct {
	Title       string
	Description string
	ImageURL    string
	SiteName    string
}

// parseHTML scans the document head. og: tags win over twitter: tags, which win over
// <title> and the plain description meta. Relative image URLs are resolved against base.
func parseHTML(r io.Reader, base *url.URL) Meta {
	z := html.NewTokenizer(r)
	tags := map[string]string{}
	var title strings.Builder
	inTitle := false

loop:
	for {
		switch z.Next() {
		case html.ErrorToken:
			break loop
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			switch t.DataAtom {
			case atom.Title:
				inTitle = true
			case atom.Meta:
				name, content := metaPair(t)
				if name != "" && content != "" {
					if _, ok := tags[name]; !ok {
						tags[name] = content
					}
				}
			case atom.Body:
				break loop
			}
		case html.EndTagToken:
			t := z.Token()
			switch t.DataAtom {
			case atom.Title:
				inTitle = false
			case atom.Head:
				break loop
			}
		case html.TextToken:
			if inTitle {
				title.Write(z.Text())
			}
		}
	}

	m := Meta{
		Title:       first(tags["og:title"], tags["twitter:title"], title.String()),
		Description: first(tags["og:description"], tags["twitter:description"], tags["description"]),
		ImageURL:    first(tags["og:image"], tags["og:image:url"], tags["twitter:image"], tags["twitter:image:src"]),
		SiteName:    first(tags["og:site_name"], tags["application-name"]),
	}
	if m.ImageURL != "" && base != nil {
		if ref, err := url.Parse(m.ImageURL); err == nil {
			m.ImageURL = base.ResolveReference(ref).String()
		}
	}
	return m
}

func metaPair(t html.Token) (string, string) {
	var name, content string
	for _, a := range t.Attr {
		switch strings.ToLower(a.Key) {
		case "property", "name":
			if name == "" {
				name = strings.ToLower(strings.TrimSpace(a.Val))
			}
		case "content":
			content = a.Val
		}
	}
	return name, content
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.Join(strings.Fields(v), " "); v != "" {
			return v
		}
	}
	return ""
}
