package extractor

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Parse reads an HTML document and returns its <a href> targets in document
// order, resolved against base. A <base href> element in the document
// replaces base for the links that follow it.
func Parse(base *url.URL, r io.Reader) ([]string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	links := make([]string, 0)
	baseSet := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "base":
				if href := getAttr(n, "href"); href != "" && !baseSet {
					if u, err := base.Parse(strings.TrimSpace(href)); err == nil {
						base = u
						baseSet = true
					}
				}
			case "a":
				if link := resolve(base, getAttr(n, "href")); link != "" {
					links = append(links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return links, nil
}

// resolve turns href into an absolute http(s) URL without fragment.
// Anything else, including javascript:, mailto:, tel: and data: links
// and bare fragments, yields "".
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
