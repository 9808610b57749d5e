package collector

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	htmldom "golang.org/x/net/html"
)

const (
	maxOutlineDepth = 4
	maxOutlineLines = 60
	maxOutlineIDs   = 30
)

// htmlOutline condenses an HTML document into its title, headings, assets
// and a shallow element skeleton of the body.
func htmlOutline(src string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		fmt.Fprintf(&sb, "title: %s\n", t)
	}
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			fmt.Fprintf(&sb, "%s: %s\n", goquery.NodeName(s), t)
		}
	})
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		fmt.Fprintf(&sb, "script: %s\n", src)
	})
	doc.Find(`link[rel="stylesheet"][href]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		fmt.Fprintf(&sb, "stylesheet: %s\n", href)
	})
	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		action, _ := s.Attr("action")
		method, _ := s.Attr("method")
		fmt.Fprintf(&sb, "form: action=%q method=%q inputs=%d\n", action, method, s.Find("input, select, textarea").Length())
	})

	var ids []string
	doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		ids = append(ids, id)
		return len(ids) < maxOutlineIDs
	})
	if len(ids) > 0 {
		fmt.Fprintf(&sb, "ids: %s\n", strings.Join(ids, ", "))
	}

	if body := doc.Find("body"); body.Length() > 0 {
		sb.WriteString("skeleton:\n")
		lines := 0
		for c := body.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
			skeleton(&sb, c, 1, &lines)
		}
	}
	return sb.String(), nil
}

func skeleton(sb *strings.Builder, n *htmldom.Node, depth int, lines *int) {
	if n.Type != htmldom.ElementNode || depth > maxOutlineDepth || *lines >= maxOutlineLines {
		return
	}
	*lines++
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString("<" + n.Data)
	for _, a := range n.Attr {
		if a.Key == "id" || a.Key == "class" {
			fmt.Fprintf(sb, " %s=%q", a.Key, a.Val)
		}
	}
	sb.WriteString(">\n")
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		skeleton(sb, c, depth+1, lines)
	}
}
