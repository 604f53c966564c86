package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	headingLevels   = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}
	excessNewlines  = regexp.MustCompile(`\n{3,}`)
	renderSelector  = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote"
	skippedAncestry = "nav, footer, script, style, iframe"
)

// HTMLToMarkdown renders a coarse markdown view of the document: headings,
// paragraphs, list items, code blocks, and quotes in document order.
// Navigation chrome is dropped.
func HTMLToMarkdown(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(skippedAncestry).Remove()

	var b strings.Builder
	doc.Find(renderSelector).Each(func(_ int, sel *goquery.Selection) {
		node := goquery.NodeName(sel)
		switch node {
		case "pre":
			code := strings.TrimSpace(sel.Text())
			if code != "" {
				b.WriteString("```\n" + code + "\n```\n\n")
			}
		case "li":
			text := strings.TrimSpace(sel.Text())
			if text != "" {
				b.WriteString("* " + text + "\n")
			}
		case "blockquote":
			text := strings.TrimSpace(sel.Text())
			if text != "" {
				b.WriteString("> " + text + "\n\n")
			}
		default:
			if level, ok := headingLevels[node]; ok {
				text := strings.TrimSpace(sel.Text())
				if text != "" {
					b.WriteString(strings.Repeat("#", level) + " " + text + "\n\n")
				}
				return
			}
			// Paragraph: skip ones nested in pre/li to avoid doubling.
			if sel.ParentsFiltered("pre, li").Length() > 0 {
				return
			}
			text := strings.TrimSpace(sel.Text())
			if text != "" {
				b.WriteString(text + "\n\n")
			}
		}
	})

	markdown := excessNewlines.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(markdown)
}
