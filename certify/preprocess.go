package certify

import (
	"regexp"
	"strings"
)

// charsetMetaTag is the document-wide encoding declaration injected into the head.
const charsetMetaTag = `<meta charset="utf-8">`

// fontMarkerAttr tags injected font declarations so reprocessing detects them.
const fontMarkerAttr = `data-certify-fonts`

// fontStylesheetBlock loads web fonts covering the non-Latin scripts that
// certificate templates are issued in, plus a body-wide font override.
const fontStylesheetBlock = `<link rel="preconnect" href="https://fonts.googleapis.com" ` + fontMarkerAttr + `="true">
<link rel="preconnect" href="https://fonts.gstatic.com" crossorigin ` + fontMarkerAttr + `="true">
<link href="https://fonts.googleapis.com/css2?family=Noto+Sans:wght@400;700&family=Noto+Sans+SC:wght@400;700&family=Noto+Sans+Arabic:wght@400;700&family=Noto+Sans+Devanagari:wght@400;700&display=swap" rel="stylesheet" ` + fontMarkerAttr + `="true">
<style ` + fontMarkerAttr + `="true">
body {
  font-family: 'Noto Sans', 'Noto Sans SC', 'Noto Sans Arabic', 'Noto Sans Devanagari', sans-serif;
}
</style>`

var charsetPattern = regexp.MustCompile(`(?i)<meta[^>]*charset`)

// PreprocessHTML normalizes a renderable document before it reaches the
// browser: it guarantees a charset declaration and, when the document carries
// no font declaration of its own, injects the certificate web-font block.
// The transformation is idempotent; injected markup doubles as its own
// detection marker.
func PreprocessHTML(htmlContent string) string {
	out := ensureHead(htmlContent)

	if !charsetPattern.MatchString(out) {
		out = insertAfterTag(out, "<head", charsetMetaTag)
	}

	if !hasFontDeclaration(out) {
		out = insertBeforeTag(out, "</head>", fontStylesheetBlock)
	}

	return out
}

func hasFontDeclaration(htmlContent string) bool {
	lower := strings.ToLower(htmlContent)
	return strings.Contains(lower, fontMarkerAttr) ||
		strings.Contains(lower, "fonts.googleapis.com") ||
		strings.Contains(lower, "@font-face")
}

// ensureHead guarantees the document has a head section to inject into,
// synthesizing an html/head wrapper for bare fragments.
func ensureHead(htmlContent string) string {
	lower := strings.ToLower(htmlContent)
	if strings.Contains(lower, "<head") {
		return htmlContent
	}

	if idx := strings.Index(lower, "<html"); idx >= 0 {
		if end := strings.Index(htmlContent[idx:], ">"); end >= 0 {
			insertPos := idx + end + 1
			return htmlContent[:insertPos] + "<head></head>" + htmlContent[insertPos:]
		}
	}

	return "<html><head></head><body>" + htmlContent + "</body></html>"
}

// insertAfterTag inserts markup right after the closing > of the first tag
// whose name starts with prefix. Falls back to prepending.
func insertAfterTag(htmlContent, prefix, markup string) string {
	lower := strings.ToLower(htmlContent)
	if idx := strings.Index(lower, prefix); idx >= 0 {
		if end := strings.Index(htmlContent[idx:], ">"); end >= 0 {
			insertPos := idx + end + 1
			return htmlContent[:insertPos] + markup + htmlContent[insertPos:]
		}
	}
	return markup + htmlContent
}

// insertBeforeTag inserts markup right before the first occurrence of tag.
// Falls back to appending.
func insertBeforeTag(htmlContent, tag, markup string) string {
	lower := strings.ToLower(htmlContent)
	if idx := strings.Index(lower, tag); idx >= 0 {
		return htmlContent[:idx] + markup + htmlContent[idx:]
	}
	return htmlContent + markup
}
