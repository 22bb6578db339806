// Package tracking instruments outbound HTML so opens and clicks can be
// correlated back to a ledger row by its tracking token.
package tracking

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Pixel is a 1x1 transparent GIF.
var Pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0xFF, 0xFF, 0xFF,
	0x00, 0x00, 0x00, 0x21, 0xF9, 0x04, 0x01, 0x0A, 0x00, 0x01, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x4C, 0x01, 0x00, 0x3B,
}

const PixelContentType = "image/gif"

func NewToken() string {
	return uuid.NewString()
}

func PixelURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/t/" + url.PathEscape(token)
}

func ClickURL(baseURL, token, destination string) string {
	return strings.TrimRight(baseURL, "/") + "/t/click/" + url.PathEscape(token) + "?url=" + url.QueryEscape(destination)
}

// AddPixel inserts the open-tracking image before the last closing body tag,
// or appends it when the document has none.
func AddPixel(body, baseURL, token string) string {
	img := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" />`, PixelURL(baseURL, token))
	// Matched on the original bytes; lowercasing can change the byte length.
	matches := bodyClosePattern.FindAllStringIndex(body, -1)
	if len(matches) == 0 {
		return body + img
	}
	idx := matches[len(matches)-1][0]
	return body[:idx] + img + body[idx:]
}

var (
	bodyClosePattern = regexp.MustCompile(`(?i)</body>`)
	hrefPattern      = regexp.MustCompile(`(?i)href\s*=\s*"(https?://[^"]+)"`)
)

// RewriteLinks points absolute http(s) links at the click-tracking endpoint.
// Attribute values are entity-decoded before being carried in the redirect.
func RewriteLinks(body, baseURL, token string) string {
	return hrefPattern.ReplaceAllStringFunc(body, func(m string) string {
		dest := html.UnescapeString(hrefPattern.FindStringSubmatch(m)[1])
		return `href="` + ClickURL(baseURL, token, dest) + `"`
	})
}
