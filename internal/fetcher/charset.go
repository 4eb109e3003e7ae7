package fetcher

import (
	"bytes"
	"mime"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?\s*([a-z0-9_\-:.]+)`)

// sniffCharset reads the charset from the Content-Type header, falling back
// to a <meta charset> tag near the top of the document.
func sniffCharset(contentType string, body []byte) string {
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if cs := params["charset"]; cs != "" {
				return strings.ToLower(cs)
			}
		}
	}
	head := body
	if len(head) > 2048 {
		head = head[:2048]
	}
	if m := metaCharsetRe.FindSubmatch(head); m != nil {
		return strings.ToLower(string(m[1]))
	}
	return ""
}

// decodeBody converts body from charset to UTF-8. Unknown labels are an
// error; empty and utf-8 labels pass through.
func decodeBody(charset string, body []byte) ([]byte, error) {
	switch charset {
	case "", "utf-8", "utf8":
		return body, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode %s body", charset)
	}
	return bytes.TrimPrefix(out, []byte("\xef\xbb\xbf")), nil
}
