package instagram

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "igharvest/pkg/errors"
)

// og:description reads like
// "1,234 Followers, 56 Following, 78 Posts - See Instagram photos and videos from Full Name (@user)"
var ogDescription = regexp.MustCompile(`(?i)^([\d.,]+[KM]?) Followers, ([\d.,]+[KM]?) Following, ([\d.,]+[KM]?) Posts.*?from (.*?) \(@([\w.]+)\)`)

// ParseProfileHTML extracts what it can from a public profile page. Only
// counts, names and the owner id are available this way; the timeline is not.
func ParseProfileHTML(r io.Reader) (*Profile, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse profile page")
	}

	meta := func(attr, key string) string {
		v, _ := doc.Find(`meta[` + attr + `="` + key + `"]`).Attr("content")
		return strings.TrimSpace(v)
	}

	desc := meta("property", "og:description")
	if desc == "" {
		desc = meta("name", "description")
	}
	m := ogDescription.FindStringSubmatch(desc)
	if m == nil {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "profile page has no recognisable description")
	}

	p := &Profile{
		Followers:  parseCount(m[1]),
		Followees:  parseCount(m[2]),
		MediaCount: parseCount(m[3]),
		FullName:   strings.TrimSpace(m[4]),
		Username:   m[5],
		ID:         meta("property", "instapp:owner_user_id"),
	}
	if p.ID == "" {
		p.ID = meta("name", "instapp:owner_user_id")
	}
	return p, nil
}

// parseCount turns "1,234", "12.5K" or "3M" into an integer.
func parseCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult, s = 1e3, s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult, s = 1e6, s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f * mult)
}
