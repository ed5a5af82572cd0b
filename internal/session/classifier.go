package session

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/shareclub/curator/internal/channel"
)

// ClassKind is the semantic type the classifier assigns to one segment.
type ClassKind int

const (
	// ClassText is a plain text segment, stored verbatim.
	ClassText ClassKind = iota
	// ClassImage is an image with a resolvable source URL.
	ClassImage
	// ClassImageMetaMissing is an image segment without a source URL.
	ClassImageMetaMissing
	// ClassShare is a rich article-share card with extracted title and URL.
	ClassShare
	// ClassUnsupported is anything else; the original segment is kept so it
	// can be echoed back.
	ClassUnsupported
)

// Classified is the classifier's verdict for one segment. Only the fields
// matching Kind are set.
type Classified struct {
	Kind       ClassKind
	Text       string
	ImageURL   string
	ImageExt   string
	ShareTitle string
	ShareURL   string
	Segment    channel.Segment
}

// shareCard is the article-share payload shape. Decode is strict in effect:
// a missing title or jump URL rejects the card.
type shareCard struct {
	App  string `json:"app"`
	Meta struct {
		News struct {
			Title   string `json:"title"`
			Desc    string `json:"desc"`
			JumpURL string `json:"jumpUrl"`
		} `json:"news"`
	} `json:"meta"`
}

// Classify maps one inbound segment to its content class. It is total: no
// input, including arbitrary JSON, produces an error.
func Classify(seg channel.Segment) Classified {
	switch seg.Type {
	case channel.SegmentText:
		return Classified{Kind: ClassText, Text: seg.Text}
	case channel.SegmentImage:
		if seg.URL == "" {
			return Classified{Kind: ClassImageMetaMissing, Segment: seg}
		}
		return Classified{Kind: ClassImage, ImageURL: seg.URL, ImageExt: extensionOf(seg.File)}
	case channel.SegmentRich:
		if title, canonical, ok := decodeShare(seg.Data); ok {
			return Classified{Kind: ClassShare, ShareTitle: title, ShareURL: canonical}
		}
		return Classified{Kind: ClassUnsupported, Segment: seg}
	default:
		return Classified{Kind: ClassUnsupported, Segment: seg}
	}
}

func decodeShare(data string) (title, canonical string, ok bool) {
	var card shareCard
	if err := json.Unmarshal([]byte(data), &card); err != nil {
		return "", "", false
	}
	news := card.Meta.News
	if news.Title == "" || news.JumpURL == "" {
		return "", "", false
	}
	canonical, ok = canonicalShareURL(news.JumpURL)
	if !ok {
		return "", "", false
	}
	return news.Title, canonical, true
}

// canonicalShareURL rebuilds the share link from exactly the four identifying
// query parameters, dropping host tracking noise and everything else.
func canonicalShareURL(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	query := parsed.Query()
	parts := make([]string, 0, 4)
	for _, key := range []string{"__biz", "mid", "idx", "sn"} {
		value := query.Get(key)
		if value == "" {
			return "", false
		}
		parts = append(parts, key+"="+value)
	}
	return "https://mp.weixin.qq.com/s?" + strings.Join(parts, "&"), true
}

// extensionOf takes the part after the last dot, mirroring how the upstream
// protocol names image files. A name without a dot is used as-is.
func extensionOf(file string) string {
	if idx := strings.LastIndex(file, "."); idx >= 0 {
		return file[idx+1:]
	}
	return file
}
