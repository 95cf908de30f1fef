package danmaku

import (
	"encoding/xml"
	"regexp"
	"strings"
)

// file is the on-disk XML shape, grounded on varoOP-go-myanimelist's
// struct-tag style for encoding/xml types.
type file struct {
	XMLName        xml.Name   `xml:"i"`
	ChatServer     string     `xml:"chatserver"`
	ChatID         string     `xml:"chatid"`
	Mission        int        `xml:"mission"`
	MaxLimit       int        `xml:"maxlimit"`
	Source         string     `xml:"source"`
	SourceProvider string     `xml:"sourceprovider,omitempty"`
	DataSize       int        `xml:"datasize"`
	Comments       []xmlEntry `xml:"d"`
}

type xmlEntry struct {
	P    string `xml:"p,attr"`
	Text string `xml:",chardata"`
}

// controlChars matches XML-invalid control characters (everything below
// 0x20 except tab/LF/CR, plus DEL 0x7F) that providers occasionally embed
// in comment text.
var controlChars = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")

func stripControlChars(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

// Marshal renders comments into the dandanplay-compatible XML document for
// episodeID and provider.
func Marshal(episodeID string, provider string, comments []Comment) ([]byte, error) {
	f := file{
		ChatServer:     "hikari-danmu",
		ChatID:         episodeID,
		Mission:        0,
		MaxLimit:       2000,
		Source:         "k-v",
		SourceProvider: provider,
		DataSize:       len(comments),
		Comments:       make([]xmlEntry, 0, len(comments)),
	}
	for _, c := range comments {
		f.Comments = append(f.Comments, xmlEntry{
			P:    formatPAttr(c),
			Text: stripControlChars(c.Text),
		})
	}

	out, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// Unmarshal parses a dandanplay-compatible XML document, normalizing every
// comment's p-attribute to the four-field core shape. A comment node with a
// missing or malformed p-attribute is kept with the default field values
// rather than failing the whole file; a malformed document (not
// well-formed XML at all) still returns an error.
func Unmarshal(data []byte) ([]Comment, error) {
	cleaned := stripControlChars(string(data))

	var f file
	if err := xml.Unmarshal([]byte(cleaned), &f); err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(f.Comments))
	for _, entry := range f.Comments {
		t, mode, fontSize, color := normalizePAttr(entry.P)
		comments = append(comments, Comment{
			Time:     t,
			Mode:     mode,
			FontSize: fontSize,
			Color:    color,
			Provider: extractProviderTag(entry.P),
			Text:     entry.Text,
		})
	}
	return comments, nil
}

// extractProviderTag pulls the trailing "[provider]" tag off a raw p
// attribute, if present.
func extractProviderTag(p string) string {
	start := strings.LastIndex(p, "[")
	end := strings.LastIndex(p, "]")
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return p[start+1 : end]
}

// Count returns the number of <d> comment nodes in data, for the
// comment_count invariant check. It parses the document with Unmarshal.
func Count(data []byte) (int, error) {
	comments, err := Unmarshal(data)
	if err != nil {
		return 0, err
	}
	return len(comments), nil
}
