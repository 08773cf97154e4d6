// Package notes extracts release notes for a tag from a project changelog.
package notes

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Extract returns the changelog section for the given tag.
//
// A section starts at a heading whose text mentions the tag (with or without
// the leading "v") and runs until the next heading of the same or higher
// level. The returned text is raw Markdown suitable for a release body. The
// second return value is false when no section matches.
func Extract(changelog []byte, tag string) (string, bool) {
	version := strings.TrimPrefix(tag, "v")
	if version == "" {
		return "", false
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(changelog))

	sectionStart := -1
	sectionEnd := len(changelog)
	matchedLevel := 0

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*gmast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			continue
		}

		if sectionStart >= 0 {
			if heading.Level <= matchedLevel {
				sectionEnd = lineStart(changelog, heading.Lines().At(0).Start)
				break
			}
			continue
		}

		title := string(heading.Text(changelog))
		if headingMatchesVersion(title, tag, version) {
			sectionStart = heading.Lines().At(0).Stop
			matchedLevel = heading.Level
		}
	}

	if sectionStart < 0 {
		return "", false
	}

	section := strings.TrimSpace(string(changelog[sectionStart:sectionEnd]))
	if section == "" {
		return "", false
	}
	return section, true
}

// headingMatchesVersion checks whether a heading names the released version.
// "## [1.2.0] - 2026-01-15", "## v1.2.0" and "## 1.2.0" all match tag v1.2.0,
// while "## 1.2.0-rc1" must not match.
func headingMatchesVersion(title, tag, version string) bool {
	for _, token := range strings.FieldsFunc(title, func(r rune) bool {
		return r == ' ' || r == '[' || r == ']' || r == '(' || r == ')'
	}) {
		if token == tag || token == version {
			return true
		}
	}
	return false
}

// lineStart walks back from offset to the beginning of its line.
func lineStart(source []byte, offset int) int {
	if offset > len(source) {
		offset = len(source)
	}
	if i := bytes.LastIndexByte(source[:offset], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

// RenderHTML converts a Markdown release body to HTML for notification
// payloads and the run detail endpoint.
func RenderHTML(body string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
