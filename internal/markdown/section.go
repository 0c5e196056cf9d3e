// Package markdown cuts markdown sources into heading sections so that chunks
// of documentation keep the trail of headings they were written under.
package markdown

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is the text under one H1 or H2 heading, heading line included.
type Section struct {
	HeaderPath string // "# Doc Title > ## Section Name"; empty for text before the first heading
	Content    string
}

// IsMarkdown reports whether a repository path holds markdown.
func IsMarkdown(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".mdx", ".markdown":
		return true
	}
	return false
}

var md = goldmark.New(
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

// Split cuts source at every top-level H1 and H2 heading. Deeper headings stay
// inside their parent section. A document without such headings comes back as
// a single section with an empty header path; blank sections are dropped.
func Split(source []byte) []Section {
	doc := md.Parser().Parse(text.NewReader(source))

	paths := headerPaths(doc, source)

	type boundary struct {
		offset int
		path   string
	}
	var bounds []boundary
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level > 2 || heading.Lines().Len() == 0 {
			continue
		}
		id, _ := heading.AttributeString("id")
		idBytes, _ := id.([]byte)
		bounds = append(bounds, boundary{
			offset: lineStart(source, heading.Lines().At(0).Start),
			path:   paths[string(idBytes)],
		})
	}

	var sections []Section
	add := func(headerPath string, content []byte) {
		trimmed := strings.TrimSpace(string(content))
		if trimmed == "" {
			return
		}
		sections = append(sections, Section{HeaderPath: headerPath, Content: trimmed})
	}

	if len(bounds) == 0 {
		add("", source)
		return sections
	}

	add("", source[:bounds[0].offset])
	for i, b := range bounds {
		end := len(source)
		if i+1 < len(bounds) {
			end = bounds[i+1].offset
		}
		add(b.path, source[b.offset:end])
	}
	return sections
}

// headerPaths maps heading IDs to their trail of ancestor headings.
func headerPaths(doc ast.Node, source []byte) map[string]string {
	paths := map[string]string{}

	tree, err := toc.Inspect(doc, source, toc.MinDepth(1), toc.MaxDepth(2))
	if err != nil {
		return paths
	}

	var walk func(items toc.Items, trail []string)
	walk = func(items toc.Items, trail []string) {
		for _, item := range items {
			current := append(trail[:len(trail):len(trail)], string(item.Title))
			if len(item.ID) > 0 {
				paths[string(item.ID)] = formatHeaderPath(current)
			}
			walk(item.Items, current)
		}
	}
	walk(tree.Items, nil)

	return paths
}

// formatHeaderPath builds a header hierarchy string. Levels without a heading
// (an H2 with no H1 above it) are skipped but still count towards the depth.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(trail []string) string {
	var parts []string
	for i, title := range trail {
		if title == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), title))
	}
	return strings.Join(parts, " > ")
}

// lineStart returns the offset of the first byte of the line containing pos.
// Heading segments start after the "#" markers.
func lineStart(source []byte, pos int) int {
	return bytes.LastIndexByte(source[:pos], '\n') + 1
}
