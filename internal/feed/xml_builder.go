package feed

import (
	"encoding/xml"
	"strings"
)

const (
	xmlHeader = "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n"
	xmlIndent = "    "
)

type xmlAttr struct {
	name  string
	value string
}

func attr(name, value string) xmlAttr {
	return xmlAttr{name: name, value: value}
}

// builder writes pretty-printed XML, one element per line with 4-space
// indents. Text and attribute values are escaped; element names are trusted
// (they come from this package, never from input).
type builder struct {
	sb    strings.Builder
	depth int
}

func newBuilder() *builder {
	b := &builder{}
	b.sb.WriteString(xmlHeader)
	return b
}

func (b *builder) indent() {
	for i := 0; i < b.depth; i++ {
		b.sb.WriteString(xmlIndent)
	}
}

func (b *builder) writeAttrs(attrs []xmlAttr) {
	for _, a := range attrs {
		b.sb.WriteString(" ")
		b.sb.WriteString(a.name)
		b.sb.WriteString("=\"")
		b.sb.WriteString(escape(a.value))
		b.sb.WriteString("\"")
	}
}

// open writes a start tag and indents subsequent elements under it.
func (b *builder) open(name string, attrs ...xmlAttr) {
	b.indent()
	b.sb.WriteString("<")
	b.sb.WriteString(name)
	b.writeAttrs(attrs)
	b.sb.WriteString(">\n")
	b.depth++
}

func (b *builder) close(name string) {
	b.depth--
	b.indent()
	b.sb.WriteString("</")
	b.sb.WriteString(name)
	b.sb.WriteString(">\n")
}

// leaf writes an element whose only content is text.
func (b *builder) leaf(name, text string, attrs ...xmlAttr) {
	b.indent()
	b.sb.WriteString("<")
	b.sb.WriteString(name)
	b.writeAttrs(attrs)
	b.sb.WriteString(">")
	b.sb.WriteString(escape(text))
	b.sb.WriteString("</")
	b.sb.WriteString(name)
	b.sb.WriteString(">\n")
}

// empty writes a self-closing element, used for Atom links.
func (b *builder) empty(name string, attrs ...xmlAttr) {
	b.indent()
	b.sb.WriteString("<")
	b.sb.WriteString(name)
	b.writeAttrs(attrs)
	b.sb.WriteString("/>\n")
}

func (b *builder) bytes() []byte {
	return []byte(b.sb.String())
}

func escape(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
