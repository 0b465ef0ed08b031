package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"
)

// SidecarName is the registry name of the camera sidecar XML reader.
const SidecarName = "sidecar"

// SidecarXMLExtractor reads the NonRealTimeMeta XML that professional cameras
// write next to each clip (C0001.MP4 -> C0001M01.XML).
type SidecarXMLExtractor struct{}

func NewSidecarXMLExtractor() *SidecarXMLExtractor {
	return &SidecarXMLExtractor{}
}

func (e *SidecarXMLExtractor) IsAvailable() bool { return true }

func (e *SidecarXMLExtractor) Supports(mediaType, metadataType string) bool {
	if metadataType != "nonrealtimemeta" {
		return false
	}
	return strings.HasPrefix(mediaType, "video/") || mediaType == "application/xml" || mediaType == "text/xml"
}

func (e *SidecarXMLExtractor) Extract(ctx context.Context, filePath, metadataType string) (map[string]any, error) {
	if metadataType != "nonrealtimemeta" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, metadataType)
	}

	xmlPath := filePath
	if !strings.EqualFold(filepath.Ext(filePath), ".xml") {
		xmlPath = e.findXMLPath(filePath)
		if xmlPath == "" {
			return map[string]any{}, nil
		}
	}

	f, err := os.Open(xmlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read XML: %w", err)
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return map[string]any{n.Data: xmlNodeTree(n)}, nil
		}
	}
	return nil, fmt.Errorf("failed to parse XML: no root element")
}

// xmlNodeTree turns an element into a tree: attributes as "@name", child
// elements by name (arrays when repeated), mixed text as "#text". A leaf with
// no attributes collapses to its text.
func xmlNodeTree(n *xmlquery.Node) any {
	tree := map[string]any{}
	for _, a := range n.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		tree["@"+a.Name.Local] = a.Value
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			child := xmlNodeTree(c)
			switch existing := tree[c.Data].(type) {
			case nil:
				tree[c.Data] = child
			case []any:
				tree[c.Data] = append(existing, child)
			default:
				tree[c.Data] = []any{existing, child}
			}
		case xmlquery.TextNode, xmlquery.CharDataNode:
			text.WriteString(c.Data)
		}
	}

	t := strings.TrimSpace(text.String())
	if len(tree) == 0 {
		return t
	}
	if t != "" {
		tree["#text"] = t
	}
	return tree
}

func (e *SidecarXMLExtractor) findXMLPath(videoPath string) string {
	dir := filepath.Dir(videoPath)
	basename := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))

	for _, name := range []string{basename + "M01.XML", basename + "M01.xml"} {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
