package library

import "github.com/On-Jun9/MetaPipe/pkg/types"

// dctermsProperties is the Dublin Core terms vocabulary in catalog order.
var dctermsProperties = []struct{ local, label string }{
	{"title", "Title"},
	{"creator", "Creator"},
	{"subject", "Subject"},
	{"description", "Description"},
	{"publisher", "Publisher"},
	{"contributor", "Contributor"},
	{"date", "Date"},
	{"type", "Type"},
	{"format", "Format"},
	{"identifier", "Identifier"},
	{"source", "Source"},
	{"language", "Language"},
	{"relation", "Relation"},
	{"coverage", "Coverage"},
	{"rights", "Rights"},
	{"audience", "Audience"},
	{"alternative", "Alternative Title"},
	{"abstract", "Abstract"},
	{"created", "Date Created"},
	{"modified", "Date Modified"},
	{"issued", "Date Issued"},
	{"extent", "Extent"},
	{"medium", "Medium"},
	{"spatial", "Spatial Coverage"},
	{"temporal", "Temporal Coverage"},
	{"license", "License"},
	{"rightsHolder", "Rights Holder"},
	{"provenance", "Provenance"},
}

// DefaultProperties returns the seeded catalog.
func DefaultProperties() []types.Property {
	props := make([]types.Property, 0, len(dctermsProperties))
	for i, p := range dctermsProperties {
		props = append(props, types.Property{
			ID:               i + 1,
			VocabularyPrefix: "dcterms",
			LocalName:        p.local,
			Label:            p.label,
		})
	}
	return props
}
