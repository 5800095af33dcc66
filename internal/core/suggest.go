package core

// SuggestMappings proposes a target for every header, in header order.
// Headers are matched on their normalised form against the schema's synonym
// table; anything unmatched maps to Ignore. A field is suggested at most once:
// the first header that claims it wins.
func SuggestMappings(headers []string, schema Schema) []ColumnMapping {
	index := schema.synonymIndex()
	claimed := make(map[Field]bool, len(schema.Fields))

	mappings := make([]ColumnMapping, len(headers))
	for i, h := range headers {
		target := Ignore
		if f, ok := index[NormalizeHeader(h)]; ok && !claimed[f] {
			target = f
			claimed[f] = true
		}
		mappings[i] = ColumnMapping{SourceColumn: h, TargetField: target}
	}
	return mappings
}
