package core

// Projection is the set of columns an asset's transform consumes from its
// immediate source. The zero value means "all columns" - the safe fallback
// whenever static analysis cannot confidently narrow the set.
type Projection struct {
	// Columns is the ordered set of consumed column names. Ignored when
	// All is true.
	Columns []string

	// All requests every available column from the source.
	All bool
}

// ProjectAll returns the ALL-columns sentinel projection.
func ProjectAll() Projection {
	return Projection{All: true}
}

// ProjectColumns returns a narrow projection over the given columns.
func ProjectColumns(cols []string) Projection {
	return Projection{Columns: cols}
}

// ExtractedRefs is the static-analysis result for one asset's transform:
// which other assets it references and which source columns it consumes.
type ExtractedRefs struct {
	// ModelRefs is the sorted set of asset names referenced via ref(...).
	ModelRefs []string

	// Projection is the inferred source column set.
	Projection Projection

	// UsesSource reports whether the transform reads {{ source }}.
	UsesSource bool
}
