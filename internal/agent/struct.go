package agent

// Article is a cited source document attached to a concept node.
type Article struct {
	// Titulo is the document title as it appears in the retrieved context.
	Titulo string `json:"titulo"`
	// Link is the citation URL resolved for the document, or "unknown".
	Link string `json:"link"`
}

// ConceptNode is one node of the concept graph extracted from the answer.
type ConceptNode struct {
	// Palabra is the central concept the node represents.
	Palabra string `json:"palabra"`
	// Articulos lists the source documents grounding the concept.
	Articulos []Article `json:"articulos"`
	// Relaciones lists related concepts, by name.
	Relaciones []string `json:"relaciones"`
}

// Report is the narrative part of a structured answer.
type Report struct {
	// Resumen is a short synthesis of the answer. Never empty in a valid answer.
	Resumen string `json:"resumen"`
	// Hallazgos lists the key findings, most important first.
	Hallazgos []string `json:"hallazgos"`
}

// StructuredAnswer is the schema-validated JSON answer produced per query.
// It is all-or-nothing: callers never see a partially populated answer.
type StructuredAnswer struct {
	// Reporte holds the narrative summary and findings.
	Reporte Report `json:"reporte"`
	// Grafo holds the concept graph, in model output order.
	Grafo []ConceptNode `json:"grafo"`
}
