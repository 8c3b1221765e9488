package workers

import "github.com/boe-ingest/pipeline/internal/domain"

// graphLabels maps a NodeType to its ASCII Neo4j label. Kept separate from
// NodeType.String() (used for the accented Spanish text in context strings
// and paths) because Cypher labels are interpolated directly and the
// adapter's sanitizer only tolerates ASCII identifier characters.
var graphLabels = map[domain.NodeType]string{
	domain.NodeRoot:             "Raiz",
	domain.NodeLibro:            "Libro",
	domain.NodeTitulo:           "Titulo",
	domain.NodeCapitulo:         "Capitulo",
	domain.NodeSeccion:          "Seccion",
	domain.NodeSubseccion:       "Subseccion",
	domain.NodeArticulo:         "Articulo",
	domain.NodeArticuloUnico:    "Articulo",
	domain.NodeApartadoNumerico: "Apartado",
	domain.NodeApartadoAlfa:     "Apartado",
	domain.NodeOrdinalNumerico:  "Ordinal",
	domain.NodeOrdinalAlfa:      "Ordinal",
	domain.NodeParrafo:          "Parrafo",
	domain.NodeDisposicion:      "Disposicion",
}

func graphLabel(t domain.NodeType) string {
	if l, ok := graphLabels[t]; ok {
		return l
	}
	return "Nodo"
}
