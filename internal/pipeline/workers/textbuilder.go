package workers

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/boe-ingest/pipeline/internal/domain"
)

// capitalizeFirst upper-cases the first rune of s, leaving the rest as is.
// Node type tags carry accented Spanish characters, so this works on runes
// rather than reaching for the deprecated strings.Title.
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// formatDateHuman renders t as "{day} de {month-spanish} de {year}", or
// "Desconocida" for a nil date.
func formatDateHuman(t *time.Time) string {
	if t == nil {
		return "Desconocida"
	}
	return fmt.Sprintf("%d de %s de %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
}

// buildStateLine renders the validity sentence for an article node,
// matching article_text_builder.py's _build_state_line precedence:
// expired beats "has a newer version" beats "currently active".
func buildStateLine(tree *domain.ContentTree, h domain.NodeHandle) string {
	n := tree.Node(h)
	start := formatDateHuman(n.FechaVigencia)

	if n.FechaCaducidad != nil {
		end := formatDateHuman(n.FechaCaducidad)
		return fmt.Sprintf("Estado: Este artículo ya no está en vigor. Estuvo vigente desde %s hasta %s.", start, end)
	}
	if n.NextVersion != 0 {
		return fmt.Sprintf("Estado: Este artículo ha sido modificado. Existe una versión más reciente. Estuvo vigente desde %s.", start)
	}
	return fmt.Sprintf("Estado: Este artículo está actualmente vigente desde %s. Se encuentra en vigor.", start)
}

// descendantPrefix returns the type marker prepended to a descendant node's
// own text, per spec.md's full-text assembly rule.
func descendantPrefix(n *domain.Node) string {
	switch n.Type {
	case domain.NodeApartadoNumerico:
		return n.Name + ". "
	case domain.NodeApartadoAlfa:
		return n.Name + ") "
	case domain.NodeOrdinalNumerico, domain.NodeOrdinalAlfa:
		return n.Name + " "
	default: // párrafo and anything else: unprefixed
		return ""
	}
}

// buildFullText assembles an article's own text followed by every
// descendant's text (tree order), each descendant prefixed by its type
// marker, non-empty parts joined by a blank line.
func buildFullText(tree *domain.ContentTree, h domain.NodeHandle) string {
	var parts []string
	root := tree.Node(h)
	if strings.TrimSpace(root.Text) != "" {
		parts = append(parts, root.Text)
	}

	var walk func(domain.NodeHandle)
	walk = func(cur domain.NodeHandle) {
		n := tree.Node(cur)
		if text := strings.TrimSpace(n.Text); text != "" {
			parts = append(parts, descendantPrefix(n)+n.Text)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, c := range root.Children {
		walk(c)
	}

	return strings.Join(parts, "\n\n")
}

// buildHierarchyContext joins the structural ancestors of h (excluding
// root and the article itself) as "Tipo Nombre > Tipo Nombre", or
// "General" if the article sits directly under the root.
func buildHierarchyContext(tree *domain.ContentTree, h domain.NodeHandle) string {
	path := tree.HierarchyPath(h)
	var segs []string
	for _, anc := range path {
		n := tree.Node(anc)
		if n.Type == domain.NodeRoot || n.Type.IsArticle() {
			continue
		}
		segs = append(segs, capitalizeFirst(n.Type.String())+" "+n.Name)
	}
	if len(segs) == 0 {
		return "General"
	}
	return strings.Join(segs, " > ")
}

// BuildContextString renders the canonical context string for article h in
// doc, the exact format hashed into the embedding cache key. Grounded
// line-for-line on article_text_builder.py's build_context_string.
func BuildContextString(doc *domain.Document, h domain.NodeHandle) string {
	tree := doc.ContentTree
	n := tree.Node(h)

	docLine := fmt.Sprintf("Documento: %s (%s)", doc.Metadata.Titulo, doc.ID)
	contextLine := "Contexto: " + buildHierarchyContext(tree, h)
	articleLine := "Artículo: " + n.Name
	stateLine := buildStateLine(tree, h)
	content := buildFullText(tree, h)

	return strings.Join([]string{docLine, contextLine, articleLine, stateLine, "Contenido:", content}, "\n")
}
