package main

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boe-ingest/pipeline/internal/domain"
)

// boeFetcher retrieves a law's consolidated XML from the real BOE API. The
// BOE HTTP client is an out-of-scope external collaborator (spec.md §1);
// this is the minimal concrete implementation cmd/ingest needs to actually
// run, not a full-featured client.
type boeFetcher struct {
	baseURL string
	client  *http.Client
}

func newBOEFetcher(baseURL string) *boeFetcher {
	return &boeFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: 30 * time.Second}}
}

func (f *boeFetcher) Fetch(ctx context.Context, lawID string) ([]byte, error) {
	url := fmt.Sprintf("%s/diario_boe/xml.php?id=%s", f.baseURL, lawID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("boe fetch %s: %w", lawID, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("boe fetch %s: %w", lawID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("boe fetch %s: status %d", lawID, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("boe fetch %s: read body: %w", lawID, err)
	}
	return body, nil
}

// boeDocumentoXML mirrors the subset of the BOE consolidated-text XML
// schema the parser cares about: bibliographic metadata plus a flat list
// of articles. The real schema nests títulos/capítulos/secciones; the
// XML-to-domain parser itself is out of scope (spec.md §1), so this
// collapses everything under the root rather than reconstructing the full
// hierarchy.
type boeDocumentoXML struct {
	XMLName xml.Name `xml:"documento"`
	Meta    struct {
		Identificador    string `xml:"identificador"`
		Titulo           string `xml:"titulo"`
		FechaPublicacion string `xml:"fecha_publicacion"`
		Rango            string `xml:"rango"`
		Departamento     string `xml:"departamento"`
	} `xml:"metadatos"`
	Texto struct {
		Bloques []boeBloqueXML `xml:"bloque"`
	} `xml:"texto"`
}

type boeBloqueXML struct {
	ID     string `xml:"id,attr"`
	Titulo string `xml:"titulo,attr"`
	Texto  string `xml:",chardata"`
}

// boeXMLParser turns the BOE's consolidated XML into a domain.Document.
// Like boeFetcher, it is intentionally minimal: a faithful BOE parser is
// out of scope (spec.md §1), and the pipeline's own contract only needs a
// DocParser that produces a well-formed content tree.
type boeXMLParser struct{}

func (boeXMLParser) Parse(raw []byte) (*domain.Document, error) {
	var src boeDocumentoXML
	if err := xml.Unmarshal(raw, &src); err != nil {
		return nil, fmt.Errorf("boe xml parse: %w", err)
	}

	fechaPub, _ := time.Parse("20060102", src.Meta.FechaPublicacion)
	tree := domain.NewContentTree()
	root := tree.Root()
	for i, b := range src.Texto.Bloques {
		name := b.ID
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		tree.AddChild(root, domain.Node{
			ID:   i + 1,
			Type: domain.NodeArticulo,
			Name: name,
			Text: strings.TrimSpace(b.Texto),
		})
	}

	return &domain.Document{
		ID: src.Meta.Identificador,
		Metadata: domain.Metadata{
			Titulo:       src.Meta.Titulo,
			FechaPub:     fechaPub,
			Rango:        src.Meta.Rango,
			Departamento: src.Meta.Departamento,
		},
		ContentTree: tree,
	}, nil
}
