package handlers

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openapiSpec []byte

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>DCIMS API Docs{{with .Version}} ({{.}}){{end}}</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/openapi.yaml",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
      deepLinking: true,
    });
  </script>
</body>
</html>`))

// Docs serves the DCIMS OpenAPI document and the Swagger UI page that
// renders it.
type Docs struct {
	spec []byte
	page []byte
}

// NewDocs prepares the docs for one build. A non-empty version replaces
// info.version in the document and is shown in the page title. If the
// document cannot be stamped, the embedded one is served and the error is
// returned alongside.
func NewDocs(version string) (*Docs, error) {
	var page bytes.Buffer
	if err := docsPage.Execute(&page, struct{ Version string }{version}); err != nil {
		return nil, err
	}
	d := &Docs{spec: openapiSpec, page: page.Bytes()}
	if version == "" {
		return d, nil
	}
	spec, err := stampVersion(openapiSpec, version)
	if err != nil {
		return d, fmt.Errorf("stamp openapi version: %w", err)
	}
	d.spec = spec
	return d, nil
}

// Spec handles GET /openapi.yaml.
func (d *Docs) Spec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(d.spec)
}

// Page handles GET /docs.
func (d *Docs) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(d.page)
}

// stampVersion sets info.version in an OpenAPI document. Key order and
// comments survive the round trip through yaml.Node.
func stampVersion(doc []byte, version string) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, errors.New("empty document")
	}
	v := mappingValue(mappingValue(root.Content[0], "info"), "version")
	if v == nil {
		return nil, errors.New("info.version not found")
	}
	v.Value = version
	v.Tag = "!!str"

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
