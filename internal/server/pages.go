package server

import (
	"net/url"
	"strings"

	"github.com/morezero/actions-dispatcher/pkg/registry"
)

// openAPI3 types for generating specs from the catalogue.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// responseSchema is the dispatch envelope with the action's output schema as its result.
func responseSchema(output map[string]interface{}) map[string]interface{} {
	if output == nil {
		output = map[string]interface{}{"type": "object"}
	}
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"request_id", "status"},
		"properties": map[string]interface{}{
			"request_id":        map[string]interface{}{"type": "string"},
			"status":            map[string]interface{}{"type": "string", "enum": []string{"Success", "Fail"}},
			"formatted_message": map[string]interface{}{"type": "string"},
			"structured_result": map[string]interface{}{"type": "object"},
			"result":            output,
			"error_message":     map[string]interface{}{"type": "string"},
			"error_type":        map[string]interface{}{"type": "string"},
		},
	}
}

// operationID turns an action name such as "Get repo information" into get_repo_information.
func operationID(system, name string) string {
	id := strings.ToLower(system + "_" + name)
	return strings.Join(strings.Fields(id), "_")
}

// buildOpenAPISpec builds an OpenAPI 3.0 document for one system, one path per action.
// The request body is the action's input_data.
func buildOpenAPISpec(sd *registry.SystemDescription, description, version string) *openAPI3Spec {
	paths := make(map[string]openAPI3PathItem)
	for _, a := range sd.Actions {
		inputSchema := a.InputSchema
		if inputSchema == nil {
			inputSchema = map[string]interface{}{"type": "object"}
		}
		paths["/"+url.PathEscape(a.Action)] = openAPI3PathItem{
			Post: &openAPI3Operation{
				Summary:     a.Action,
				Description: a.Description,
				OperationID: operationID(sd.Name, a.Action),
				RequestBody: &openAPI3RequestBody{
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: inputSchema},
					},
				},
				Responses: map[string]openAPI3Response{
					"200": {
						Description: "Dispatch envelope",
						Content: map[string]openAPI3MediaType{
							"application/json": {Schema: responseSchema(a.OutputSchema)},
						},
					},
				},
			},
		}
	}
	if description == "" {
		description = "Actions of system " + sd.Name
	}
	if version == "" {
		version = "1.0.0"
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       sd.Name,
			Description: description,
			Version:     version,
		},
		Paths: paths,
	}
}

// homePageTemplate is the HTML for the catalogue home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Actions Dispatcher</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    .status-Success { color: #0066cc; }
    .status-Fail { color: #cc0000; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Actions Dispatcher</h1>
  <p class="meta">Registered systems and actions{{if .Manifest}} from manifest {{.Manifest}}{{end}}.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{range $name, $result := .Health.Checks}}
    <p>{{$name}}: {{if eq $result "ok"}}<span class="stat">OK</span>{{else}}<span class="error">{{$result}}</span>{{end}}</p>
    {{end}}
    <p>Registered actions: <span class="stat">{{.Health.Actions}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Systems</h2>
    {{if not .Systems}}
    <p>No actions registered.</p>
    {{else}}
    {{range .Systems}}
    <h3>{{.Name}}</h3>
    {{if .Description}}<p class="meta">{{.Description}}</p>{{end}}
    <p><a href="/system/{{pathEscape .Name}}/docs">View API (Swagger)</a></p>
    <table>
      <thead>
        <tr><th>Action</th><th>Required input</th><th>Formatter</th></tr>
      </thead>
      <tbody>
        {{$system := .Name}}
        {{range .Actions}}
        <tr>
          <td><a href="/action/{{pathEscape $system}}/{{pathEscape .Action}}">{{.Action}}</a></td>
          <td>{{range .InputSchema.required}}{{.}} {{end}}</td>
          <td>{{if .Formatted}}custom{{else}}default{{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
    {{end}}
  </section>

  {{if or .Recent .RecentError .Counts}}
  <section>
    <h2>Recent invocations</h2>
    {{if .Counts}}<p>{{range $status, $n := .Counts}}{{$status}}: <span class="stat">{{$n}}</span> {{end}}</p>{{end}}
    {{if .RecentError}}
    <p class="error">Could not load invocations: {{.RecentError}}</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Time</th><th>System</th><th>Action</th><th>Status</th><th>Duration (ms)</th><th>Error</th></tr>
      </thead>
      <tbody>
        {{range .Recent}}
        <tr>
          <td>{{.Timestamp}}</td>
          <td>{{.SystemName}}</td>
          <td>{{.ActionName}}</td>
          <td class="status-{{.Status}}">{{.Status}}</td>
          <td>{{.DurationMs}}</td>
          <td>{{.ErrorType}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
  {{end}}
</body>
</html>
`

// actionDetailPageTemplate is the HTML for a single action's contracts.
const actionDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Describe.System}} / {{.Describe.Action}} – Actions Dispatcher</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; width: 140px; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 0.5rem; }
    section { margin-bottom: 2rem; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; font-size: 0.85rem; margin: 0.25rem 0; border: 1px solid #eee; }
    .back { margin-bottom: 1rem; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to catalogue</a></p>
  <h1>{{.Describe.Action}}</h1>
  {{if .Describe.Description}}<p class="meta">{{.Describe.Description}}</p>{{end}}

  <section>
    <h2>Details</h2>
    <table>
      <tr><th>System</th><td><a href="/system/{{pathEscape .Describe.System}}/docs">{{.Describe.System}}</a></td></tr>
      <tr><th>Action</th><td>{{.Describe.Action}}</td></tr>
      <tr><th>Formatter</th><td>{{if .Describe.Formatted}}custom{{else}}default (JSON rendering){{end}}</td></tr>
    </table>
  </section>

  <section>
    <h2>Input contract</h2>
    <pre>{{json .Describe.InputSchema}}</pre>
  </section>

  {{if .Describe.OutputSchema}}
  <section>
    <h2>Output contract</h2>
    <pre>{{json .Describe.OutputSchema}}</pre>
  </section>
  {{end}}
</body>
</html>
`

// swaggerUIPage is the HTML that embeds Swagger UI from CDN and loads the OpenAPI spec.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – {{.System}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`
