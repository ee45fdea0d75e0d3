package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var packetTemplate = template.Must(template.New("packet").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"safeHTML": func(s string) template.HTML {
		return template.HTML(s)
	},
	"join": strings.Join,
}).Parse(packetTemplateHTML))

// TemplateData holds data for packet template rendering
type TemplateData struct {
	TraineeName string
	GMCNumber   string
	GeneratedAt time.Time
	Evidence    []TemplateEvidence
	Links       []LinkRow
	SIAs        []SIARow
}

// TemplateEvidence holds one evidence item with its payload pre-rendered.
type TemplateEvidence struct {
	ID          string
	Title       string
	FormType    string
	Status      string
	Level       string
	CreatedAt   time.Time
	PayloadHTML string
}

// RenderPacketHTML renders the packet template with provided data
func RenderPacketHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := packetTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const packetTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>ARCP Evidence Packet - {{.TraineeName}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .evidence { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; page-break-inside: avoid; }
    .evidence .status { color: #666; font-size: 0.9em; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
    dl dt { font-weight: bold; }
    dl dd { margin: 0 0 0.5rem 0; }
  </style>
</head>
<body>
  <h1>ARCP Evidence Packet</h1>
  <div class="meta">{{.TraineeName}}{{if .GMCNumber}} | GMC {{.GMCNumber}}{{end}} | Generated {{formatDate .GeneratedAt "Jan 2, 2006"}}</div>

  <h2>Evidence</h2>
  {{range .Evidence}}
  <div class="evidence">
    <h3>{{.Title}}</h3>
    <div class="status">{{.FormType}}{{if .Level}} (Level {{.Level}}){{end}} | {{.Status}} | {{formatDate .CreatedAt "Jan 2, 2006"}}</div>
    {{.PayloadHTML | safeHTML}}
  </div>
  {{else}}
  <p>No evidence recorded.</p>
  {{end}}

  {{if .Links}}
  <h2>Curriculum Links</h2>
  <table>
    <tr><th>Requirement</th><th>Evidence</th></tr>
    {{range .Links}}
    <tr><td>{{.RequirementKey}}</td><td>{{join .EvidenceIDs ", "}}</td></tr>
    {{end}}
  </table>
  {{end}}

  {{if .SIAs}}
  <h2>Specialist Interest Areas</h2>
  <table>
    <tr><th>Specialty</th><th>Level</th><th>Supervisor</th><th>Initials</th></tr>
    {{range .SIAs}}
    <tr><td>{{.Specialty}}</td><td>{{.Level}}</td><td>{{.SupervisorName}}</td><td>{{.SupervisorInitials}}</td></tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>`
