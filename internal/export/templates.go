package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"sheetkeeper/api/internal/character"
)

var sheetTemplate = template.Must(template.New("sheet").Funcs(template.FuncMap{
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(sheetHTML))

// TemplateData is the view model for the sheet template.
type TemplateData struct {
	Doc         character.Document
	Basic       []TemplateAttribute
	Magic       []TemplateAttribute
	NotesHTML   template.HTML
	History     []template.HTML
	GeneratedAt time.Time
}

type TemplateAttribute struct {
	Key string
	character.Attribute
}

func newTemplateData(doc character.Document, now time.Time) TemplateData {
	data := TemplateData{
		Doc:         doc,
		Basic:       orderedAttributes(doc.BasicAttributes, character.BasicAttributeKeys),
		Magic:       orderedAttributes(doc.MagicAttributes, character.MagicAttributeKeys),
		NotesHTML:   template.HTML(TextToHTML(doc.Notes)),
		GeneratedAt: now,
	}
	for _, entry := range doc.History {
		if entry.Type != character.HistoryTypeText {
			continue
		}
		data.History = append(data.History, template.HTML(TextToHTML(entry.Value)))
	}
	return data
}

func orderedAttributes(group map[string]character.Attribute, keys []string) []TemplateAttribute {
	out := make([]TemplateAttribute, 0, len(keys))
	for _, key := range keys {
		out = append(out, TemplateAttribute{Key: key, Attribute: group[key]})
	}
	return out
}

// RenderSheetHTML renders the character sheet as a standalone page.
func RenderSheetHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := sheetTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const sheetHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Doc.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.4; max-width: 800px; margin: 1.5rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.3rem; margin-bottom: 0.2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 1rem; }
    .portrait { float: right; max-width: 160px; margin-left: 1rem; }
    table { border-collapse: collapse; width: 100%; margin-bottom: 1rem; }
    th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; text-align: left; }
    .deleted { color: #a00; font-weight: bold; }
  </style>
</head>
<body>
  {{if .Doc.PhotoURI}}<img class="portrait" src="{{.Doc.PhotoURI}}" alt="{{.Doc.Name}}">{{end}}
  <h1>{{.Doc.Name}}</h1>
  <div class="meta">
    {{if .Doc.Race}}{{.Doc.Race}} | {{end}}Age {{.Doc.Age}} | Level {{.Doc.Level}} | XP {{.Doc.XP}} | Zeni {{.Doc.Wallet.Zeni}}
    {{if .Doc.Deleted}}<span class="deleted">(deleted)</span>{{end}}
  </div>

  <h2>Main attributes</h2>
  <table>
    <tr><th>Vida</th><td>{{.Doc.MainAttributes.Vida.Current}} / {{.Doc.MainAttributes.Vida.Max}}</td>
        <th>Energia</th><td>{{.Doc.MainAttributes.Energia.Current}} / {{.Doc.MainAttributes.Energia.Max}}</td></tr>
    <tr><th>Iniciativa</th><td>{{.Doc.MainAttributes.Iniciativa}}</td><th>Defesa</th><td>{{.Doc.MainAttributes.Defesa}}</td></tr>
    <tr><th>Esquiva</th><td>{{.Doc.MainAttributes.Esquiva}}</td><th>Bloqueio</th><td>{{.Doc.MainAttributes.Bloqueio}}</td></tr>
  </table>

  {{define "attributes"}}
  <table>
    <tr><th>Attribute</th><th>Base</th><th>Perm.</th><th>Cond.</th><th>Total</th></tr>
    {{range .}}<tr><td>{{title .Key}}</td><td>{{.Base}}</td><td>{{.PermBonus}}</td><td>{{.CondBonus}}</td><td>{{.Total}}</td></tr>
    {{end}}
  </table>
  {{end}}
  <h2>Basic attributes</h2>
  {{template "attributes" .Basic}}
  <h2>Magic attributes</h2>
  {{template "attributes" .Magic}}

  {{if .Doc.Advantages}}<h2>Advantages</h2>
  <ul>{{range .Doc.Advantages}}<li><strong>{{.Name}}</strong> ({{.Value}}){{if .Description}}: {{.Description}}{{end}}</li>{{end}}</ul>{{end}}
  {{if .Doc.Disadvantages}}<h2>Disadvantages</h2>
  <ul>{{range .Doc.Disadvantages}}<li><strong>{{.Name}}</strong> ({{.Value}}){{if .Description}}: {{.Description}}{{end}}</li>{{end}}</ul>{{end}}
  {{if .Doc.Abilities}}<h2>Abilities</h2>
  <ul>{{range .Doc.Abilities}}<li><strong>{{.Title}}</strong>{{if .Description}}: {{.Description}}{{end}}</li>{{end}}</ul>{{end}}
  {{if .Doc.Specializations}}<h2>Specializations</h2>
  <ul>{{range .Doc.Specializations}}<li><strong>{{.Title}}</strong>{{if .Description}}: {{.Description}}{{end}}</li>{{end}}</ul>{{end}}
  {{if .Doc.EquippedItems}}<h2>Equipped</h2>
  <ul>{{range .Doc.EquippedItems}}<li><strong>{{.Name}}</strong>{{if .Description}}: {{.Description}}{{end}}</li>{{end}}</ul>{{end}}
  {{if .Doc.Inventory}}<h2>Inventory</h2>
  <ul>{{range .Doc.Inventory}}<li><strong>{{.Name}}</strong>{{if .Description}}: {{.Description}}{{end}}</li>{{end}}</ul>{{end}}

  {{if .NotesHTML}}<h2>Notes</h2>
  <div>{{.NotesHTML}}</div>{{end}}
  {{if .History}}<h2>History</h2>
  {{range .History}}<section>{{.}}</section>{{end}}{{end}}

  <div class="meta">Generated {{formatDate .GeneratedAt "Jan 2, 2006 15:04"}}</div>
</body>
</html>`
