package dispatch

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"compliance-engine/internal/common/errors"
	"compliance-engine/internal/models"
	"compliance-engine/pkg/registry"
)

// TemplateData is what subject and body templates see.
type TemplateData struct {
	Type            string
	Title           string
	Message         string
	WeekNumber      int
	AllocationID    string
	FacilitatorName string
	ManagerName     string
	ModuleName      string
	CohortName      string
	ClassName       string
	Metadata        map[string]interface{}
}

func NewTemplateData(n *models.Notification) TemplateData {
	return TemplateData{
		Type:            string(n.Type),
		Title:           n.Title,
		Message:         n.Message,
		WeekNumber:      n.WeekNumber(),
		AllocationID:    models.MetadataString(n.Metadata, models.MetaAllocationID),
		FacilitatorName: models.MetadataString(n.Metadata, models.MetaFacilitatorName),
		ManagerName:     models.MetadataString(n.Metadata, models.MetaManagerName),
		ModuleName:      models.MetadataString(n.Metadata, models.MetaModuleName),
		CohortName:      models.MetadataString(n.Metadata, models.MetaCohortName),
		ClassName:       models.MetadataString(n.Metadata, models.MetaClassName),
		Metadata:        n.Metadata,
	}
}

const layout = `<html><body style="font-family: sans-serif">
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
%s
<p style="color: #888">This is an automated message from the course allocation system.</p>
</body></html>`

var defaultTemplates = map[models.NotificationType]registry.Template{
	models.TypeReminder: {
		Subject: `Reminder: week {{.WeekNumber}} activity report due{{if .ModuleName}} for {{.ModuleName}}{{end}}`,
		Body: fmt.Sprintf(layout, `<ul>
<li>Module: {{.ModuleName}}</li>
<li>Cohort: {{.CohortName}}</li>
<li>Class: {{.ClassName}}</li>
<li>Week: {{.WeekNumber}}</li>
</ul>
<p>Please submit your activity report as soon as possible.</p>`),
	},
	models.TypeAlert: {
		Subject: `Alert: {{.FacilitatorName}} has not submitted the week {{.WeekNumber}} activity report`,
		Body: fmt.Sprintf(layout, `<p>Facilitator <strong>{{.FacilitatorName}}</strong> is past the grace period for
{{.ModuleName}}{{if .CohortName}} ({{.CohortName}}){{end}}, week {{.WeekNumber}}.</p>`),
	},
	models.TypeSubmission: {
		Subject: `{{.FacilitatorName}} submitted the week {{.WeekNumber}} activity report`,
		Body:    fmt.Sprintf(layout, `<p>Module: {{.ModuleName}}</p>`),
	},
	models.TypeDeadline: {
		Subject: `Deadline approaching: {{.Title}}`,
		Body:    fmt.Sprintf(layout, ``),
	},
}

type compiledTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Renderer turns a notification into an email subject and HTML body. Bodies
// go through html/template so metadata values are escaped.
type Renderer struct {
	templates map[models.NotificationType]compiledTemplate
}

// NewRenderer compiles the built-in templates, replaced per type by any
// entries in reg. reg may be nil.
func NewRenderer(reg *registry.TemplateRegistry) (*Renderer, error) {
	r := &Renderer{templates: make(map[models.NotificationType]compiledTemplate)}
	for t, tpl := range defaultTemplates {
		if override, ok := reg.Lookup(string(t)); ok {
			tpl = override
		}
		compiled, err := compile(string(t), tpl)
		if err != nil {
			return nil, err
		}
		r.templates[t] = compiled
	}
	return r, nil
}

func compile(name string, tpl registry.Template) (compiledTemplate, error) {
	subject, err := texttemplate.New(name + ".subject").Option("missingkey=zero").Parse(tpl.Subject)
	if err != nil {
		return compiledTemplate{}, fmt.Errorf("template %s subject: %w", name, err)
	}
	body, err := htmltemplate.New(name + ".body").Option("missingkey=zero").Parse(tpl.Body)
	if err != nil {
		return compiledTemplate{}, fmt.Errorf("template %s body: %w", name, err)
	}
	return compiledTemplate{subject: subject, body: body}, nil
}

func (r *Renderer) Render(n *models.Notification) (string, string, error) {
	tpl, ok := r.templates[n.Type]
	if !ok {
		return "", "", errors.NewTemplateNotFoundError(string(n.Type))
	}
	data := NewTemplateData(n)

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return "", "", errors.NewTemplateRenderFailedError(string(n.Type), err)
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return "", "", errors.NewTemplateRenderFailedError(string(n.Type), err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}
