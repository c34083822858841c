package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// Renderer turns a fully aggregated dataset into a persisted artifact and
// returns its path. The rendering detail is a collaborator concern; the
// pipeline only depends on this boundary.
type Renderer interface {
	Render(data *Data) (string, error)
}

// HTMLRenderer writes a self-contained HTML summary under OutputDir.
type HTMLRenderer struct {
	OutputDir string
}

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Test Report</title></head>
<body>
<h1>Test Report{{if .Plan}}: {{.Plan.Name}}{{end}}</h1>
<p>Project {{.ProjectID}}, generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
{{range .Runs}}
<h2>{{.Run.Name}} (run {{.Run.ID}})</h2>
<p>Passed: {{.Run.PassedCount}}, Failed: {{.Run.FailedCount}}, Blocked: {{.Run.BlockedCount}}, Retest: {{.Run.RetestCount}}, Untested: {{.Run.UntestedCount}}</p>
<table border="1" cellspacing="0" cellpadding="4">
<tr><th>Test</th><th>Status</th><th>Priority</th><th>Assignee</th></tr>
{{range .Tests}}<tr><td>{{.Test.Title}}</td><td>{{.StatusName}}</td><td>{{.PriorityName}}</td><td>{{.AssigneeName}}</td></tr>
{{end}}</table>
{{if .Attachments}}<h3>Attachments</h3><ul>
{{range .Attachments}}<li>{{.Meta.Name}}{{if .Failed}} (unavailable){{end}}</li>
{{end}}</ul>{{end}}
{{end}}
</body>
</html>
`))

// Render writes the report file and returns its path.
func (r *HTMLRenderer) Render(data *Data) (string, error) {
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	name := fmt.Sprintf("report_p%d_%s.html", data.ProjectID, time.Now().Format("20060102_150405"))
	path := filepath.Join(r.OutputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := reportTmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("execute report template: %w", err)
	}
	return path, nil
}
