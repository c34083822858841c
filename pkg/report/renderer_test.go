package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/testrail"
)

func TestHTMLRendererWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	r := &HTMLRenderer{OutputDir: dir}

	data := &Data{
		ProjectID:   7,
		Plan:        &testrail.Plan{ID: 241, Name: "Release 2.4"},
		GeneratedAt: time.Now(),
		Runs: []RunData{{
			Run: testrail.Run{ID: 101, Name: "Regression A", PassedCount: 48, FailedCount: 2},
			Tests: []TestRow{{
				Test:         testrail.Test{Title: "login works"},
				StatusName:   "Passed",
				PriorityName: "Medium",
				AssigneeName: "Dana",
			}},
			Attachments: []AttachmentData{
				{Meta: testrail.Attachment{ID: "att-1", Name: "screenshot.png"}, Bytes: []byte("x")},
				{Meta: testrail.Attachment{ID: "att-2", Name: "log.txt"}, Failed: true},
			},
		}},
	}

	path, err := r.Render(data)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "report_p7_"))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(body)
	assert.Contains(t, html, "Release 2.4")
	assert.Contains(t, html, "Regression A")
	assert.Contains(t, html, "login works")
	assert.Contains(t, html, "Passed: 48")
	assert.Contains(t, html, "log.txt (unavailable)")
}

func TestHTMLRendererEscapesMarkup(t *testing.T) {
	r := &HTMLRenderer{OutputDir: t.TempDir()}

	data := &Data{
		ProjectID:   1,
		GeneratedAt: time.Now(),
		Runs: []RunData{{
			Run: testrail.Run{ID: 1, Name: "run"},
			Tests: []TestRow{{
				Test: testrail.Test{Title: "<script>alert(1)</script>"},
			}},
		}},
	}

	path, err := r.Render(data)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "<script>alert(1)</script>")
	assert.Contains(t, string(body), "&lt;script&gt;")
}
