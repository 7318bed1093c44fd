// Package dockerfile renders Dockerfile text from templates. Rendering is
// pure: the same template and context always produce byte-identical output,
// and the renderer never touches the clock or the file system.
package dockerfile

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/KarrLab/wc-env/pkg/config"
)

// RenderContext carries everything the derived-image template may reference.
// It borrows from Settings for the duration of one render call.
type RenderContext struct {
	// Repo and Tags identify the base image; the FROM line uses Tags[0],
	// the primary tag.
	Repo string
	Tags []string

	PythonVersion string

	// RequirementsFileName is the in-image path of the requirements
	// artifact. Empty means no package-install line is emitted.
	RequirementsFileName string

	PathsToCopy []config.CopyPath
}

// TemplateError reports a template that failed to parse or referenced an
// undefined placeholder.
type TemplateError struct {
	Err error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("dockerfile template: %v", e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// DefaultTemplate builds a modeling environment image on top of the base
// image: copy configuration and credentials in, trust github.com, install
// the Python package list, and default to the wc-cli entrypoint.
const DefaultTemplate = `FROM {{ .Repo }}:{{ index .Tags 0 }}

{{ range .PathsToCopy }}COPY {{ .Host }} {{ .Image }}
{{ end }}
RUN chmod 0600 /root/.ssh/id_rsa \
    && ssh-keygen -R github.com -f /root/.ssh/known_hosts 2>/dev/null || true \
    && ssh-keyscan github.com >> /root/.ssh/known_hosts
{{ if .RequirementsFileName }}
RUN pip{{ .PythonVersion }} install -U -r {{ .RequirementsFileName }}
{{ end }}
ENTRYPOINT ["wc-cli"]
CMD []
`

// Render executes templateText against a typed context.
func Render(templateText string, context RenderContext) (string, error) {
	t, err := template.New("dockerfile").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(templateText)
	if err != nil {
		return "", &TemplateError{Err: err}
	}

	var output bytes.Buffer
	if err := t.Execute(&output, context); err != nil {
		return "", &TemplateError{Err: err}
	}
	return output.String(), nil
}

// RenderMap executes templateText against free-form arguments. The base
// image template takes its build args this way.
func RenderMap(templateText string, args map[string]interface{}) (string, error) {
	t, err := template.New("dockerfile").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(templateText)
	if err != nil {
		return "", &TemplateError{Err: err}
	}

	var output bytes.Buffer
	if err := t.Execute(&output, args); err != nil {
		return "", &TemplateError{Err: err}
	}
	return output.String(), nil
}
