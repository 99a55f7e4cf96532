package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars map[string]string
		want string
	}{
		{
			name: "simple substitution",
			tmpl: "Hello {{name}}, welcome to {{product}}!",
			vars: map[string]string{"name": "Ada", "product": "courierd"},
			want: "Hello Ada, welcome to courierd!",
		},
		{
			name: "unresolved placeholder stays verbatim",
			tmpl: "Hello {{name}}, your code is {{code}}",
			vars: map[string]string{"name": "Ada"},
			want: "Hello Ada, your code is {{code}}",
		},
		{
			name: "no placeholders",
			tmpl: "plain text",
			vars: map[string]string{"name": "Ada"},
			want: "plain text",
		},
		{
			name: "nil vars",
			tmpl: "Hello {{name}}",
			vars: nil,
			want: "Hello {{name}}",
		},
		{
			name: "substituted value is not rescanned",
			tmpl: "Hello {{name}}",
			vars: map[string]string{"name": "{{admin}}", "admin": "root"},
			want: "Hello {{admin}}",
		},
		{
			name: "empty value substitutes empty string",
			tmpl: "[{{v}}]",
			vars: map[string]string{"v": ""},
			want: "[]",
		},
		{
			name: "repeated placeholder",
			tmpl: "{{x}} and {{x}}",
			vars: map[string]string{"x": "1"},
			want: "1 and 1",
		},
		{
			name: "malformed tokens are left alone",
			tmpl: "a {{ spaced }} b {{no-close c {{}} d",
			vars: map[string]string{"spaced": "v", "no": "n"},
			want: "a {{ spaced }} b {{no-close c {{}} d",
		},
		{
			name: "unterminated at end of template",
			tmpl: "tail {{name",
			vars: map[string]string{"name": "Ada"},
			want: "tail {{name",
		},
		{
			name: "adjacent placeholders",
			tmpl: "{{a}}{{b}}",
			vars: map[string]string{"a": "1", "b": "2"},
			want: "12",
		},
		{
			name: "extra brace before a valid placeholder",
			tmpl: "{{{name}}}",
			vars: map[string]string{"name": "x"},
			want: "{x}",
		},
		{
			name: "run of braces around a valid placeholder",
			tmpl: "a {{{{name}}}} b",
			vars: map[string]string{"name": "x"},
			want: "a {{x}} b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.tmpl, tt.vars))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"name", "code"}, Placeholders("Hi {{name}}, code {{code}}, bye {{name}}"))
	assert.Empty(t, Placeholders("no tokens here"))
	assert.Equal(t, []string{"x"}, Placeholders("{{ bad }} {{x}}"))
}
