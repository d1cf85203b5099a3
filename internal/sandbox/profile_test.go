package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		name     string
		language string
		want     string
		wantErr  bool
	}{{
		name:     "should resolve python",
		language: "python",
		want:     "python",
	}, {
		name:     "should resolve regardless of case",
		language: "Java",
		want:     "java",
	}, {
		name:     "should resolve regardless of surrounding whitespace",
		language: "  cpp  ",
		want:     "cpp",
	}, {
		name:     "should reject languages outside the supported set",
		language: "ruby",
		wantErr:  true,
	}, {
		name:     "should reject the empty language",
		language: "",
		wantErr:  true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := ResolveLanguage(tt.language)

			if tt.wantErr {
				assert.Nil(t, profile)
				assert.ErrorAs(t, err, &UnsupportedLanguageError{})
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, profile.Language)
		})
	}
}

func TestLanguageProfileCompiled(t *testing.T) {
	tests := []struct {
		language string
		compiled bool
	}{
		{"python", false},
		{"java", true},
		{"c", true},
		{"cpp", true},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			profile, err := ResolveLanguage(tt.language)

			assert.NoError(t, err)
			assert.Equal(t, tt.compiled, profile.Compiled())
		})
	}
}

func TestNeedsInput(t *testing.T) {
	tests := []struct {
		name     string
		language string
		source   string
		want     bool
	}{{
		name:     "should detect the python input builtin",
		language: "python",
		source:   "name = input()\nprint(name)",
		want:     true,
	}, {
		name:     "should not flag plain python output",
		language: "python",
		source:   "print('hello')",
		want:     false,
	}, {
		name:     "should detect a java scanner",
		language: "java",
		source:   "Scanner in = new Scanner(System.in);",
		want:     true,
	}, {
		name:     "should detect c scanf",
		language: "c",
		source:   "int n; scanf(\"%d\", &n);",
		want:     true,
	}, {
		name:     "should detect cpp stream extraction",
		language: "cpp",
		source:   "int n; std::cin >> n;",
		want:     true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := ResolveLanguage(tt.language)

			assert.NoError(t, err)
			assert.Equal(t, tt.want, NeedsInput(tt.source, profile))
		})
	}
}
