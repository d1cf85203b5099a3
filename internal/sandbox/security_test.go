package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name     string
		language string
		source   string
		wantRule string
	}{{
		name:     "should allow plain python",
		language: "python",
		source:   "print('hello world')",
	}, {
		name:     "should reject a python os import",
		language: "python",
		source:   "import os\nprint(os.listdir('/'))",
		wantRule: "import os",
	}, {
		name:     "should reject python dunder import",
		language: "python",
		source:   "__import__('os').system('ls')",
		wantRule: "__import__",
	}, {
		name:     "should reject python file access",
		language: "python",
		source:   "data = open('/etc/passwd').read()",
		wantRule: "open(",
	}, {
		name:     "should reject java process creation",
		language: "java",
		source:   "new ProcessBuilder(\"ls\").start();",
		wantRule: "ProcessBuilder",
	}, {
		name:     "should reject java reflection",
		language: "java",
		source:   "Class.forName(\"java.lang.Runtime\");",
		wantRule: "java.lang.Runtime",
	}, {
		name:     "should reject c system calls",
		language: "c",
		source:   "#include <stdio.h>\nint main() { system(\"ls\"); }",
		wantRule: "system(",
	}, {
		name:     "should reject cpp file streams",
		language: "cpp",
		source:   "#include <fstream>\nint main() {}",
		wantRule: "fstream",
	}, {
		name:     "should not match python rules against c source",
		language: "c",
		source:   "#include <stdio.h>\nint main() { printf(\"import os\"); }",
		wantRule: "",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := ResolveLanguage(tt.language)
			assert.NoError(t, err)

			violation := Scan(tt.source, profile)

			if tt.wantRule == "" {
				assert.Nil(t, violation)
				return
			}

			assert.NotNil(t, violation)
			assert.Equal(t, tt.wantRule, violation.Rule)
			assert.Contains(t, violation.Error(), tt.wantRule)
		})
	}
}

func TestScanInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantRule string
	}{{
		name:  "should allow a plain value",
		input: "42",
	}, {
		name:  "should allow the empty value",
		input: "",
	}, {
		name:  "should allow horizontal tabs",
		input: "a\tb",
	}, {
		name:  "should allow a value at the length limit",
		input: strings.Repeat("a", MaxInputLength),
	}, {
		name:     "should reject a value over the length limit",
		input:    strings.Repeat("a", MaxInputLength+1),
		wantRule: "max-input-length",
	}, {
		name:     "should reject embedded newlines",
		input:    "first\nsecond",
		wantRule: "control-characters",
	}, {
		name:     "should reject null bytes",
		input:    "a\x00b",
		wantRule: "control-characters",
	}, {
		name:     "should reject escape sequences",
		input:    "\x1b[31mred",
		wantRule: "control-characters",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violation := ScanInput(tt.input)

			if tt.wantRule == "" {
				assert.Nil(t, violation)
				return
			}

			assert.NotNil(t, violation)
			assert.Equal(t, tt.wantRule, violation.Rule)
		})
	}
}
