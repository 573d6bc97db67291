package normalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"plain host", "example.com/x", "example.com/x"},
		{"http scheme", "http://example.com/x", "example.com/x"},
		{"https scheme", "https://example.com/x", "example.com/x"},
		{"upper case scheme and host", "HTTPS://Example.com/x/", "example.com/x"},
		{"trailing slashes", "example.com/x///", "example.com/x"},
		{"surrounding whitespace", "  https://example.com/x \n", "example.com/x"},
		{"query preserved", "https://example.com/x?v=1", "example.com/x?v=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, URL(tt.in))
		})
	}
}

// Variants of the same address must collapse to one dedup key.
func TestURLEquivalenceClass(t *testing.T) {
	variants := []string{
		"HTTPS://Example.com/x/",
		"example.com/x",
		"http://example.com/x",
		"https://example.com/x",
		"  example.com/x/  ",
	}
	want := URL(variants[0])
	for _, v := range variants {
		assert.Equal(t, want, URL(v), "variant %q", v)
	}
}

func TestProperty_URLNormalization(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("normalization is idempotent", prop.ForAll(
		func(raw string) bool {
			once := URL(raw)
			return URL(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("scheme never survives", prop.ForAll(
		func(host string) bool {
			plain := URL(host)
			return URL("http://"+host) == plain && URL("https://"+host) == plain
		},
		gen.AlphaString(),
	))

	properties.Property("output never ends with a slash", prop.ForAll(
		func(raw string) bool {
			out := URL(raw)
			return len(out) == 0 || out[len(out)-1] != '/'
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
