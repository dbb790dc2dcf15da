package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("hello world\n"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	if err != nil || got != "hello world" {
		t.Fatalf("got %q, err=%v", got, err)
	}
}

func TestGetSimpleTextEOF(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("lastline"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	if err != nil || got != "lastline" {
		t.Fatalf("got %q, err=%v", got, err)
	}
}

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "\n", []string{}},
		{"two lines", "name=North\ncapacity=500\n\n", []string{"name=North", "capacity=500"}},
		{"eof without blank line", "name=North", []string{"name=North"}},
		{"crlf", "a=1\r\n\r\n", []string{"a=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := GetFields(rdr(tt.input), &out)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Contains(t, out.String(), "name=value")
		})
	}
}

func TestParseFields(t *testing.T) {
	got, err := ParseFields([]string{"name=North Silo", "capacity=500", "active=true", "note=null", "code=007x", "empty="})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"name":     "North Silo",
		"capacity": 500.0,
		"active":   true,
		"note":     nil,
		"code":     "007x",
		"empty":    "",
	}, got)

	_, err = ParseFields([]string{"novalue"})
	require.Error(t, err)
	_, err = ParseFields([]string{"=x"})
	require.Error(t, err)
}
