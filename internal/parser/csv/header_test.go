package csv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldHeader(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "show_id", want: "show_id"},
		{in: "\uFEFFshow_id", want: "show_id"},
		{in: " Show ID ", want: "show_id"},
		{in: "Listed In", want: "listed_in"},
		{in: "listed-in", want: "listed_in"},
		{in: "release.year", want: "release_year"},
		{in: "País", want: "pais"},
		{in: "date  added", want: "date_added"},
		{in: "cast (main)", want: "cast_main"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldHeader(tt.in))
		})
	}
}

func TestFoldHeaders_DoesNotMutate(t *testing.T) {
	in := []string{"Show ID", "Title"}
	out := FoldHeaders(in)
	assert.Equal(t, []string{"show_id", "title"}, out)
	assert.Equal(t, []string{"Show ID", "Title"}, in)
}
