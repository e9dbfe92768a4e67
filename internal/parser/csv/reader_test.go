package csv

import (
	"io"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogetl/internal/catalog"
)

const sample = `show_id,type,title,director,cast,country,date_added,release_year,rating,duration,listed_in,description
s1,Movie,Dick Johnson Is Dead,Kirsten Johnson,,United States,"September 25, 2021",2020,PG-13,90 min,Documentaries,"A film, with a comma"
s2,TV Show,Blood & Water,,"Ama Qamata, Khosi Ngema",South Africa,"September 24, 2021",2021,TV-MA,2 Seasons,"International TV Shows, TV Dramas",Cape Town teens
s3,TV Show,Ganglands,Julien Leclercq,Sami Bouajila,,"September 24, 2021",2021,TV-MA,1 Season,Crime TV Shows,Heist
`

func readAll(t *testing.T, r *Reader, n int) []catalog.RawRecord {
	t.Helper()
	var out []catalog.RawRecord
	for {
		batch, err := r.Next(n)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		require.LessOrEqual(t, len(batch), n)
		out = append(out, batch...)
	}
}

func TestReader_DecodesBatches(t *testing.T) {
	r, err := NewReader(strings.NewReader(sample), Options{})
	require.NoError(t, err)
	assert.Empty(t, r.Missing())

	first, err := r.Next(2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "s1", first[0].ShowID)
	assert.Equal(t, "A film, with a comma", first[0].Description)
	assert.Equal(t, 2, first[0].Line)
	assert.Equal(t, "Ama Qamata, Khosi Ngema", first[1].Cast)

	second, err := r.Next(2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "s3", second[0].ShowID)
	assert.Equal(t, 4, second[0].Line)

	_, err = r.Next(2)
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, 3, r.Rows())
}

func TestReader_MissingColumnsDegrade(t *testing.T) {
	in := "Show ID,Title\ns1,Alpha\n"
	r, err := NewReader(strings.NewReader(in), Options{})
	require.NoError(t, err)
	assert.Contains(t, r.Missing(), "cast")
	assert.Contains(t, r.Missing(), "listed_in")
	assert.NotContains(t, r.Missing(), "show_id")

	recs := readAll(t, r, 10)
	require.Len(t, recs, 1)
	assert.Equal(t, "s1", recs[0].ShowID)
	assert.Equal(t, "Alpha", recs[0].Title)
	assert.Empty(t, recs[0].Cast)
}

func TestReader_SoftErrorsAreSkipped(t *testing.T) {
	in := "show_id,title\n" +
		"s1,ok\n" +
		"s2,too,many\n" +
		"s3,bad\"quote\n" +
		"s4,fine\n"

	var lines []int
	r, err := NewReader(strings.NewReader(in), Options{OnError: func(line int, _ error) {
		lines = append(lines, line)
	}})
	require.NoError(t, err)

	recs := readAll(t, r, 10)
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ShowID)
	}
	assert.Equal(t, []string{"s1", "s4"}, ids)
	assert.Equal(t, 2, r.ParseErrors())
	assert.Equal(t, []int{3, 4}, lines)
}

func TestReader_CustomDelimiter(t *testing.T) {
	in := "show_id;title\ns1;Alpha, Beta\n"
	r, err := NewReader(strings.NewReader(in), Options{Comma: ';'})
	require.NoError(t, err)
	recs := readAll(t, r, 1)
	require.Len(t, recs, 1)
	assert.Equal(t, "Alpha, Beta", recs[0].Title)
}

func TestReader_EmptySource(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), Options{})
	assert.True(t, errors.Is(err, ErrEmptySource))
}

func TestReader_InvalidBatchSize(t *testing.T) {
	r, err := NewReader(strings.NewReader(sample), Options{})
	require.NoError(t, err)
	_, err = r.Next(0)
	assert.Error(t, err)
}
