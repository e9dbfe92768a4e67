package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"catalogetl/internal/storage"
	"catalogetl/internal/storage/sqlite"
)

// syntheticCatalog returns n distinct titles drawing on small shared pools of
// genres, people and countries so the lookup tables stay realistic.
func syntheticCatalog(n int) string {
	genres := []string{"Dramas", "Comedies", "Documentaries", "International Movies", "Thrillers"}
	people := []string{"Ama Qamata", "Khosi Ngema", "Kofi Ghanaba", "Oyafunmike Ogunlano", "Kirsten Johnson", "Haile Gerima"}
	countries := []string{"United States", "India", "Ghana", "South Africa"}

	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "s%d,Movie,Title %d,%s,\"%s, %s\",\"%s, %s\",\"September %d, 2021\",%d,TV-MA,%d min,\"%s, %s\",Synthetic row.\n",
			i, i,
			people[i%len(people)],
			people[(i+1)%len(people)], people[(i+2)%len(people)],
			countries[i%len(countries)], countries[(i+1)%len(countries)],
			i%28+1, 1950+i%70, 60+i%90,
			genres[i%len(genres)], genres[(i+3)%len(genres)],
		)
	}
	return b.String()
}

// BenchmarkRun measures a full run (schema, load, quality gate, profile)
// into a fresh SQLite file per iteration.
//
//	go test ./internal/pipeline -run=^$ -bench ^BenchmarkRun$ -benchmem
func BenchmarkRun(b *testing.B) {
	const rows = 2000
	dir := b.TempDir()
	src := filepath.Join(dir, "titles.csv")
	if err := os.WriteFile(src, []byte(syntheticCatalog(rows)), 0o600); err != nil {
		b.Fatal(err)
	}

	for _, batch := range []int{100, 1000} {
		b.Run(fmt.Sprintf("batch=%d", batch), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				cfg := storage.Config{
					Kind: sqlite.Kind,
					DSN:  "file:" + filepath.Join(dir, fmt.Sprintf("bench-%d-%d.db", batch, i)),
				}
				b.StartTimer()

				sum, err := Run(context.Background(), Options{SourcePath: src, Store: cfg, BatchSize: batch})
				if err != nil {
					b.Fatalf("Run: %v", err)
				}
				if sum.RowsLoaded != rows {
					b.Fatalf("loaded %d rows, want %d", sum.RowsLoaded, rows)
				}
			}
			b.ReportMetric(float64(rows), "rows/op")
		})
	}
}
