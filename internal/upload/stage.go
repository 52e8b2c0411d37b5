package upload

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/asaifulas/ragcrawler/internal/core/vectorindex"
	"github.com/asaifulas/ragcrawler/internal/models"
)

// DatapointsFor converts embedded records into index datapoints. Every
// non-empty metadata field becomes a single-value restrict so the query side
// can reconstruct the chunk without a second store.
func DatapointsFor(records []models.VectorRecord) []vectorindex.Datapoint {
	points := make([]vectorindex.Datapoint, 0, len(records))
	for _, r := range records {
		points = append(points, vectorindex.Datapoint{
			DatapointID:   r.ID,
			FeatureVector: r.Embedding,
			Restricts:     restrictsFor(r.Metadata),
		})
	}
	return points
}

func restrictsFor(m models.RecordMetadata) []vectorindex.Restrict {
	fields := []struct {
		namespace string
		value     string
	}{
		{"text", m.Text},
		{"url", m.URL},
		{"page", fmt.Sprintf("%d", m.Page)},
		{"source_type", m.SourceType},
		{"source_url", m.SourceURL},
		{"description", m.Description},
		{"local_source", m.LocalSource},
		{"pdf_url", m.PDFURL},
	}
	var out []vectorindex.Restrict
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		out = append(out, vectorindex.Restrict{Namespace: f.namespace, AllowList: []string{f.value}})
	}
	return out
}

// EncodeNDJSON writes one datapoint per line, the format the batch import
// worker reads back from object storage.
func EncodeNDJSON(w io.Writer, points []vectorindex.Datapoint) error {
	enc := json.NewEncoder(w)
	for i := range points {
		if err := enc.Encode(&points[i]); err != nil {
			return fmt.Errorf("encode datapoint %s: %w", points[i].DatapointID, err)
		}
	}
	return nil
}
