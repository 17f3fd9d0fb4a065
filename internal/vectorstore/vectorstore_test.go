package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchResult_Document(t *testing.T) {
	result := SearchResult{
		ID:         "c1",
		DocumentID: "d1",
		Content:    "Gen Z shoppers compare prices on mobile.",
		Score:      0.25,
		Metadata:   map[string]string{"source": "survey-2024"},
	}

	doc := result.Document()

	assert.Equal(t, result.Content, doc.PageContent)
	assert.Equal(t, "survey-2024", doc.Metadata["source"])
	assert.Equal(t, "c1", doc.Metadata[MetaChunkID])
	assert.Equal(t, "d1", doc.Metadata[MetaDocumentID])
	assert.Equal(t, "0.25", doc.Metadata[MetaScore])

	// source metadata is not mutated
	_, leaked := result.Metadata[MetaChunkID]
	assert.False(t, leaked)
}
