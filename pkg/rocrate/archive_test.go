package rocrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveZipContainsMetadataAndPayload(t *testing.T) {
	g := NewGraph()
	g.Put(NewEntity(KindFile, "query.json", "File"))

	archive := &Archive{
		Graph: g,
		Files: []File{{Name: "query.json", Data: []byte(`{"task_id":"job-1"}`)}},
	}
	data, err := archive.Bytes()
	require.NoError(t, err)

	read, err := ReadZip(data)
	require.NoError(t, err)
	assert.True(t, read.Graph.Has("query.json"))
	require.Len(t, read.Files, 1)
	assert.Equal(t, "query.json", read.Files[0].Name)
	assert.Equal(t, `{"task_id":"job-1"}`, string(read.Files[0].Data))
}

func TestArchiveRejectsBadPayloadNames(t *testing.T) {
	tests := []struct {
		name  string
		files []File
	}{
		{"shadows metadata", []File{{Name: MetadataID}}},
		{"duplicate", []File{{Name: "a.json"}, {Name: "./a.json"}}},
		{"parent dir", []File{{Name: "../escape.json"}}},
		{"absolute", []File{{Name: "/etc/passwd"}}},
		{"empty", []File{{Name: ""}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			archive := &Archive{Graph: NewGraph(), Files: tc.files}
			_, err := archive.Bytes()
			require.Error(t, err)
		})
	}
}

func TestReadZipRequiresMetadata(t *testing.T) {
	_, err := ReadZip([]byte("not a zip"))
	require.Error(t, err)
}
