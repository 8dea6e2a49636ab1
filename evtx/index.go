package evtx

import (
	"encoding/json"
	"os"
)

// ChunkIndexEntry is one chunk's record-range metadata, as kept in the
// advisory sidecar index (§6). Persisted state is never a correctness
// dependency: Open and Events never read the index and always parse the
// file itself.
type ChunkIndexEntry struct {
	ChunkOffset          int    `json:"chunkOffset"`
	LogFirstRecordNumber uint64 `json:"logFirstRecordNumber"`
	LogLastRecordNumber  uint64 `json:"logLastRecordNumber"`
	NextRecordOffset     uint32 `json:"nextRecordOffset"`
}

// FileIndex is the full sidecar document for one EVTX file.
type FileIndex struct {
	Path   string            `json:"path"`
	Chunks []ChunkIndexEntry `json:"chunks"`
}

// BuildFileIndex scans fh's chunks and produces the advisory metadata
// without parsing any record bodies.
func BuildFileIndex(path string, fh *FileHeader) (*FileIndex, error) {
	chunks, err := fh.Chunks(false)
	if err != nil {
		return nil, err
	}
	idx := &FileIndex{Path: path}
	for _, ch := range chunks {
		idx.Chunks = append(idx.Chunks, ChunkIndexEntry{
			ChunkOffset:          ch.Offset,
			LogFirstRecordNumber: ch.LogFirstRecordNumber,
			LogLastRecordNumber:  ch.LogLastRecordNumber,
			NextRecordOffset:     ch.NextRecordOffset,
		})
	}
	return idx, nil
}

// WriteFileIndex writes idx as pretty JSON to sidecarPath.
func WriteFileIndex(sidecarPath string, idx *FileIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return wrapf(KindIO, err, "marshal index for %s", idx.Path)
	}
	if err := os.WriteFile(sidecarPath, data, 0o644); err != nil {
		return wrapf(KindIO, err, "write index %s", sidecarPath)
	}
	return nil
}

// ReadFileIndex loads a previously written sidecar index, or (nilIdx, nil)
// if the path does not exist — callers treat that as "no index available".
func ReadFileIndex(sidecarPath string) (*FileIndex, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapf(KindIO, err, "read index %s", sidecarPath)
	}
	var idx FileIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, wrapf(KindIO, err, "parse index %s", sidecarPath)
	}
	return &idx, nil
}
