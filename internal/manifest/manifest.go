// Package manifest decodes a Docker Registry v1-style manifest response:
// top-level name, fsLayers, and history with embedded v1Compatibility
// JSON strings, paired with the Docker-Content-Digest response header.
package manifest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oceanhq/dregistry/internal/errs"
)

// FileSystemLayerInfo describes one layer of a manifest: its content
// digest and its legacy v1 layer id.
type FileSystemLayerInfo struct {
	BlobSum string
	LayerID string
}

// Manifest is the decoded result of a successful manifest fetch.
type Manifest struct {
	Name   string
	Digest string
	Layers []FileSystemLayerInfo
}

type rawManifest struct {
	Name     string `json:"name"`
	FSLayers []struct {
		BlobSum string `json:"blobSum"`
	} `json:"fsLayers"`
	History []struct {
		V1Compatibility string `json:"v1Compatibility"`
	} `json:"history"`
}

type v1Compatibility struct {
	ID string `json:"id"`
}

// Decode validates and parses body (the manifest response's JSON) and
// header (the response's header map, used to read Docker-Content-Digest)
// into a Manifest. Any schema violation fails the whole call with a
// *errs.MalformedManifestError; no partial manifest is ever returned.
func Decode(body []byte, header http.Header) (*Manifest, error) {
	dgst := header.Get("Docker-Content-Digest")
	if dgst == "" {
		return nil, malformed("missing Docker-Content-Digest header")
	}

	var raw rawManifest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, malformed(fmt.Sprintf("decode manifest body: %v", err))
	}
	if raw.Name == "" {
		return nil, malformed("missing or empty name")
	}
	if len(raw.History) != len(raw.FSLayers) {
		return nil, malformed(fmt.Sprintf("history length %d != fsLayers length %d", len(raw.History), len(raw.FSLayers)))
	}

	layers := make([]FileSystemLayerInfo, 0, len(raw.FSLayers))
	for i := range raw.FSLayers {
		blobSum := raw.FSLayers[i].BlobSum
		if blobSum == "" {
			return nil, malformed(fmt.Sprintf("fsLayers[%d] has empty blobSum", i))
		}

		var compat v1Compatibility
		if err := json.Unmarshal([]byte(raw.History[i].V1Compatibility), &compat); err != nil {
			return nil, malformed(fmt.Sprintf("history[%d].v1Compatibility is not valid JSON: %v", i, err))
		}
		if compat.ID == "" {
			return nil, malformed(fmt.Sprintf("history[%d].v1Compatibility has empty id", i))
		}

		layers = append(layers, FileSystemLayerInfo{BlobSum: blobSum, LayerID: compat.ID})
	}

	return &Manifest{Name: raw.Name, Digest: dgst, Layers: layers}, nil
}

func malformed(context string) error {
	return &errs.MalformedManifestError{Context: context}
}
