// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package a2aparts holds the part-kind predicates and legacy-shape
// normalization helpers the task manager needs to turn whatever a node
// returns (a raw map, carried over from older node code that predates the
// kind discriminator) into proper github.com/a2aproject/a2a-go/a2a types.
package a2aparts

import (
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
)

// legacyTypeKey is the discriminator key artifacts emitted by older node
// code may still carry instead of "kind". The canonical wire shape is
// always "kind" on output (see NormalizePart).
const legacyTypeKey = "type"
const kindKey = "kind"

// IsTextPart reports whether p is a text part.
func IsTextPart(p a2a.Part) bool {
	_, ok := p.(a2a.TextPart)
	return ok
}

// IsFilePart reports whether p is a file part.
func IsFilePart(p a2a.Part) bool {
	_, ok := p.(a2a.FilePart)
	return ok
}

// IsDataPart reports whether p is a data part.
func IsDataPart(p a2a.Part) bool {
	_, ok := p.(a2a.DataPart)
	return ok
}

// NormalizePart converts one raw part, as emitted by node code, into an
// a2a.Part. Accepted shapes:
//
//	{"kind"|"type": "text", "text": string}
//	{"kind"|"type": "file", "uri": string, "mimeType": string, "name": string}
//	{"kind"|"type": "file", "bytes": string (base64), "mimeType": string, "name": string}
//	{"kind"|"type": "data", "data": map[string]any}
//
// Already-typed a2a.Part values pass through unchanged.
func NormalizePart(raw any) (a2a.Part, error) {
	if p, ok := raw.(a2a.Part); ok {
		return p, nil
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("a2aparts: part of type %T is neither a2a.Part nor map[string]any", raw)
	}

	kind, _ := m[kindKey].(string)
	if kind == "" {
		kind, _ = m[legacyTypeKey].(string)
	}

	switch kind {
	case "text":
		text, _ := m["text"].(string)
		return a2a.TextPart{Text: text, Metadata: metadataOf(m)}, nil
	case "file":
		return normalizeFilePart(m)
	case "data":
		data, _ := m["data"].(map[string]any)
		return a2a.DataPart{Data: data, Metadata: metadataOf(m)}, nil
	default:
		return nil, fmt.Errorf("a2aparts: unrecognized part kind %q", kind)
	}
}

func normalizeFilePart(m map[string]any) (a2a.Part, error) {
	name, _ := m["name"].(string)
	mimeType, _ := m["mimeType"].(string)
	meta := FileMeta(name, mimeType)

	if uri, ok := m["uri"].(string); ok && uri != "" {
		return a2a.FilePart{File: a2a.FileURI{FileMeta: meta, URI: uri}, Metadata: metadataOf(m)}, nil
	}
	if b, ok := m["bytes"].(string); ok {
		return a2a.FilePart{File: a2a.FileBytes{FileMeta: meta, Bytes: b}, Metadata: metadataOf(m)}, nil
	}
	return nil, fmt.Errorf("a2aparts: file part requires \"uri\" or \"bytes\"")
}

// FileMeta builds the shared name/mimeType header embedded in both file
// content variants.
func FileMeta(name, mimeType string) a2a.FileMeta {
	return a2a.FileMeta{Name: name, MimeType: mimeType}
}

func metadataOf(m map[string]any) map[string]any {
	meta, _ := m["metadata"].(map[string]any)
	return meta
}

// NormalizeArtifact converts a raw artifact (as produced by legacy
// result-carried node code or a direct flow.ArtifactHook call) into an
// a2a.Artifact. A missing or empty artifactId is assigned a fresh UUID.
func NormalizeArtifact(raw any) (a2a.Artifact, error) {
	if a, ok := raw.(a2a.Artifact); ok {
		if a.ID == "" {
			a.ID = a2a.ArtifactID(uuid.NewString())
		}
		return a, nil
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return a2a.Artifact{}, fmt.Errorf("a2aparts: artifact of type %T is neither a2a.Artifact nor map[string]any", raw)
	}

	id, _ := m["artifactId"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	name, _ := m["name"].(string)
	description, _ := m["description"].(string)

	rawParts, _ := m["parts"].([]any)
	parts := make([]a2a.Part, 0, len(rawParts))
	for _, rp := range rawParts {
		part, err := NormalizePart(rp)
		if err != nil {
			return a2a.Artifact{}, err
		}
		parts = append(parts, part)
	}

	return a2a.Artifact{
		ID:          a2a.ArtifactID(id),
		Name:        name,
		Description: description,
		Parts:       parts,
	}, nil
}
