package comfy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"magpie/internal/workflow"
)

// HistoryEntry is one job in the backend history.
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  *JobStatus            `json:"status,omitempty"`
}

// JobStatus mirrors the backend's execution status block.
type JobStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// ImageRef locates a generated file on the backend.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the output block of one node. Raw keeps the original JSON for
// text extraction fallbacks. Fields whose shape does not match (a scalar
// "text", a non-list "images") are left empty rather than failing the whole
// history entry.
type NodeOutput struct {
	Images []ImageRef      `json:"images,omitempty"`
	Text   []any           `json:"text,omitempty"`
	String []any           `json:"string,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields it can and keeps the raw payload.
func (o *NodeOutput) UnmarshalJSON(data []byte) error {
	*o = NodeOutput{Raw: append(json.RawMessage(nil), data...)}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	if raw, ok := fields["images"]; ok {
		if err := json.Unmarshal(raw, &o.Images); err != nil {
			o.Images = nil
		}
	}
	o.Text = listOf(fields["text"])
	o.String = listOf(fields["string"])
	return nil
}

func listOf(raw json.RawMessage) []any {
	if len(raw) == 0 {
		return nil
	}
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	return values
}

// Outputs is what a finished job produced.
type Outputs struct {
	ImageURLs []string `json:"images,omitempty"`
	Text      string   `json:"text_output,omitempty"`
	HasText   bool     `json:"-"`
}

// ImageURL returns the primary image, if any.
func (o Outputs) ImageURL() string {
	if len(o.ImageURLs) == 0 {
		return ""
	}
	return o.ImageURLs[0]
}

// Empty reports whether neither images nor text were found.
func (o Outputs) Empty() bool {
	return len(o.ImageURLs) == 0 && !o.HasText
}

// ViewURL builds the retrieval URL for a generated image.
func ViewURL(baseURL string, img ImageRef) string {
	query := url.Values{}
	query.Set("filename", img.Filename)
	query.Set("subfolder", img.Subfolder)
	query.Set("type", img.Type)
	return NormalizeBaseURL(baseURL) + "/view?" + query.Encode()
}

// ExtractOutputs locates image and text results in a history entry.
// imageNodeID selects the image node; when empty the first node, in node id
// order, with a non-empty image list is used. Text is read only when
// textNodeID is set.
func ExtractOutputs(baseURL string, entry HistoryEntry, imageNodeID, textNodeID string) Outputs {
	var out Outputs

	var images []ImageRef
	if imageNodeID != "" {
		images = entry.Outputs[imageNodeID].Images
	} else {
		ids := make([]string, 0, len(entry.Outputs))
		for id := range entry.Outputs {
			ids = append(ids, id)
		}
		workflow.SortNodeIDs(ids)
		for _, id := range ids {
			if len(entry.Outputs[id].Images) > 0 {
				images = entry.Outputs[id].Images
				break
			}
		}
	}
	for _, img := range images {
		out.ImageURLs = append(out.ImageURLs, ViewURL(baseURL, img))
	}

	if textNodeID != "" {
		if node, ok := entry.Outputs[textNodeID]; ok {
			out.Text = textOf(node)
			out.HasText = true
		}
	}
	return out
}

func textOf(node NodeOutput) string {
	switch {
	case len(node.Text) > 0:
		return stringify(node.Text[0])
	case len(node.String) > 0:
		return stringify(node.String[0])
	case len(node.Raw) > 0:
		var compact bytes.Buffer
		if err := json.Compact(&compact, node.Raw); err == nil {
			return compact.String()
		}
		return strings.TrimSpace(string(node.Raw))
	default:
		return "{}"
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
