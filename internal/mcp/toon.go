package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"
)

// toonTimeout bounds the external pretty-printer subprocess (spec.md §5:
// "subprocess invocation of the external TOON encoder (bounded; timeout
// 2s; fallback to JSON on failure)"). Grounded on the teacher's
// exec.CommandContext-with-timeout idiom used throughout internal/skills
// and internal/provider for shelling out to external CLIs.
const toonTimeout = 2 * time.Second

// toonBinary is the external encoder invoked as `toon encode`. It is
// intentionally not bundled: its absence is a normal, handled condition
// (spec.md §1: "pretty-printing 'TOON' encoder invoked as a subprocess"
// is an external collaborator, not part of the core).
const toonBinary = "toon"

// envelope is the response shape when a tool result is wrapped for a
// requested format (spec.md §6).
type envelope struct {
	Format string       `json:"format"`
	Data   any          `json:"data"`
	Meta   envelopeMeta `json:"meta"`
}

type envelopeMeta struct {
	Requested string         `json:"requested"`
	Source    string         `json:"source"`
	ToonStats map[string]any `json:"toon_stats,omitempty"`
	ToonError string         `json:"toon_error,omitempty"`
}

// applyFormat wraps data in the response envelope for the requested
// format. format=="" or format=="json" yields a plain json envelope;
// format=="toon" attempts the bounded subprocess and falls back to json
// on any failure (spec.md §6: "the object is replaced by
// {format:'toon'|'json', data:…, meta:{…}}").
func applyFormat(ctx context.Context, format string, data any) envelope {
	if format != "toon" {
		return envelope{Format: "json", Data: data, Meta: envelopeMeta{Requested: format, Source: "param"}}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return envelope{Format: "json", Data: data, Meta: envelopeMeta{Requested: "toon", Source: "param", ToonError: err.Error()}}
	}

	toonCtx, cancel := context.WithTimeout(ctx, toonTimeout)
	defer cancel()

	cmd := exec.CommandContext(toonCtx, toonBinary, "encode")
	cmd.Stdin = bytes.NewReader(raw)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return envelope{Format: "json", Data: data, Meta: envelopeMeta{Requested: "toon", Source: "param", ToonError: err.Error()}}
	}

	return envelope{
		Format: "toon",
		Data:   stdout.String(),
		Meta: envelopeMeta{
			Requested: "toon",
			Source:    "param",
			ToonStats: map[string]any{"bytes_in": len(raw), "bytes_out": stdout.Len()},
		},
	}
}
