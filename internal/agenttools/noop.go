package agenttools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type NoopParams struct {
	Comment string `json:"comment,omitempty"`
}

func NoopTool() Builtin {
	return Builtin{
		Name:        "noop",
		Description: "Explicitly do nothing and leave a short optional comment",
		InputSchema: objectSchema(map[string]any{
			"comment": stringProp("Optional note about why the agent is idling"),
		}),
		Run: func(_ context.Context, args json.RawMessage, _ ToolContext) (any, error) {
			var p NoopParams
			if len(args) > 0 {
				if err := json.Unmarshal(args, &p); err != nil {
					return nil, fmt.Errorf("decode noop params: %w", err)
				}
			}
			return map[string]any{
				"status":  "idle",
				"comment": strings.TrimSpace(p.Comment),
			}, nil
		},
	}
}
