// ABOUTME: Tools for the templates API on the primary backend host.
// ABOUTME: get_template_list and get_template_detail.

package apitools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/FndMG/mcp-api-wrapper/internal/endpoints"
	"github.com/FndMG/mcp-api-wrapper/internal/packs"
)

// TemplatesPackID identifies the templates pack in the registry.
const TemplatesPackID = "api:templates"

type templateDetailArgs struct {
	TemplateID ID `json:"template_id"`
}

// TemplatesPack returns the templates tools bound to urls.
func TemplatesPack(caller Caller, urls endpoints.Templates, logger *slog.Logger) *packs.Pack {
	if logger == nil {
		logger = slog.Default()
	}
	t := &templateTools{caller: caller, urls: urls}

	return &packs.Pack{
		ID:      TemplatesPackID,
		Version: PackVersion,
		Tools: []*packs.Tool{
			listTool(caller, logger, "get_template_list",
				"Get a list of templates.\n\nReturns:\n    TemplateList: {\"template_list\": [Template]} where Template has "+
					"template_id, account, valid, template_name, to_adr, cc_adr and subject.",
				urls.ListURL),
			{
				Definition: &packs.Definition{
					Name: "get_template_detail",
					Description: "Get template details.\n\nArgs:\n    template_id: Template ID\n\n" +
						"Returns:\n    TemplateDetail: a Template including its body.",
					InputSchema: idSchema("template_id", "Template ID"),
				},
				Handler: packs.Logged(logger, "get_template_detail", []string{"template_id"}, t.detail),
			},
		},
	}
}

type templateTools struct {
	caller Caller
	urls   endpoints.Templates
}

func (t *templateTools) detail(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args templateDetailArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, err
	}
	return get(ctx, t.caller, endpoints.Detail(t.urls.DetailURL, string(args.TemplateID)))
}
