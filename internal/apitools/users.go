// ABOUTME: Tools for the users API on the system2 backend host.
// ABOUTME: get_user_list and get_user_detail.

package apitools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/FndMG/mcp-api-wrapper/internal/endpoints"
	"github.com/FndMG/mcp-api-wrapper/internal/packs"
)

// UsersPackID identifies the users pack in the registry.
const UsersPackID = "system2:users"

type userDetailArgs struct {
	UserID ID `json:"user_id"`
}

// UsersPack returns the users tools bound to urls.
func UsersPack(caller Caller, urls endpoints.Users, logger *slog.Logger) *packs.Pack {
	if logger == nil {
		logger = slog.Default()
	}
	u := &userTools{caller: caller, urls: urls}

	return &packs.Pack{
		ID:      UsersPackID,
		Version: PackVersion,
		Tools: []*packs.Tool{
			listTool(caller, logger, "get_user_list",
				"Get a list of users.\n\nReturns:\n    UserList: {\"user_list\": [User]} where User has "+
					"user_id, name, email and role.",
				urls.ListURL),
			{
				Definition: &packs.Definition{
					Name:        "get_user_detail",
					Description: "Get user details.\n\nArgs:\n    user_id: User ID\n\nReturns:\n    UserDetail: a single User.",
					InputSchema: idSchema("user_id", "User ID"),
				},
				Handler: packs.Logged(logger, "get_user_detail", []string{"user_id"}, u.detail),
			},
		},
	}
}

type userTools struct {
	caller Caller
	urls   endpoints.Users
}

func (u *userTools) detail(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args userDetailArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, err
	}
	return get(ctx, u.caller, endpoints.Detail(u.urls.DetailURL, string(args.UserID)))
}
