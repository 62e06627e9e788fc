// Package apitools defines the MCP tools that front the backend REST APIs.
//
// Each backend gets one pack built from an explicit tool list:
//
//	TemplatesPack  get_template_list, get_template_detail(template_id)
//	UsersPack      get_user_list, get_user_detail(user_id)
//
// A handler builds the target URL from the endpoint table, issues one GET
// through a Caller and returns the decoded payload, or the
// {"status":"error","message":...} failure, unchanged. Ids are accepted as
// JSON strings or numbers and are path-escaped before use.
package apitools
