// Package permission confirms tool calls with the user.
//
// Each tool carries a configured Action: allow, deny or ask. The tool gate
// passes it to Checker.Check before running the tool. Ask publishes a
// tool.confirmation.required event and waits for Respond:
//
//	checker := permission.NewChecker(bus)
//	err := checker.Check(ctx, permission.Request{
//		SessionID: "ses_1",
//		Tool:      "github_create_issue",
//	}, permission.ActionAsk)
//
// Replies are "once" (allow this call), "always" (allow the tool for the rest
// of the session) or "reject". A rejection or a deny action surfaces as
// *RejectedError. ClearSession forgets "always" approvals.
//
// MatchWildcard and BestMatch resolve tool patterns such as "github_*" or
// "fs_{read,list}*". DoomLoopDetector flags a session that repeats the same
// call with the same arguments.
package permission
