// Package toolgate computes the tool list a model may see for a session and
// runs tools by qualified name.
//
// Tools come from a Source (the MCP client) grouped by server. The gate drops
// disabled servers and tools; for autonomous sessions it then applies the
// session's tool permission:
//
//   - always: no tool is visible
//   - never: every enabled tool is visible
//   - tool (default): tools that require confirmation are hidden
//
// Chat-mode sessions see every enabled tool. Visible tools are named
// server_tool; ParseQualifiedName splits on the first underscore.
//
// Invoke applies the tool's action (allow, deny or ask; requireConfirmation
// is shorthand for ask) through the configured Confirmer. Ask is skipped in
// autonomous sessions, which only see such tools under the never permission.
package toolgate
