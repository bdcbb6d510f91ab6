// Package mcp connects to Model Context Protocol tool servers using the
// official MCP Go SDK and serves as the tool source of the tool permission
// gate.
//
// Servers are configured per name with a transport:
//
//	TransportTypeLocal, TransportTypeStdio - a subprocess speaking MCP on stdio
//	TransportTypeRemote                    - streamable HTTP, falling back to SSE
//
// Attach connects a server over any SDK transport, which is how in-process
// servers are wired in tests.
//
// Client implements toolgate.Source: ServerTools lists the tools of every
// connected server and CallTool runs one. Tool names are sanitized to
// alphanumerics and underscores; CallTool maps sanitized names back to the
// server's own names. Server names are used as configured, so a server name
// containing the qualified-name separator cannot be addressed through the
// gate.
//
// A server that fails to connect stays listed with StatusFailed and its
// error; disabled servers are listed with StatusDisabled and contribute no
// tools.
package mcp
