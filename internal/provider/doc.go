// Package provider builds the chat models behind agent-backed supervisors.
//
// Providers are configured by id. The id selects the protocol: "anthropic"
// and "claude" use the Claude adapter, "ark" uses Volcengine ARK, and any
// other id is treated as an OpenAI-compatible endpoint, so a local server can
// be configured as
//
//	"provider": {"local": {"baseURL": "http://localhost:11434/v1", "apiKey": "x", "model": "llama3"}}
//
// API keys fall back to ANTHROPIC_API_KEY, OPENAI_API_KEY and ARK_API_KEY.
//
// Registry.ChatModel has the shape of supervisor.ModelResolver and caches one
// model per provider/model pair.
package provider
