// Package config loads, merges and watches the supervision configuration.
//
// # Configuration Loading
//
// Load merges configuration from these sources, later ones winning:
//
//  1. Global config ($XDG_CONFIG_HOME/supervision or ~/.config/supervision)
//  2. Project config (<dir>/supervision.* and <dir>/.supervision/supervision.*)
//  3. SUPERVISION_CONFIG file
//  4. SUPERVISION_CONFIG_CONTENT inline JSON
//  5. Environment variables (SUPERVISION_LOG_LEVEL and provider API keys)
//
// In each directory supervision.json, supervision.jsonc, supervision.yaml and
// supervision.yml are tried in that order. JSON files may carry comments and
// trailing commas (tidwall/jsonc); YAML files are read with gopkg.in/yaml.v3.
//
// # Variable Interpolation
//
//   - {env:VAR_NAME} expands to the environment variable's value
//   - {file:path} expands to the file's contents, escaped for a double-quoted
//     string; relative paths resolve against the config file's directory and
//     ~/ against $HOME
//
// Example:
//
//	{
//	  "provider": {"anthropic": {"apiKey": "{env:ANTHROPIC_API_KEY}"}},
//	  "supervisors": [
//	    {"type": "guardian", "id": "guard", "permissions": ["modify_messages"],
//	     "config": {"rules": ["no profanity", "no personal info"], "redact": true}},
//	    {"type": "agent", "id": "reviewer", "permissions": ["read_only"],
//	     "config": {"provider": "anthropic", "prompt": "{file:reviewer.md}"}}
//	  ],
//	  "sessions": {"ses_default": ["guard", "reviewer"]},
//	  "timeout": {"duration": "20s", "fallback": "allow"}
//	}
//
// # Merging
//
// Maps (sessions, mcp, provider) merge per key. Supervisor records with an
// id replace earlier records with the same id; others are appended. Scalar
// values overwrite; enforcePermissions and strictRegistration can only be
// switched on.
//
// # Hot Reload
//
// Watcher observes the loaded files with fsnotify and reloads after a short
// debounce, handing the new configuration to a callback. The server uses it
// to update guardian rule phrases without a restart.
package config
