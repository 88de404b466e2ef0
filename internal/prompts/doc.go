// Package prompts contains the LLM prompt templates used by Voice Wizard.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation and are validated by tests.
// User-facing configuration (agent instructions, providers) lives in
// config.yaml; this package turns live registry state into the
// instructions we send to models.
//
// Convention: each prompt gets an exported function that accepts the
// dynamic parts and returns the fully interpolated prompt string.
package prompts
