// Package llm is the OpenAI-compatible chat completion backend behind the
// gateway.LLM contract.
//
// Two variants share the wire protocol:
//
//   - cloud: hosted endpoints (OpenAI, DeepSeek, Qwen, Moonshot). A bearer
//     key is required and a missing key is a configuration error.
//   - selfhosted: local servers such as Ollama. The key is optional.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.Complete: send a system/user prompt pair, receive the content.
// Client.HealthCheck: verify the endpoint, key and model are usable.
// DecodeLLMJSON: decode JSON from model output, tolerating code fences and
// surrounding prose.
//
// # Retry Behaviour
//
// Calls go through gateway.Call: 408/429/5xx responses, network timeouts and
// empty completions are retried with capped exponential backoff. 401/403 fail
// as configuration errors and 400/404/413/422 as validation errors.
package llm
