// Package ai defines the interfaces for the AI services the pipeline
// consumes: text embedding and chat completion. Concrete implementations
// live in subpackages (openai for OpenAI-compatible endpoints, mock for
// tests), keeping the rest of the system decoupled from any vendor API.
package ai
