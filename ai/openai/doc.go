// Package openai implements the ai interfaces against OpenAI-compatible
// HTTP APIs via langchaingo, covering hosted OpenAI as well as local
// servers (Ollama, LocalAI, vLLM).
package openai
