// Package models carries static metadata for commonly used OpenRouter models.
package models

import "sort"

// ModelInfo describes one chat model.
type ModelInfo struct {
	Name            string `json:"name"`
	ContextLength   int    `json:"context_length"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty"`
}

// OpenRouterName returns the OpenRouter-compatible model name. Names without
// a provider prefix default to the openai namespace.
func (m ModelInfo) OpenRouterName() string {
	for i := 0; i < len(m.Name); i++ {
		if m.Name[i] == '/' {
			return m.Name
		}
	}
	return "openai/" + m.Name
}

// Models maps short aliases to predefined common models.
var Models = map[string]ModelInfo{
	"gpt-4o-mini": {
		Name:            "openai/gpt-4o-mini",
		ContextLength:   128000,
		MaxOutputTokens: 16384,
	},
	"gpt-4o-mini-2024-07-18": {
		Name:            "openai/gpt-4o-mini-2024-07-18",
		ContextLength:   128000,
		MaxOutputTokens: 16384,
	},
	"gpt-3.5-turbo": {
		Name:            "openai/gpt-3.5-turbo",
		ContextLength:   16385,
		MaxOutputTokens: 4096,
	},
	"gpt-oss-20b": {
		Name:            "openai/gpt-oss-20b:free",
		ContextLength:   131072,
		MaxOutputTokens: 32768,
	},
	"claude-3-haiku": {
		Name:            "anthropic/claude-3-haiku",
		ContextLength:   200000,
		MaxOutputTokens: 4096,
	},
	"llama-3.2-3b-instruct": {
		Name:            "meta-llama/llama-3.2-3b-instruct",
		ContextLength:   131072,
		MaxOutputTokens: 131072,
	},
	"phi-3.5-mini-128k-instruct": {
		Name:            "microsoft/phi-3.5-mini-128k-instruct",
		ContextLength:   128000,
		MaxOutputTokens: 4096,
	},
	"gemini-2.0-flash-exp": {
		Name:            "google/gemini-2.0-flash-exp:free",
		ContextLength:   1048576,
		MaxOutputTokens: 8192,
	},
	"deepseek-chat-v3.1": {
		Name:            "deepseek/deepseek-chat-v3.1:free",
		ContextLength:   163840,
		MaxOutputTokens: 163840,
	},
	"deepseek-r1t2-chimera": {
		Name:            "tngtech/deepseek-r1t2-chimera:free",
		ContextLength:   163840,
		MaxOutputTokens: 163840,
	},
}

// Lookup resolves a model by alias or full name. Unknown names get a minimal
// ModelInfo so callers can still route the request upstream.
func Lookup(name string) (ModelInfo, bool) {
	if m, ok := Models[name]; ok {
		return m, true
	}
	for _, m := range Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{Name: name}, false
}

// List returns all predefined models sorted by alias.
func List() []ModelInfo {
	aliases := make([]string, 0, len(Models))
	for alias := range Models {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	out := make([]ModelInfo, 0, len(aliases))
	for _, alias := range aliases {
		out = append(out, Models[alias])
	}
	return out
}
