package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 10000
	}
	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = 1
	}
	if cfg.Local.ModelPath == "" {
		cfg.Local.ModelPath = "./models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Local.ModelName == "" {
		cfg.Local.ModelName = "all-MiniLM-L6-v2"
	}
	if cfg.Local.Dimensions == 0 {
		cfg.Local.Dimensions = 384
	}
	if cfg.Local.MaxTokens == 0 {
		cfg.Local.MaxTokens = 256
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "text-embedding-ada-002"
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 30 * time.Second
	}
	if cfg.OpenAI.MaxInputTokens == 0 {
		cfg.OpenAI.MaxInputTokens = 8191
	}
	if cfg.OpenAI.Breaker.MaxFailures == 0 {
		cfg.OpenAI.Breaker.MaxFailures = 5
	}
	if cfg.OpenAI.Breaker.Timeout == 0 {
		cfg.OpenAI.Breaker.Timeout = 30 * time.Second
	}
	if cfg.OpenAI.Breaker.Interval == 0 {
		cfg.OpenAI.Breaker.Interval = 60 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/embeddings.db"
	}
	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = "http://localhost:5000"
	}
	if cfg.Client.ChunkSize == 0 {
		cfg.Client.ChunkSize = 100
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 120 * time.Second
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}
