package gemini

import (
	"context"
	"sync"
)

// FakeClient is a test implementation of Client that records its calls.
type FakeClient struct {
	Support  string
	Analysis string

	mu      sync.Mutex
	Prompts []string
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Support:  "fake support reply",
		Analysis: "fake analysis",
	}
}

func (c *FakeClient) SupportResponse(_ context.Context, prompt, appContext string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prompts = append(c.Prompts, appContext+"|"+prompt)
	return c.Support
}

func (c *FakeClient) AnalyzeRideData(_ context.Context, summaryJSON string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prompts = append(c.Prompts, summaryJSON)
	return c.Analysis
}
