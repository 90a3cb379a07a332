package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackmesalabs/ash/config"
	"github.com/blackmesalabs/ash/errors"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// AzureGateway talks to an OpenAI-compatible chat completion endpoint
// behind a site API gateway. There is no remote file store: tracked files
// are inlined into the outbound context, so a file is Synced the moment it
// is tracked and its cloud handle is bookkeeping only.
type AzureGateway struct {
	client     *openai.Client
	model      string
	endpoint   string
	apiKey     string
	apiVersion string

	files   fileTable
	history []openai.ChatCompletionMessageParamUnion
}

// NewAzureGateway builds the adapter from the resolved configuration.
func NewAzureGateway(cfg *config.Config) *AzureGateway {
	return &AzureGateway{
		model:      cfg.Model,
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
	}
}

func (a *AzureGateway) Open(ctx context.Context) error {
	opts := []option.RequestOption{
		option.WithAPIKey(a.apiKey),
	}
	if a.endpoint != "" {
		opts = append(opts, option.WithBaseURL(a.endpoint))
	}
	if a.apiVersion != "" {
		// Azure-style gateways key and version requests differently from
		// the upstream OpenAI API.
		opts = append(opts,
			option.WithQueryAdd("api-version", a.apiVersion),
			option.WithHeaderAdd("api-key", a.apiKey),
		)
	}
	c := openai.NewClient(opts...)
	a.client = &c
	a.history = nil
	return nil
}

func (a *AzureGateway) Close(ctx context.Context) error {
	a.files.clear()
	a.history = nil
	a.client = nil
	return nil
}

// SetModel switches the model used for subsequent requests.
func (a *AzureGateway) SetModel(model string) { a.model = model }

func (a *AzureGateway) DeleteFile(ctx context.Context, localPath string) error {
	// Nothing exists remotely; dropping the correlation entry is enough.
	a.files.remove([]string{localPath})
	return nil
}

func (a *AzureGateway) SendMessage(ctx context.Context, prompt, preamble string, inputFiles, deleteFiles []string) Result {
	if a.client == nil {
		return errorResult("AI error (azure_gateway): session not open", errors.New("session not open"))
	}

	a.files.remove(deleteFiles)
	for _, path := range inputFiles {
		if a.files.tracked(path) {
			continue
		}
		a.files.add(SessionFile{
			LocalPath:   path,
			CloudHandle: MakeCloudName(path),
			State:       Synced,
		})
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if fileCtx := inlineFileContext(a.files.files); fileCtx != "" {
		messages = append(messages, openai.UserMessage(fileCtx))
	}
	messages = append(messages, openai.SystemMessage(preamble))
	messages = append(messages, a.history...)
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: messages,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("AI error (azure_gateway): %v", err), err)
	}
	if len(resp.Choices) == 0 {
		return errorResult("AI error (azure_gateway): empty response", errors.New("empty response"))
	}
	answer := resp.Choices[0].Message.Content

	a.history = append(a.history, openai.UserMessage(prompt))
	a.history = append(a.history, openai.AssistantMessage(answer))

	usage := Usage{
		Upload:   resp.Usage.PromptTokens,
		Download: resp.Usage.CompletionTokens,
		Total:    resp.Usage.TotalTokens,
	}
	if usage.Total == 0 {
		usage.Upload = EstimateTokens(preamble + prompt)
		usage.Download = EstimateTokens(answer)
		usage.Total = usage.Upload + usage.Download
	}
	return Result{Text: answer, Usage: usage}
}

// inlineFileContext renders the tracked files as one context message, in
// first-tracked order. Unreadable files are skipped with a warning.
func inlineFileContext(files []SessionFile) string {
	var blocks []string
	for _, f := range files {
		content, err := os.ReadFile(f.LocalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not read %s: %v\n", f.LocalPath, err)
			continue
		}
		blocks = append(blocks, fmt.Sprintf("=== FILE: %s ===\n%s\n", filepath.Base(f.LocalPath), content))
	}
	if len(blocks) == 0 {
		return ""
	}
	return "Here are my files:\n\n" + strings.Join(blocks, "\n") +
		"\n\nAnswer questions using these files and referencing their filenames."
}
