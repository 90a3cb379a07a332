package provider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/blackmesalabs/ash/config"
	"github.com/blackmesalabs/ash/errors"
)

// Anthropic talks to the Anthropic Messages API directly. Like the Azure
// gateway there is no remote file store; tracked files ride along inline.
type Anthropic struct {
	client *anthropic.Client
	model  string
	apiKey string

	files   fileTable
	history []anthropic.MessageParam
}

// NewAnthropic builds the adapter from the resolved configuration.
func NewAnthropic(cfg *config.Config) *Anthropic {
	return &Anthropic{model: cfg.Model, apiKey: cfg.APIKey}
}

func (a *Anthropic) Open(ctx context.Context) error {
	if a.apiKey == "" {
		return errors.New("no API key configured for anthropic")
	}
	client := anthropic.NewClient(option.WithAPIKey(a.apiKey))
	a.client = &client
	a.history = nil
	return nil
}

func (a *Anthropic) Close(ctx context.Context) error {
	a.files.clear()
	a.history = nil
	a.client = nil
	return nil
}

// SetModel switches the model used for subsequent requests.
func (a *Anthropic) SetModel(model string) { a.model = model }

func (a *Anthropic) DeleteFile(ctx context.Context, localPath string) error {
	a.files.remove([]string{localPath})
	return nil
}

func (a *Anthropic) SendMessage(ctx context.Context, prompt, preamble string, inputFiles, deleteFiles []string) Result {
	if a.client == nil {
		return errorResult("AI error (anthropic): session not open", errors.New("session not open"))
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

	var messages []anthropic.MessageParam
	if fileCtx := inlineFileContext(a.files.files); fileCtx != "" {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(fileCtx)))
	}
	messages = append(messages, a.history...)
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  messages,
	}
	if preamble != "" {
		params.System = []anthropic.TextBlockParam{{Text: preamble}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return errorResult(fmt.Sprintf("AI error (anthropic): %v", err), err)
	}

	var answer string
	for _, block := range resp.Content {
		if block.Type == "text" {
			answer += block.Text
		}
	}

	a.history = append(a.history,
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		anthropic.NewAssistantMessage(anthropic.NewTextBlock(answer)),
	)

	usage := Usage{
		Upload:   resp.Usage.InputTokens,
		Download: resp.Usage.OutputTokens,
		Total:    resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	if usage.Total == 0 {
		usage.Upload = EstimateTokens(preamble + prompt)
		usage.Download = EstimateTokens(answer)
		usage.Total = usage.Upload + usage.Download
	}
	return Result{Text: answer, Usage: usage}
}
