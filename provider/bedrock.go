package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/blackmesalabs/ash/config"
	"github.com/blackmesalabs/ash/errors"
)

// Bedrock drives Anthropic models through AWS Bedrock's InvokeModel API.
// Credentials come from the standard AWS environment/config chain.
type Bedrock struct {
	client  *bedrockruntime.Client
	modelID string

	files   fileTable
	history []map[string]interface{}
}

// NewBedrock builds the adapter from the resolved configuration.
func NewBedrock(cfg *config.Config) *Bedrock {
	return &Bedrock{modelID: cfg.Model}
}

func (b *Bedrock) Open(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to load AWS config")
	}
	b.client = bedrockruntime.NewFromConfig(awsCfg)
	b.history = nil
	return nil
}

func (b *Bedrock) Close(ctx context.Context) error {
	b.files.clear()
	b.history = nil
	b.client = nil
	return nil
}

// SetModel switches the model id used for subsequent requests.
func (b *Bedrock) SetModel(model string) { b.modelID = model }

func (b *Bedrock) DeleteFile(ctx context.Context, localPath string) error {
	b.files.remove([]string{localPath})
	return nil
}

func (b *Bedrock) SendMessage(ctx context.Context, prompt, preamble string, inputFiles, deleteFiles []string) Result {
	if b.client == nil {
		return errorResult("AI error (bedrock): session not open", errors.New("session not open"))
	}

	b.files.remove(deleteFiles)
	for _, path := range inputFiles {
		if b.files.tracked(path) {
			continue
		}
		b.files.add(SessionFile{
			LocalPath:   path,
			CloudHandle: MakeCloudName(path),
			State:       Synced,
		})
	}

	var messages []map[string]interface{}
	if fileCtx := inlineFileContext(b.files.files); fileCtx != "" {
		messages = append(messages, textMessage("user", fileCtx))
	}
	messages = append(messages, b.history...)
	messages = append(messages, textMessage("user", prompt))

	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          messages,
	}
	if preamble != "" {
		request["system"] = preamble
	}
	body, err := json.Marshal(request)
	if err != nil {
		return errorResult(fmt.Sprintf("AI error (bedrock): %v", err), err)
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("AI error (bedrock): %v", err), err)
	}

	answer, usage, err := parseBedrockResponse(resp.Body)
	if err != nil {
		return errorResult(fmt.Sprintf("AI error (bedrock): %v", err), err)
	}
	if usage.Total == 0 {
		usage.Upload = EstimateTokens(preamble + prompt)
		usage.Download = EstimateTokens(answer)
		usage.Total = usage.Upload + usage.Download
	}

	b.history = append(b.history, textMessage("user", prompt), textMessage("assistant", answer))
	return Result{Text: answer, Usage: usage}
}

func textMessage(role, text string) map[string]interface{} {
	return map[string]interface{}{
		"role": role,
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	}
}

func parseBedrockResponse(body []byte) (string, Usage, error) {
	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
		Error interface{} `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", Usage{}, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if response.Error != nil {
		return "", Usage{}, errors.New("Bedrock API error: %v", response.Error)
	}

	var answer string
	for _, block := range response.Content {
		if block.Type == "text" {
			answer += block.Text
		}
	}
	usage := Usage{
		Upload:   response.Usage.InputTokens,
		Download: response.Usage.OutputTokens,
		Total:    response.Usage.InputTokens + response.Usage.OutputTokens,
	}
	return answer, usage, nil
}
