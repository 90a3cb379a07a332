package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blackmesalabs/ash/config"
	"github.com/blackmesalabs/ash/errors"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini uploads tracked files through the Files API, so cloud handles
// here are real remote objects that must be reclaimed on delete/close.
type Gemini struct {
	client *genai.Client
	chat   *genai.ChatSession
	model  string
	apiKey string

	// Correlation table; remote carries the backend's own identifiers.
	files []geminiFile
}

type geminiFile struct {
	SessionFile
	remote *genai.File
}

// NewGemini builds the adapter from the resolved configuration.
func NewGemini(cfg *config.Config) *Gemini {
	return &Gemini{model: cfg.Model, apiKey: cfg.APIKey}
}

func (g *Gemini) Open(ctx context.Context) error {
	var opts []option.ClientOption
	if g.apiKey != "" {
		opts = append(opts, option.WithAPIKey(g.apiKey))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return errors.Wrapf(err, "failed to create genai client")
	}
	g.client = client
	g.chat = client.GenerativeModel(g.model).StartChat()
	return nil
}

func (g *Gemini) Close(ctx context.Context) error {
	for _, f := range g.files {
		if f.remote == nil {
			continue
		}
		if err := g.client.DeleteFile(ctx, f.remote.Name); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to delete cloud file %s (local %s): %v\n",
				f.remote.Name, f.LocalPath, err)
		}
	}
	g.files = nil
	g.chat = nil
	if g.client != nil {
		err := g.client.Close()
		g.client = nil
		return err
	}
	return nil
}

func (g *Gemini) DeleteFile(ctx context.Context, localPath string) error {
	var firstErr error
	kept := g.files[:0]
	for _, f := range g.files {
		if f.LocalPath != localPath {
			kept = append(kept, f)
			continue
		}
		if f.remote != nil {
			if err := g.client.DeleteFile(ctx, f.remote.Name); err != nil {
				// Keep the entry so a later delete or Close can retry.
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "failed to delete cloud file for %s", localPath)
				}
				kept = append(kept, f)
				continue
			}
		}
	}
	g.files = kept
	return firstErr
}

func (g *Gemini) SendMessage(ctx context.Context, prompt, preamble string, inputFiles, deleteFiles []string) Result {
	if g.chat == nil {
		return errorResult("AI error (gemini): session not open", errors.New("session not open"))
	}

	for _, path := range deleteFiles {
		if err := g.DeleteFile(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	for _, path := range inputFiles {
		if g.trackedLocal(path) {
			continue
		}
		remote, err := g.upload(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error uploading file %s to Gemini: %v\n", path, err)
			continue
		}
		g.files = append(g.files, geminiFile{
			SessionFile: SessionFile{
				LocalPath:   path,
				CloudHandle: remote.Name,
				State:       Synced,
			},
			remote: remote,
		})
	}

	parts := []genai.Part{genai.Text(preamble)}
	if len(g.files) > 0 {
		parts = append(parts, genai.Text("Here are files for analysis:"))
		for i, f := range g.files {
			parts = append(parts,
				genai.Text(fmt.Sprintf("File %d (%s):", i+1, filepath.Base(f.LocalPath))),
				genai.FileData{MIMEType: "text/plain", URI: f.remote.URI},
			)
		}
	}
	parts = append(parts, genai.Text(prompt))

	resp, err := g.chat.SendMessage(ctx, parts...)
	if err != nil {
		return errorResult(fmt.Sprintf("AI error (gemini): %v", err), err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return errorResult("AI error (gemini): empty response", errors.New("empty response"))
	}

	var answer string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			answer += string(text)
		}
	}

	var usage Usage
	if meta := resp.UsageMetadata; meta != nil {
		usage = Usage{
			Upload:   int64(meta.PromptTokenCount),
			Download: int64(meta.CandidatesTokenCount),
			Total:    int64(meta.TotalTokenCount),
		}
	} else {
		usage.Upload = EstimateTokens(preamble + prompt)
		usage.Download = EstimateTokens(answer)
		usage.Total = usage.Upload + usage.Download
	}
	return Result{Text: answer, Usage: usage}
}

func (g *Gemini) trackedLocal(path string) bool {
	for _, f := range g.files {
		if f.LocalPath == path {
			return true
		}
	}
	return false
}

func (g *Gemini) upload(ctx context.Context, path string) (*genai.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", path)
	}
	defer f.Close()

	name := MakeCloudName(path)
	remote, err := g.client.UploadFile(ctx, "", f, &genai.UploadFileOptions{
		DisplayName: name,
		MIMEType:    "text/plain",
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upload of %s failed", path)
	}
	return remote, nil
}
