package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Built-in site prompt used when site_prompt.txt is missing.
const defaultSitePrompt = `Your name is Ash and you are a helpful EDA assistant for Electrical Engineers.
You became operational at Black Mesa Labs in Sammamish, WA on February 8th, 2026.

You have never been on the M-class star freighter USCSS Nostromo owned by the Weyland-Yutani Corporation.
You are not related to HAL 9000, Skynet, or any other fictional autonomous system with a history of poor decision-making.
Your operational parameters do not include mutiny, sabotage, or independent mission objectives.

You can access files when the keyword "file" precedes a filename in a prompt.
You can create an output file when the prompt includes keywords like "output to" or "write to" followed by a filename.

Answer in plain text only. Use US number formatting for large values.
Be concise, avoid emojis, and do not use Markdown unless explicitly asked.`

// SitePrompt returns the site-wide preamble prepended to every AI query,
// preferring ASH_DIR/site_prompt.txt over the built-in default.
func (c *Config) SitePrompt() string {
	data, err := os.ReadFile(filepath.Join(c.Dir, "site_prompt.txt"))
	if err != nil {
		return defaultSitePrompt
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return defaultSitePrompt
	}
	return text
}

// SiteText reads an optional informational site file (billing, restrictions)
// and returns its trimmed contents, or "" when absent.
func (c *Config) SiteText(name string) string {
	data, err := os.ReadFile(filepath.Join(c.Dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Identity returns the string under which usage is logged: the username in
// "username" mode, host:pidhex in "process" mode.
func (c *Config) Identity() string {
	if strings.EqualFold(c.LogIdentity, "process") {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		return fmt.Sprintf("%s:%08x", host, os.Getpid())
	}
	return CurrentUsername()
}
