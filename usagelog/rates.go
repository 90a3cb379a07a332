package usagelog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// site_token_rates.txt lines: <model> <input_per_1M> <output_per_1M>,
// $ prefix accepted, # comments ignored.
var rateLineRe = regexp.MustCompile(`^([A-Za-z0-9._:\-]+)\s+(\$?\s*[0-9]+(?:\.[0-9]+)?)\s+(\$?\s*[0-9]+(?:\.[0-9]+)?)$`)

// SessionCost renders an estimated cost report for one session's token
// usage from the site rates file in dir. It returns "" when there is
// nothing to report: zero usage, no rates file, or no rate for the model.
func SessionCost(dir, model string, uploadTokens, downloadTokens int64) string {
	if uploadTokens == 0 && downloadTokens == 0 {
		return ""
	}
	if dir == "" {
		return ""
	}
	rates, err := loadRates(filepath.Join(dir, "site_token_rates.txt"))
	if err != nil || len(rates) == 0 {
		return ""
	}

	rate, ok := rates[strings.ToLower(model)]
	if !ok {
		fmt.Fprintf(os.Stderr, "Warning: no token rates found for model %q\n", model)
		return ""
	}

	inputCost := float64(uploadTokens) / 1_000_000 * rate.inPerMillion
	outputCost := float64(downloadTokens) / 1_000_000 * rate.outPerMillion

	return fmt.Sprintf(
		"Model: %s\n"+
			"Input tokens: %s @ $%.4f/1M = $%.6f\n"+
			"Output tokens: %s @ $%.4f/1M = $%.6f\n"+
			"---------------------------------------------\n"+
			"Estimated total cost: $%.6f USD",
		model,
		groupThousands(uploadTokens), rate.inPerMillion, inputCost,
		groupThousands(downloadTokens), rate.outPerMillion, outputCost,
		inputCost+outputCost)
}

type tokenRate struct {
	inPerMillion  float64
	outPerMillion float64
}

func loadRates(path string) (map[string]tokenRate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rates := map[string]tokenRate{}
	sc := bufio.NewScanner(f)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := rateLineRe.FindStringSubmatch(line)
		if m == nil {
			fmt.Fprintf(os.Stderr, "Warning: unrecognized rates line at %s:%d: %q\n", path, lineno, line)
			continue
		}
		rates[strings.ToLower(m[1])] = tokenRate{
			inPerMillion:  parseMoney(m[2]),
			outPerMillion: parseMoney(m[3]),
		}
	}
	return rates, sc.Err()
}

func parseMoney(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, "$", ""))
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
