package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"ailib/pkg/types"
)

// quantPattern picks the llama.cpp quantization suffix out of a filename,
// e.g. "TinyLlama-1.1B.Q4_K_M.gguf" -> "Q4_K_M".
var quantPattern = regexp.MustCompile(`(?i)[.\-_]((?:I?Q\d+(?:_[A-Z0-9]+)*)|F16|F32|BF16)$`)

var families = []string{"llama", "mistral", "mixtral", "phi", "qwen", "gemma", "falcon"}

// LoadDir scans dir for *.gguf files. ID is the full filename, Path the
// absolute path; quant and family are guessed from the filename.
func LoadDir(dir string) ([]types.ModelSpec, error) {
	base, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var specs []types.ModelSpec
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ".gguf") {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		spec := types.ModelSpec{ID: name, Name: stem, Path: filepath.Join(abs, name)}
		if m := quantPattern.FindStringSubmatch(stem); m != nil {
			spec.Quant = strings.ToUpper(m[1])
		}
		lower := strings.ToLower(stem)
		for _, f := range families {
			if strings.Contains(lower, f) {
				spec.Family = f
				break
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
