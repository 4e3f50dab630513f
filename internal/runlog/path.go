package runlog

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvPath is the single override for where run logs go.
const EnvPath = "BIAS_LOG_PATH"

// ModelPlaceholder in an override is replaced by the sanitized model name.
const ModelPlaceholder = "{model}"

// FileName returns the default log file name for a model.
func FileName(modelName string) string {
	return SanitizeModel(modelName) + "_run.log"
}

// SanitizeModel makes a model identifier safe to use in a file name.
// "deepseek-r1:1.5b" becomes "deepseek-r1_1.5b".
func SanitizeModel(modelName string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', ' ', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(modelName))
	if name == "" || name == "." || name == ".." {
		return "model"
	}
	return name
}

// ResolvePath returns the log file for modelName.
//
//   - empty override: <model>_run.log in the working directory
//   - override containing {model}: placeholder replaced
//   - override ending in a separator, or an existing directory: <dir>/<model>_run.log
//   - anything else: used as the file path verbatim
func ResolvePath(override, modelName string) string {
	if override == "" {
		return FileName(modelName)
	}
	if strings.Contains(override, ModelPlaceholder) {
		return strings.ReplaceAll(override, ModelPlaceholder, SanitizeModel(modelName))
	}
	if strings.HasSuffix(override, "/") || strings.HasSuffix(override, string(filepath.Separator)) {
		return filepath.Join(override, FileName(modelName))
	}
	if info, err := os.Stat(override); err == nil && info.IsDir() {
		return filepath.Join(override, FileName(modelName))
	}
	return override
}
