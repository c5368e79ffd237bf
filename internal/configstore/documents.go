package configstore

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

type ontologyDoc struct {
	Version string              `yaml:"version" json:"version" validate:"required"`
	Aspects map[string][]string `yaml:"aspects" json:"aspects" validate:"required,min=1,dive,min=1,dive,required"`
}

type personaDoc struct {
	Label             string             `yaml:"label" json:"label" validate:"required"`
	Description       string             `yaml:"description" json:"description"`
	Weights           map[string]float64 `yaml:"weights" json:"weights" validate:"dive,gte=0"`
	SourcePreferences map[string]string  `yaml:"source_preferences" json:"source_preferences"`
	MissingBehaviors  map[string]string  `yaml:"missing_behaviors" json:"missing_behaviors"`
}

type personasDoc struct {
	Version        string                `yaml:"version" json:"version" validate:"required"`
	DefaultPersona string                `yaml:"default_persona" json:"default_persona"`
	Personas       map[string]personaDoc `yaml:"personas" json:"personas" validate:"required,min=1,dive"`
}

type ruleDoc struct {
	Feature     string             `yaml:"feature" json:"feature" validate:"required"`
	Aspects     []string           `yaml:"aspects" json:"aspects" validate:"min=1,dive,required"`
	LabelScores map[string]float64 `yaml:"label_scores" json:"label_scores" validate:"min=1,dive,gte=0,lte=1"`
}

type mappingDoc struct {
	Version  string    `yaml:"version" json:"version" validate:"required"`
	Features []string  `yaml:"features" json:"features" validate:"dive,required"`
	Rules    []ruleDoc `yaml:"rules" json:"rules" validate:"dive"`
}

// readDoc decodes path into dst, or the embedded default when path is "".
// JSON is chosen by the .json extension, everything else parses as YAML.
func readDoc(path, fallback string, dst any) (string, error) {
	var (
		b    []byte
		err  error
		name = path
	)
	if path == "" {
		name = "builtin:" + fallback
		b, err = defaultsFS.ReadFile("defaults/" + fallback)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return name, fmt.Errorf("%s: read: %w", name, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(b, dst)
	} else {
		err = yaml.Unmarshal(b, dst)
	}
	if err != nil {
		return name, fmt.Errorf("%s: decode: %w", name, err)
	}
	return name, nil
}
