package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	tomlExtensionConstant         = ".toml"
	targetsKeyConstant            = "targets"
	yamlIndentationConstant       = 2
	encodeFailureTemplateConstant = "encode %s document: %w"
)

// Format identifies the text format of a definition or status document.
type Format string

// Supported formats.
const (
	FormatYAML Format = Format("yaml")
	FormatTOML Format = Format("toml")
)

// FormatForPath selects TOML for .toml files and YAML for everything else.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), tomlExtensionConstant) {
		return FormatTOML
	}
	return FormatYAML
}

// Codec reads and writes documents in one format.
type Codec struct {
	Format Format
}

// CodecForPath returns the codec matching the file extension.
func CodecForPath(path string) Codec {
	return Codec{Format: FormatForPath(path)}
}

// Decode parses a document. Syntax errors, unknown keys, and duplicate target names yield DefinitionError.
// A missing version is read as the current schema version.
func (codec Codec) Decode(data []byte) (Document, error) {
	var document Document
	var decodeError error
	switch codec.Format {
	case FormatTOML:
		decodeError = decodeTOML(data, &document)
	default:
		decodeError = decodeYAML(data, &document)
	}
	if decodeError != nil {
		var definitionError DefinitionError
		if errors.As(decodeError, &definitionError) {
			return Document{}, definitionError
		}
		return Document{}, DefinitionError{Cause: decodeError}
	}
	if document.Version == 0 {
		document.Version = SchemaVersionConstant
	}
	return document, nil
}

// Encode renders the document.
func (codec Codec) Encode(document Document) ([]byte, error) {
	var buffer bytes.Buffer
	switch codec.Format {
	case FormatTOML:
		if encodeError := toml.NewEncoder(&buffer).Encode(document); encodeError != nil {
			return nil, fmt.Errorf(encodeFailureTemplateConstant, codec.Format, encodeError)
		}
	default:
		encoder := yaml.NewEncoder(&buffer)
		encoder.SetIndent(yamlIndentationConstant)
		if encodeError := encoder.Encode(document); encodeError != nil {
			return nil, fmt.Errorf(encodeFailureTemplateConstant, codec.Format, encodeError)
		}
		if closeError := encoder.Close(); closeError != nil {
			return nil, fmt.Errorf(encodeFailureTemplateConstant, codec.Format, closeError)
		}
	}
	return buffer.Bytes(), nil
}

func decodeTOML(data []byte, document *Document) error {
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(document)
}

func decodeYAML(data []byte, document *Document) error {
	var root yaml.Node
	if parseError := yaml.Unmarshal(data, &root); parseError != nil {
		return parseError
	}
	if duplicates := duplicateTargetNames(&root); len(duplicates) > 0 {
		problems := make([]string, 0, len(duplicates))
		for _, duplicate := range duplicates {
			problems = append(problems, fmt.Sprintf(duplicateTargetNameTemplateConstant, duplicate))
		}
		return DefinitionError{Problems: problems}
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if decodeError := decoder.Decode(document); decodeError != nil && !errors.Is(decodeError, io.EOF) {
		return decodeError
	}
	return nil
}

func duplicateTargetNames(root *yaml.Node) []string {
	mapping := root
	if mapping.Kind == yaml.DocumentNode && len(mapping.Content) > 0 {
		mapping = mapping.Content[0]
	}
	if mapping.Kind != yaml.MappingNode {
		return nil
	}

	for keyIndex := 0; keyIndex+1 < len(mapping.Content); keyIndex += 2 {
		if mapping.Content[keyIndex].Value != targetsKeyConstant {
			continue
		}
		targets := mapping.Content[keyIndex+1]
		if targets.Kind != yaml.MappingNode {
			return nil
		}
		seen := map[string]struct{}{}
		duplicates := []string{}
		for targetIndex := 0; targetIndex+1 < len(targets.Content); targetIndex += 2 {
			targetName := targets.Content[targetIndex].Value
			if _, exists := seen[targetName]; exists {
				duplicates = append(duplicates, targetName)
				continue
			}
			seen[targetName] = struct{}{}
		}
		return duplicates
	}
	return nil
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
