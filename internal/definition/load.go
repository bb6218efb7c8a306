package definition

import (
	"errors"
	"os"
)

// LoadDocument reads, parses, and validates the document at path.
func LoadDocument(path string) (Document, error) {
	data, readError := os.ReadFile(path)
	if readError != nil {
		return Document{}, DefinitionError{Path: path, Cause: readError}
	}
	return ParseDocument(path, data)
}

// ParseDocument parses and validates document bytes using the format implied by path.
func ParseDocument(path string, data []byte) (Document, error) {
	document, decodeError := CodecForPath(path).Decode(data)
	if decodeError == nil {
		decodeError = Validate(document.Definition())
	}
	if decodeError != nil {
		var definitionError DefinitionError
		if errors.As(decodeError, &definitionError) {
			definitionError.Path = path
			return Document{}, definitionError
		}
		return Document{}, DefinitionError{Path: path, Cause: decodeError}
	}
	return document, nil
}
