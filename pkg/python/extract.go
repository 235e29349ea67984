package python

import (
	"bytes"

	"github.com/panbanda/tangle/pkg/models"
	"github.com/panbanda/tangle/pkg/parser"
)

// Extract collects the module-level facts for one parsed file. Clone
// fragments are filled in separately by the clone extractor.
func Extract(root string, result *parser.ParseResult) models.FileFacts {
	module, isPackage := ModuleName(root, result.Path)
	return models.FileFacts{
		Path:        result.Path,
		Module:      module,
		Package:     isPackage,
		Imports:     ExtractImports(result, module, isPackage),
		Definitions: ExtractDefinitions(result),
		Dynamic:     UsesDynamicAccess(result),
		Lines:       bytes.Count(result.Source, []byte("\n")) + 1,
	}
}
