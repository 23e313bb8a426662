package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mercator-hq/permitgate/pkg/rules/parser"
)

// bundleExtensions are the file extensions read as bundle documents.
var bundleExtensions = []string{".yaml", ".yml"}

// FileSource loads a bundle file, or every bundle file under a directory
// merged into one bundle.
type FileSource struct {
	path   string
	parser *parser.Parser
}

// NewFileSource creates a file source. A nil parser uses parser.NewParser().
func NewFileSource(path string, p *parser.Parser) *FileSource {
	if p == nil {
		p = parser.NewParser()
	}
	return &FileSource{path: path, parser: p}
}

// Name returns "file:<path>".
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Path returns the watched file or directory.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads every bundle document and parses them together.
func (s *FileSource) Load(ctx context.Context) (*parser.Bundle, error) {
	return loadFiles(ctx, s.path, s.parser)
}

func loadFiles(ctx context.Context, root string, p *parser.Parser) (*parser.Bundle, error) {
	docs, err := ReadDocuments(ctx, root, p)
	if err != nil {
		return nil, err
	}
	return p.ParseDocuments(docs)
}

// ReadDocuments reads the bundle file at root, or every bundle file under
// the directory root in lexical order, without parsing them.
func ReadDocuments(ctx context.Context, root string, p *parser.Parser) ([]parser.Document, error) {
	if p == nil {
		p = parser.NewParser()
	}
	files, err := listBundleFiles(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no .yaml or .yml files under %s", ErrNoBundle, root)
	}

	docs := make([]parser.Document, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := p.ReadDocument(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// listBundleFiles returns bundle files under root in lexical order. Hidden
// files and directories are skipped. A root that is a file is returned as is.
func listBundleFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("bundle path does not exist: %w", err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && hasBundleExtension(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk bundle directory: %w", err)
	}
	return files, nil
}

func hasBundleExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, valid := range bundleExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
