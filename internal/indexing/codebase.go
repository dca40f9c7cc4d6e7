package indexing

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/AbdouB/memoryd/internal/embedding"
	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

// skipDirNames are directories the codebase walk never descends into
// (§4.2.2 "skip hidden and vendor directories").
var skipDirNames = map[string]struct{}{
	"node_modules": {}, "vendor": {}, ".venv": {}, "__pycache__": {},
	"dist": {}, "build": {}, ".idea": {}, ".vscode": {},
}

// languageByExt is the extension→language filter §4.2.2 walks files
// through before deciding how to chunk them.
var languageByExt = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".rs": "rust", ".java": "java",
	".rb": "ruby", ".c": "c", ".h": "c", ".cpp": "cpp", ".hpp": "cpp",
}

// astSupported languages get real function/class extraction via
// tree-sitter; everything else falls back to fixed-size line chunks.
var astSupported = map[string]bool{"go": true, "python": true}

const (
	fallbackChunkLines   = 50
	fallbackOverlapLines = 10

	functionBodyChars  = 500
	classBodyChars     = 500
	fallbackBlockChars = 1000
)

// CodebaseIndexer walks a project tree, AST-chunks supported languages,
// fallback-chunks everything else, and upserts into the "codebase"
// collection plus code_symbols. Grounded on
// theRebelliousNerd-codenerd's internal/world/ast_treesitter.go for the
// tree-sitter parse/walk/extract shape.
type CodebaseIndexer struct {
	chunks   *store.ChunkStore
	symbols  *store.CodeSymbolStore
	hashes   *store.FileHashStore
	projects *store.ProjectStore
	embed    embedding.Service
}

// NewCodebaseIndexer constructs a CodebaseIndexer.
func NewCodebaseIndexer(chunks *store.ChunkStore, symbols *store.CodeSymbolStore, hashes *store.FileHashStore, projects *store.ProjectStore, embed embedding.Service) *CodebaseIndexer {
	return &CodebaseIndexer{chunks: chunks, symbols: symbols, hashes: hashes, projects: projects, embed: embed}
}

// IndexProject walks root and indexes every recognized, changed source
// file under it, returning how many files were (re)indexed and how many
// were skipped (binary, unknown extension, or unchanged since last pass).
// It also (re)computes and stores root's per-project metadata (§4.2.2).
func (ix *CodebaseIndexer) IndexProject(root string) (indexed, skipped int, err error) {
	languageCounts := make(map[string]int)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (strings.HasPrefix(name, ".") || isSkipDir(name)) {
				return filepath.SkipDir
			}
			return nil
		}

		lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
		if !ok {
			skipped++
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			skipped++
			return nil
		}
		if !isTextContent(content) {
			skipped++
			return nil
		}

		languageCounts[lang]++

		hash := sha256Hex(string(content))
		prior, hashErr := ix.hashes.Get(path)
		if hashErr == nil && prior == hash {
			skipped++
			return nil
		}

		if err := ix.indexFile(root, path, lang, content); err != nil {
			skipped++
			return nil
		}
		if err := ix.hashes.Set(path, hash); err != nil {
			return err
		}
		indexed++
		return nil
	})
	if walkErr != nil {
		return indexed, skipped, walkErr
	}

	if ix.projects != nil {
		if err := ix.projects.Put(buildProjectMetadata(root, languageCounts)); err != nil {
			return indexed, skipped, err
		}
	}
	return indexed, skipped, nil
}

func isSkipDir(name string) bool {
	_, ok := skipDirNames[name]
	return ok
}

// isTextContent decides UTF-8-then-charset-sniff per §4.2.2: valid UTF-8
// is accepted outright; otherwise fall back to a MIME sniff and accept
// only recognizably textual content.
func isTextContent(content []byte) bool {
	if utf8.Valid(content) {
		return true
	}
	mt := mimetype.Detect(content)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return false
}

func (ix *CodebaseIndexer) indexFile(projectRoot, path, lang string, content []byte) error {
	relPath, err := filepath.Rel(projectRoot, path)
	if err != nil {
		relPath = path
	}

	var symbols []codeSymbol
	if astSupported[lang] {
		symbols = extractSymbols(lang, content)
	}

	if err := ix.indexAnalysisResult(projectRoot, relPath, lang, symbols); err != nil {
		return err
	}

	bodies := make([]codeSymbol, 0, len(symbols))
	for _, sym := range symbols {
		if sym.Kind == "import" {
			continue
		}
		bodies = append(bodies, sym)
	}

	if len(bodies) == 0 {
		return ix.indexFallbackChunks(projectRoot, relPath, content)
	}
	for _, sym := range bodies {
		if err := ix.indexSymbolChunk(projectRoot, relPath, lang, content, sym); err != nil {
			return err
		}
	}
	return nil
}

type codeSymbol struct {
	Kind      string // "function", "class", "import"
	Name      string
	Signature string
	Docstring string
	Methods   []string
	Bases     []string
	Start     int
	End       int
}

// extractSymbols dispatches to the tree-sitter grammar for lang and walks
// the parsed AST for function/class/import declarations (§4.2.2).
func extractSymbols(lang string, content []byte) []codeSymbol {
	parser := sitter.NewParser()
	defer parser.Close()

	switch lang {
	case "go":
		parser.SetLanguage(golang.GetLanguage())
	case "python":
		parser.SetLanguage(python.GetLanguage())
	default:
		return nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil
	}
	defer tree.Close()

	switch lang {
	case "go":
		return extractGoSymbols(tree.RootNode(), content)
	case "python":
		return extractPythonSymbols(tree.RootNode(), content)
	default:
		return nil
	}
}

// extractGoSymbols walks a Go AST for functions, structs (as "class"), and
// imports. Struct methods are gathered in a first pass keyed by receiver
// type name so each struct's codeSymbol can carry its Methods list; Go has
// no formal docstring syntax, so the immediately preceding line-comment
// block stands in for one, the same convention godoc itself uses.
func extractGoSymbols(root *sitter.Node, content []byte) []codeSymbol {
	methodsByReceiver := make(map[string][]string)
	walkMethods(root, content, methodsByReceiver)

	var out []codeSymbol
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				out = append(out, codeSymbol{
					Kind:      "function",
					Name:      name.Content(content),
					Signature: goSignature(n, content),
					Docstring: precedingComment(n, content),
					Start:     int(n.StartByte()),
					End:       int(n.EndByte()),
				})
			}
		case "type_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				name := spec.ChildByFieldName("name")
				if name == nil {
					continue
				}
				typeNode := spec.ChildByFieldName("type")
				var bases []string
				if typeNode != nil && typeNode.Type() == "struct_type" {
					bases = embeddedFieldTypes(typeNode, content)
				}
				out = append(out, codeSymbol{
					Kind:      "class",
					Name:      name.Content(content),
					Signature: "type " + name.Content(content),
					Docstring: precedingComment(n, content),
					Methods:   methodsByReceiver[name.Content(content)],
					Bases:     bases,
					Start:     int(n.StartByte()),
					End:       int(n.EndByte()),
				})
			}
		case "import_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "import_spec" {
					continue
				}
				if p := spec.ChildByFieldName("path"); p != nil {
					out = append(out, codeSymbol{
						Kind: "import",
						Name: strings.Trim(p.Content(content), `"`),
					})
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}

func walkMethods(n *sitter.Node, content []byte, out map[string][]string) {
	if n.Type() == "method_declaration" {
		recv := n.ChildByFieldName("receiver")
		name := n.ChildByFieldName("name")
		if recv != nil && name != nil {
			recvType := strings.TrimLeft(strings.TrimSpace(recv.Content(content)), "*")
			out[recvType] = append(out[recvType], name.Content(content))
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkMethods(n.Child(i), content, out)
	}
}

func goSignature(n *sitter.Node, content []byte) string {
	name := n.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	sig := "func " + name.Content(content)
	if params := n.ChildByFieldName("parameters"); params != nil {
		sig += params.Content(content)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		sig += " " + result.Content(content)
	}
	return sig
}

// precedingComment collects a contiguous run of line-comment siblings
// immediately above n, godoc-style.
func precedingComment(n *sitter.Node, content []byte) string {
	var lines []string
	prev := n.PrevSibling()
	for prev != nil && prev.Type() == "comment" {
		lines = append([]string{strings.TrimSpace(strings.TrimPrefix(prev.Content(content), "//"))}, lines...)
		prev = prev.PrevSibling()
	}
	return strings.Join(lines, " ")
}

// embeddedFieldTypes returns a struct's anonymous (embedded) field types —
// the closest Go analogue to "bases" for a class-shaped record.
func embeddedFieldTypes(structType *sitter.Node, content []byte) []string {
	fields := structType.ChildByFieldName("fields")
	if fields == nil {
		return nil
	}
	var bases []string
	for i := 0; i < int(fields.NamedChildCount()); i++ {
		field := fields.NamedChild(i)
		if field.Type() != "field_declaration" {
			continue
		}
		if field.ChildByFieldName("name") == nil {
			if t := field.ChildByFieldName("type"); t != nil {
				bases = append(bases, t.Content(content))
			}
		}
	}
	return bases
}

// extractPythonSymbols walks a Python AST for def/class/import statements,
// pulling each function/class's docstring from the first statement of its
// body when that statement is a bare string literal.
func extractPythonSymbols(root *sitter.Node, content []byte) []codeSymbol {
	var out []codeSymbol
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_definition":
			// Methods are listed on their class (pythonMethods), as Go
			// methods are, rather than chunked as functions of their own.
			parent := n.Parent()
			if parent != nil && parent.Type() == "decorated_definition" {
				parent = parent.Parent()
			}
			if parent != nil && parent.Type() == "block" && parent.Parent() != nil && parent.Parent().Type() == "class_definition" {
				break
			}
			if name := n.ChildByFieldName("name"); name != nil {
				sig := "def " + name.Content(content)
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += params.Content(content)
				}
				out = append(out, codeSymbol{
					Kind:      "function",
					Name:      name.Content(content),
					Signature: sig,
					Docstring: pythonDocstring(n, content),
					Start:     int(n.StartByte()),
					End:       int(n.EndByte()),
				})
			}
		case "class_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				out = append(out, codeSymbol{
					Kind:      "class",
					Name:      name.Content(content),
					Signature: "class " + name.Content(content),
					Docstring: pythonDocstring(n, content),
					Methods:   pythonMethods(n, content),
					Bases:     pythonBases(n, content),
					Start:     int(n.StartByte()),
					End:       int(n.EndByte()),
				})
			}
		case "import_statement", "import_from_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() == "dotted_name" {
					out = append(out, codeSymbol{Kind: "import", Name: child.Content(content)})
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}

func pythonDocstring(n *sitter.Node, content []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return strings.Trim(strings.TrimSpace(str.Content(content)), "\"'")
}

func pythonMethods(classNode *sitter.Node, content []byte) []string {
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var methods []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt.Type() != "function_definition" {
			continue
		}
		if name := stmt.ChildByFieldName("name"); name != nil {
			methods = append(methods, name.Content(content))
		}
	}
	return methods
}

func pythonBases(classNode *sitter.Node, content []byte) []string {
	super := classNode.ChildByFieldName("superclasses")
	if super == nil {
		return nil
	}
	var bases []string
	for i := 0; i < int(super.NamedChildCount()); i++ {
		bases = append(bases, super.NamedChild(i).Content(content))
	}
	return bases
}

// indexAnalysisResult writes a per-file structural summary into the
// `analysis_results` collection (§3 GLOSSARY, §4.3 step 1's second
// contemplation input): what symbols and imports this pass found, distinct
// from the `codebase` collection's per-symbol embedding chunks.
func (ix *CodebaseIndexer) indexAnalysisResult(projectRoot, relPath, lang string, symbols []codeSymbol) error {
	if len(symbols) == 0 {
		return nil
	}
	var functions, classes, imports []string
	for _, sym := range symbols {
		switch sym.Kind {
		case "function":
			functions = append(functions, sym.Name)
		case "class":
			classes = append(classes, sym.Name)
		case "import":
			imports = append(imports, sym.Name)
		}
	}

	summary := fmt.Sprintf(
		"analysis of %s (%s): %d functions [%s], %d classes [%s], %d imports [%s]",
		relPath, lang,
		len(functions), strings.Join(functions, ", "),
		len(classes), strings.Join(classes, ", "),
		len(imports), strings.Join(imports, ", "),
	)

	chunkID := models.ComputeChunkID("analysis:"+relPath, 0, len(summary), summary)
	vec, err := ix.embedText(summary)
	if err != nil {
		return err
	}
	c := &models.Chunk{
		ChunkID:    chunkID,
		SourceID:   relPath,
		SourceType: models.ChunkSourceAnalysis,
		Content:    summary,
		Metadata: map[string]any{
			"project_path": projectRoot,
			"language":     lang,
			"functions":    functions,
			"classes":      classes,
			"imports":      imports,
		},
		Embedding: vec,
	}
	return ix.chunks.Upsert("analysis_results", c, sha256Hex(summary))
}

func (ix *CodebaseIndexer) indexSymbolChunk(projectRoot, relPath, lang string, content []byte, sym codeSymbol) error {
	text := string(content[sym.Start:sym.End])
	embedText := symbolEmbeddingText(sym, text)

	chunkID := models.ComputeChunkID(relPath, sym.Start, sym.End, text)
	vec, err := ix.embedText(embedText)
	if err != nil {
		return err
	}

	c := &models.Chunk{
		ChunkID:    chunkID,
		SourceID:   relPath,
		SourceType: models.ChunkSourceCodebase,
		Content:    embedText,
		Metadata: map[string]any{
			"project_path": projectRoot,
			"language":     lang,
			"symbol_kind":  sym.Kind,
			"symbol_name":  sym.Name,
		},
		Embedding:   vec,
		StartOffset: sym.Start,
		EndOffset:   sym.End,
	}
	if err := ix.chunks.Upsert("codebase", c, sha256Hex(text)); err != nil {
		return err
	}

	return ix.symbols.Put(store.Symbol{
		SymbolID:    chunkID,
		ChunkID:     chunkID,
		ProjectPath: projectRoot,
		Name:        sym.Name,
		Kind:        sym.Kind,
		Metadata: map[string]any{
			"path": relPath, "signature": sym.Signature, "language": lang,
			"methods": sym.Methods, "bases": sym.Bases,
		},
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// symbolEmbeddingText renders §4.2.2's per-kind embedding-text templates.
func symbolEmbeddingText(sym codeSymbol, body string) string {
	switch sym.Kind {
	case "function":
		return fmt.Sprintf("Function: %s\nSignature: %s\n[Description: %s]\n%s",
			sym.Name, sym.Signature, sym.Docstring, truncate(body, functionBodyChars))
	case "class":
		return fmt.Sprintf("Class: %s\n[Description: %s]\nMethods: %s\n%s",
			sym.Name, sym.Docstring, strings.Join(sym.Methods, ", "), truncate(body, classBodyChars))
	default:
		return truncate(body, fallbackBlockChars)
	}
}

// indexFallbackChunks chunks an unsupported-language (or symbol-free)
// file into fixed-size overlapping line windows (§4.2.2: 50 lines, 10
// overlap), each embedded as the first 1000 chars of the chunk.
func (ix *CodebaseIndexer) indexFallbackChunks(projectRoot, relPath string, content []byte) error {
	lines := strings.Split(string(content), "\n")
	step := fallbackChunkLines - fallbackOverlapLines

	for start := 0; start < len(lines); start += step {
		end := start + fallbackChunkLines
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		embedText := truncate(body, fallbackBlockChars)

		chunkID := models.ComputeChunkID(relPath, start, end, body)
		vec, err := ix.embedText(embedText)
		if err != nil {
			return err
		}

		c := &models.Chunk{
			ChunkID:     chunkID,
			SourceID:    relPath,
			SourceType:  models.ChunkSourceCodebase,
			Content:     embedText,
			Metadata:    map[string]any{"project_path": projectRoot, "language": "text"},
			Embedding:   vec,
			StartOffset: start,
			EndOffset:   end,
		}
		if err := ix.chunks.Upsert("codebase", c, sha256Hex(body)); err != nil {
			return err
		}
		if end >= len(lines) {
			break
		}
	}
	return nil
}

func (ix *CodebaseIndexer) embedText(text string) ([]float32, error) {
	if ix.embed == nil || !ix.embed.Available() {
		return nil, nil
	}
	return ix.embed.Embed(text, embedding.ContentCode)
}

// frameworkMarkers is the fixed dependency-name → framework heuristic
// table §4.2.2's per-project metadata draws framework detection from.
var frameworkMarkers = map[string]string{
	"django": "Django", "flask": "Flask", "fastapi": "FastAPI",
	"express": "Express", "react": "React", "vue": "Vue", "@angular/core": "Angular",
	"gin-gonic/gin": "Gin", "labstack/echo": "Echo", "gofiber/fiber": "Fiber",
	"rails": "Rails", "spring-boot": "Spring Boot",
}

// buildProjectMetadata computes §4.2.2's per-project summary: the language
// distribution gathered during the walk, manifest-parsed dependencies, and
// any framework heuristics those dependencies trip.
func buildProjectMetadata(root string, languageCounts map[string]int) *models.ProjectMetadata {
	deps := parseManifests(root)

	var frameworks []string
	seen := make(map[string]bool)
	for _, dep := range deps {
		lower := strings.ToLower(dep)
		for marker, framework := range frameworkMarkers {
			if strings.Contains(lower, marker) && !seen[framework] {
				frameworks = append(frameworks, framework)
				seen[framework] = true
			}
		}
	}

	return &models.ProjectMetadata{
		Path:                 root,
		Name:                 filepath.Base(root),
		LanguageDistribution: languageCounts,
		Dependencies:         deps,
		Frameworks:           frameworks,
		UpdatedAt:            time.Now().UTC(),
	}
}

// parseManifests best-effort-parses the manifest files §4.2.2 names
// ("dependencies (from manifest parsing)") for the project's declared
// dependency names: go.mod require lines, package.json's "dependencies"/
// "devDependencies" keys, and requirements.txt lines.
func parseManifests(root string) []string {
	var deps []string
	if lines, err := readLines(filepath.Join(root, "go.mod")); err == nil {
		inRequire := false
		for _, line := range lines {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "require ("):
				inRequire = true
			case line == ")":
				inRequire = false
			case strings.HasPrefix(line, "require "):
				if f := strings.Fields(strings.TrimPrefix(line, "require ")); len(f) > 0 {
					deps = append(deps, f[0])
				}
			case inRequire:
				if f := strings.Fields(line); len(f) > 0 && !strings.HasPrefix(f[0], "//") {
					deps = append(deps, f[0])
				}
			}
		}
	}
	if lines, err := readLines(filepath.Join(root, "requirements.txt")); err == nil {
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			name := strings.FieldsFunc(line, func(r rune) bool {
				return r == '=' || r == '<' || r == '>' || r == '~' || r == '!' || r == ';'
			})
			if len(name) > 0 {
				deps = append(deps, strings.TrimSpace(name[0]))
			}
		}
	}
	deps = append(deps, parsePackageJSONDependencyNames(filepath.Join(root, "package.json"))...)
	return deps
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// parsePackageJSONDependencyNames pulls dependency names out of
// package.json's "dependencies"/"devDependencies" blocks with a line scan
// rather than a full JSON parse, since only the key names are needed and
// the file may not otherwise validate against a strict schema.
func parsePackageJSONDependencyNames(path string) []string {
	lines, err := readLines(path)
	if err != nil {
		return nil
	}
	var deps []string
	inDeps := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, `"dependencies"`) || strings.Contains(trimmed, `"devDependencies"`) {
			inDeps = true
			continue
		}
		if inDeps {
			if strings.HasPrefix(trimmed, "}") {
				inDeps = false
				continue
			}
			if idx := strings.Index(trimmed, `":`); idx > 0 && strings.HasPrefix(trimmed, `"`) {
				deps = append(deps, trimmed[1:idx])
			}
		}
	}
	return deps
}
