// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package edit implements the robust text-replacement matcher (C19):
// nine matching strategies, tried in priority order, so a model-proposed
// old_string still finds its target when indentation, whitespace, or
// escape sequences drift slightly from the real file content.
//
// Ported from original_source/graphweave/src/tools/file/edit_file.rs's
// nine-strategy replacer chain (itself a port of the opencode edit tool),
// and wired as a tool.Tool in the shape of the teacher's
// pkg/tool/filetool/search_replace.go (args struct, working-directory
// scoping, optional .bak backup) — that file is AGPL-3.0, so its structure
// is used for reference only; no text from it is reproduced here.
package edit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/loomstate/loomstate/pkg/llm"
	"github.com/loomstate/loomstate/pkg/tool"
)

// replacer returns every candidate substring of content that might match
// find, in the strategy's own notion of equivalence. The caller locates
// each candidate back in content with strings.Index/LastIndex.
type replacer func(content, find string) []string

var replacers = []replacer{
	simpleReplacer,
	lineTrimmedReplacer,
	blockAnchorReplacer,
	whitespaceNormalizedReplacer,
	indentationFlexibleReplacer,
	escapeNormalizedReplacer,
	trimmedBoundaryReplacer,
	contextAwareReplacer,
	multiOccurrenceReplacer,
}

// ErrNotFound and ErrAmbiguous are returned by Replace (wrapped, so
// errors.Is works against them).
var (
	ErrNotFound  = fmt.Errorf("old_string not found in content")
	ErrAmbiguous = fmt.Errorf("old_string matches multiple locations; provide more surrounding context or set replace_all")
	ErrNoop      = fmt.Errorf("old_string and new_string must differ")
)

// Replace substitutes oldString with newString in content, trying each
// strategy in turn until one yields a usable match. When replaceAll is
// false, a strategy's match is only accepted if it occurs exactly once in
// content; otherwise the next strategy is tried.
func Replace(content, oldString, newString string, replaceAll bool) (string, error) {
	if oldString == newString {
		return "", ErrNoop
	}

	found := false
	for _, r := range replacers {
		for _, search := range r(content, oldString) {
			idx := strings.Index(content, search)
			if idx < 0 {
				continue
			}
			found = true

			if replaceAll {
				return strings.ReplaceAll(content, search, newString), nil
			}

			if strings.LastIndex(content, search) != idx {
				continue // not unique, try the next candidate/strategy
			}
			return content[:idx] + newString + content[idx+len(search):], nil
		}
	}

	if found {
		return "", ErrAmbiguous
	}
	return "", ErrNotFound
}

// 1. simpleReplacer: exact substring match.
func simpleReplacer(_, find string) []string {
	return []string{find}
}

// 2. lineTrimmedReplacer: matches blocks where every line is equal after
// trimming leading/trailing whitespace.
func lineTrimmedReplacer(content, find string) []string {
	orig := strings.Split(content, "\n")
	search := strings.Split(find, "\n")
	if len(search) > 0 && search[len(search)-1] == "" {
		search = search[:len(search)-1]
	}
	if len(search) == 0 || len(search) > len(orig) {
		return nil
	}

	var results []string
	for i := 0; i+len(search) <= len(orig); i++ {
		match := true
		for j := range search {
			if strings.TrimSpace(orig[i+j]) != strings.TrimSpace(search[j]) {
				match = false
				break
			}
		}
		if match {
			results = append(results, strings.Join(orig[i:i+len(search)], "\n"))
		}
	}
	return results
}

const (
	singleCandidateSimilarityThreshold   = 0.0
	multipleCandidateSimilarityThreshold = 0.3
)

// 3. blockAnchorReplacer: anchors on first/last line, picks the best
// candidate block by Levenshtein similarity of the middle lines.
func blockAnchorReplacer(content, find string) []string {
	orig := strings.Split(content, "\n")
	search := strings.Split(find, "\n")
	if len(search) > 0 && search[len(search)-1] == "" {
		search = search[:len(search)-1]
	}
	if len(search) < 3 {
		return nil
	}

	first := strings.TrimSpace(search[0])
	last := strings.TrimSpace(search[len(search)-1])

	type span struct{ start, end int }
	var candidates []span
	for i := range orig {
		if strings.TrimSpace(orig[i]) != first {
			continue
		}
		for j := i + 2; j < len(orig); j++ {
			if strings.TrimSpace(orig[j]) == last {
				candidates = append(candidates, span{i, j})
				break
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	similarity := func(s span) float64 {
		actualSize := s.end - s.start + 1
		linesToCheck := len(search) - 2
		if actualSize-2 < linesToCheck {
			linesToCheck = actualSize - 2
		}
		if linesToCheck <= 0 {
			return 1.0
		}
		sum := 0.0
		limit := len(search) - 1
		if actualSize-1 < limit {
			limit = actualSize - 1
		}
		for j := 1; j < limit; j++ {
			a := strings.TrimSpace(orig[s.start+j])
			b := strings.TrimSpace(search[j])
			maxLen := len(a)
			if len(b) > maxLen {
				maxLen = len(b)
			}
			if maxLen == 0 {
				continue
			}
			sum += 1.0 - float64(levenshtein(a, b))/float64(maxLen)
		}
		return sum / float64(linesToCheck)
	}

	extract := func(s span) string {
		return strings.Join(orig[s.start:s.end+1], "\n")
	}

	if len(candidates) == 1 {
		if similarity(candidates[0]) >= singleCandidateSimilarityThreshold {
			return []string{extract(candidates[0])}
		}
		return nil
	}

	best, maxSim := span{}, -1.0
	for _, c := range candidates {
		if sim := similarity(c); sim > maxSim {
			maxSim, best = sim, c
		}
	}
	if maxSim >= multipleCandidateSimilarityThreshold {
		return []string{extract(best)}
	}
	return nil
}

func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 || len(br) == 0 {
		return max(len(ar), len(br))
	}
	prev := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		cur := make([]int, len(br)+1)
		cur[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	return min(a, min(b, c))
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// 4. whitespaceNormalizedReplacer: collapses whitespace runs to a single
// space on both sides before comparing, line by line and as a block.
func whitespaceNormalizedReplacer(content, find string) []string {
	normFind := normalizeWhitespace(find)
	lines := strings.Split(content, "\n")
	var results []string

	for _, line := range lines {
		if normalizeWhitespace(line) == normFind {
			results = append(results, line)
			continue
		}
		if strings.Contains(normalizeWhitespace(line), normFind) {
			words := strings.Fields(find)
			if len(words) == 0 {
				continue
			}
			escaped := make([]string, len(words))
			for i, w := range words {
				escaped[i] = regexp.QuoteMeta(w)
			}
			re, err := regexp.Compile(strings.Join(escaped, `\s+`))
			if err != nil {
				continue
			}
			if m := re.FindString(line); m != "" {
				results = append(results, m)
			}
		}
	}

	findLines := strings.Split(find, "\n")
	if len(findLines) > 1 {
		for i := 0; i+len(findLines) <= len(lines); i++ {
			block := strings.Join(lines[i:i+len(findLines)], "\n")
			if normalizeWhitespace(block) == normFind {
				results = append(results, block)
			}
		}
	}
	return results
}

func removeCommonIndent(text string) string {
	lines := strings.Split(text, "\n")
	min := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := len(l) - len(strings.TrimLeft(l, " \t"))
		if min == -1 || indent < min {
			min = indent
		}
	}
	if min <= 0 {
		return text
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			out[i] = l
			continue
		}
		if len(l) < min {
			out[i] = l
		} else {
			out[i] = l[min:]
		}
	}
	return strings.Join(out, "\n")
}

// 5. indentationFlexibleReplacer: strips each block's common leading
// indentation before comparing to find's.
func indentationFlexibleReplacer(content, find string) []string {
	normFind := removeCommonIndent(find)
	contentLines := strings.Split(content, "\n")
	findLines := strings.Split(find, "\n")

	var results []string
	for i := 0; i+len(findLines) <= len(contentLines); i++ {
		block := strings.Join(contentLines[i:i+len(findLines)], "\n")
		if removeCommonIndent(block) == normFind {
			results = append(results, block)
		}
	}
	return results
}

func unescapeString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '\\' || i == len(runes)-1 {
			sb.WriteRune(runes[i])
			continue
		}
		i++
		switch runes[i] {
		case 'n':
			sb.WriteRune('\n')
		case 't':
			sb.WriteRune('\t')
		case 'r':
			sb.WriteRune('\r')
		case '\'', '"', '`', '\\', '$':
			sb.WriteRune(runes[i])
		case '\n':
			sb.WriteRune('\n')
		default:
			sb.WriteRune('\\')
			sb.WriteRune(runes[i])
		}
	}
	return sb.String()
}

// 6. escapeNormalizedReplacer: unescapes \n, \t, \\, etc. in find before
// searching.
func escapeNormalizedReplacer(content, find string) []string {
	unescaped := unescapeString(find)
	var results []string
	if strings.Contains(content, unescaped) {
		results = append(results, unescaped)
	}

	lines := strings.Split(content, "\n")
	findLines := strings.Split(unescaped, "\n")
	for i := 0; i+len(findLines) <= len(lines); i++ {
		block := strings.Join(lines[i:i+len(findLines)], "\n")
		if unescapeString(block) == unescaped {
			results = append(results, block)
		}
	}
	return results
}

// 7. trimmedBoundaryReplacer: trims leading/trailing whitespace from find
// before searching.
func trimmedBoundaryReplacer(content, find string) []string {
	trimmed := strings.TrimSpace(find)
	if trimmed == find {
		return nil
	}

	var results []string
	if strings.Contains(content, trimmed) {
		results = append(results, trimmed)
	}

	lines := strings.Split(content, "\n")
	findLines := strings.Split(find, "\n")
	for i := 0; i+len(findLines) <= len(lines); i++ {
		block := strings.Join(lines[i:i+len(findLines)], "\n")
		if strings.TrimSpace(block) == trimmed {
			results = append(results, block)
		}
	}
	return results
}

// 8. contextAwareReplacer: anchors on first/last line, accepts the block
// spanning them when at least half the middle lines match.
func contextAwareReplacer(content, find string) []string {
	findLines := strings.Split(find, "\n")
	if len(findLines) > 0 && findLines[len(findLines)-1] == "" {
		findLines = findLines[:len(findLines)-1]
	}
	if len(findLines) < 3 {
		return nil
	}

	first := strings.TrimSpace(findLines[0])
	last := strings.TrimSpace(findLines[len(findLines)-1])
	contentLines := strings.Split(content, "\n")

	for i := range contentLines {
		if strings.TrimSpace(contentLines[i]) != first {
			continue
		}
		for j := i + 2; j < len(contentLines); j++ {
			if strings.TrimSpace(contentLines[j]) != last {
				continue
			}
			block := contentLines[i : j+1]
			if len(block) != len(findLines) {
				return nil
			}
			matching, total := 0, 0
			for k := 1; k < len(block)-1; k++ {
				bl := strings.TrimSpace(block[k])
				fl := strings.TrimSpace(findLines[k])
				if bl != "" || fl != "" {
					total++
					if bl == fl {
						matching++
					}
				}
			}
			if total == 0 || float64(matching)/float64(total) >= 0.5 {
				return []string{strings.Join(block, "\n")}
			}
			return nil
		}
		return nil
	}
	return nil
}

// 9. multiOccurrenceReplacer: yields one entry per exact occurrence,
// enabling replace_all to work even when no earlier strategy matched
// uniquely.
func multiOccurrenceReplacer(content, find string) []string {
	if find == "" {
		return nil
	}
	var results []string
	start := 0
	for {
		idx := strings.Index(content[start:], find)
		if idx < 0 {
			break
		}
		results = append(results, find)
		start += idx + len(find)
	}
	return results
}

// Args is the edit tool's input, matching the original "edit" tool's
// field names so LLM-authored tool calls from other examples in this
// domain transfer unchanged.
type Args struct {
	Path       string `json:"path" jsonschema:"required,description=File path relative to the working directory"`
	OldString  string `json:"old_string" jsonschema:"required,description=Exact text to find (must be unique unless replace_all is set)"`
	NewString  string `json:"new_string" jsonschema:"required,description=Replacement text"`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence instead of requiring a unique match"`
}

// Config configures the edit tool's filesystem scope and backup policy.
type Config struct {
	WorkingDirectory string
	CreateBackup     bool
}

// Tool is a tool.Tool that applies Replace to a file under
// Config.WorkingDirectory. An empty OldString creates (or overwrites) the
// file with NewString, matching the original edit tool's new-file
// semantics.
type Tool struct {
	cfg Config
}

// New builds the edit Tool. An empty cfg.WorkingDirectory defaults to the
// current directory.
func New(cfg Config) *Tool {
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = "."
	}
	return &Tool{cfg: cfg}
}

func (t *Tool) Name() string { return "edit" }

func (t *Tool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: "edit",
		Description: "Performs exact string replacements in files. old_string must be " +
			"unique in the file unless replace_all is set.",
		InputSchema: tool.SchemaOf(Args{}),
	}
}

func (t *Tool) Call(rawArgs map[string]any, _ *tool.CallContext) (tool.Result, error) {
	var args Args
	if err := tool.DecodeArgs(rawArgs, &args); err != nil {
		return tool.Result{}, &tool.SourceError{Kind: tool.ErrInvalidInput, Tool: t.Name(), Err: err}
	}

	fullPath, err := t.resolvePath(args.Path)
	if err != nil {
		return tool.Result{}, &tool.SourceError{Kind: tool.ErrInvalidInput, Tool: t.Name(), Err: err}
	}

	if args.OldString == "" {
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return tool.Result{}, &tool.SourceError{Kind: tool.ErrTransport, Tool: t.Name(), Err: err}
		}
		if err := os.WriteFile(fullPath, []byte(args.NewString), 0o644); err != nil {
			return tool.Result{}, &tool.SourceError{Kind: tool.ErrTransport, Tool: t.Name(), Err: err}
		}
		return tool.Result{Text: fmt.Sprintf("Created %s", args.Path)}, nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return tool.Result{}, &tool.SourceError{Kind: tool.ErrInvalidInput, Tool: t.Name(), Err: err}
	}

	replaced, err := Replace(string(content), args.OldString, args.NewString, args.ReplaceAll)
	if err != nil {
		return tool.Result{}, &tool.SourceError{Kind: tool.ErrInvalidInput, Tool: t.Name(), Err: err}
	}

	if t.cfg.CreateBackup {
		_ = os.WriteFile(fullPath+".bak", content, 0o644)
	}
	if err := os.WriteFile(fullPath, []byte(replaced), 0o644); err != nil {
		return tool.Result{}, &tool.SourceError{Kind: tool.ErrTransport, Tool: t.Name(), Err: err}
	}

	return tool.Result{Text: fmt.Sprintf("Edit applied to %s", args.Path)}, nil
}

func (t *Tool) resolvePath(path string) (string, error) {
	full := filepath.Join(t.cfg.WorkingDirectory, path)
	rel, err := filepath.Rel(t.cfg.WorkingDirectory, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes the working directory", path)
	}
	return full, nil
}

var _ tool.Tool = (*Tool)(nil)
