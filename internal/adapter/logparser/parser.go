package logparser

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iho/balanceaudit/internal/domain"
)

var (
	timestampRe  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z)\s`)
	blockStartRe = regexp.MustCompile(`(?i)Start syncing the balance\s*\{`)
	processMsgRe = regexp.MustCompile(`(?i)INFO\s+Processing message\s+([a-f0-9-]{36})`)
	skipRe       = regexp.MustCompile(`(?i)Skipping the balance sync for create subscription`)
	kvLineRe     = regexp.MustCompile(`^\s*([A-Za-z_]\w*)\s*:\s*(.+?)(?:,)?\s*$`)
	txObjectRe   = regexp.MustCompile(`(?i)transaction\s*:\s*\{`)
)

var gzipMagic = []byte{0x1f, 0x8b}

// Parser recovers raw balance-sync records from application log files. It
// implements usecase.RecordSource.
type Parser struct {
	dir    string
	logger zerolog.Logger
}

// New creates a Parser over a log directory.
func New(dir string, logger zerolog.Logger) *Parser {
	return &Parser{dir: dir, logger: logger}
}

// Records walks the directory for .log/.txt/.gz files and extracts one
// RawRecord per balance-sync block or skip marker. An unreadable file is
// logged and skipped; only an unwalkable directory fails the run.
func (p *Parser) Records(ctx context.Context) ([]domain.RawRecord, error) {
	root, err := filepath.Abs(p.dir)
	if err != nil {
		return nil, err
	}

	var records []domain.RawRecord
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !candidateFile(entry.Name()) {
			return nil
		}

		fileRecords, err := p.parseFile(path)
		if err != nil {
			p.logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable log file")
			return nil
		}
		records = append(records, fileRecords...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	p.logger.Info().Int("records", len(records)).Str("dir", root).Msg("logs parsed")
	return records, nil
}

func candidateFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".log", ".txt", ".gz":
		return true
	default:
		return false
	}
}

func (p *Parser) parseFile(path string) ([]domain.RawRecord, error) {
	reader, closeFn, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var records []domain.RawRecord
	var lastMessageID string

	for i := 0; i < len(lines); {
		line := lines[i]

		var timestamp string
		if m := timestampRe.FindStringSubmatch(line); m != nil {
			timestamp = m[1]
		}

		if m := processMsgRe.FindStringSubmatch(line); m != nil {
			lastMessageID = m[1]
		}

		if skipRe.MatchString(line) {
			records = append(records, domain.RawRecord{
				File:      path,
				Line:      i + 1,
				EventType: domain.RawEventSkip,
				MessageID: lastMessageID,
				Timestamp: timestamp,
			})
			i++
			continue
		}

		if blockStartRe.MatchString(line) {
			block := []string{line}
			depth := 1
			j := i + 1
			for j < len(lines) && depth > 0 {
				block = append(block, lines[j])
				depth += strings.Count(lines[j], "{")
				depth -= strings.Count(lines[j], "}")
				j++
			}

			if fields := parseTransactionBlock(block); len(fields) > 0 {
				records = append(records, domain.RawRecord{
					File:      path,
					Line:      i + 1,
					EventType: domain.RawEventBalanceSync,
					MessageID: lastMessageID,
					Timestamp: timestamp,
					Fields:    fields,
				})
			}
			i = j
			continue
		}

		i++
	}

	return records, nil
}

// openMaybeGzip opens a file, sniffing the gzip magic bytes so compressed
// files without a .gz extension still decompress.
func openMaybeGzip(path string) (io.Reader, func(), error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	magic := make([]byte, 2)
	n, err := io.ReadFull(file, magic)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		file.Close()
		return nil, nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, nil, err
	}

	if n == 2 && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, err
		}
		return gz, func() { gz.Close(); file.Close() }, nil
	}

	return file, func() { file.Close() }, nil
}

// parseTransactionBlock extracts the balanced `transaction: { ... }` object
// from the collected block and parses its flat key: value lines. Scanning to
// the matching brace keeps it robust to braces inside quoted metadata.
func parseTransactionBlock(lines []string) map[string]any {
	content := strings.Join(lines, "\n")

	loc := txObjectRe.FindStringIndex(content)
	if loc == nil {
		return nil
	}

	start := strings.Index(content[loc[0]:], "{")
	if start == -1 {
		return nil
	}
	start += loc[0]

	depth := 0
	end := -1
	for idx := start; idx < len(content); idx++ {
		switch content[idx] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = idx
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		// Unbalanced block; fail gracefully.
		return nil
	}

	fields := make(map[string]any)
	for _, line := range strings.Split(content[start+1:end], "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		m := kvLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[2]), ","))
		fields[m[1]] = coerceScalar(raw)
	}
	return fields
}

// coerceScalar turns a raw value string into the loosest sensible Go type.
func coerceScalar(raw string) any {
	v := strings.TrimSpace(raw)

	if len(v) >= 2 {
		if (v[0] == '\'' && v[len(v)-1] == '\'') || (v[0] == '"' && v[len(v)-1] == '"') {
			return v[1 : len(v)-1]
		}
	}

	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}

	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}

	return v
}
