package converter

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/spreadsheet"
	"github.com/unidoc/unioffice/spreadsheet/reference"
	"go.uber.org/zap"
)

// licenseOnce guards the process-wide unioffice license registration.
var (
	licenseOnce sync.Once
	licenseErr  error
)

func activateLicense(key string) error {
	licenseOnce.Do(func() {
		licenseErr = license.SetMeteredKey(key)
	})
	return licenseErr
}

// Office extracts text from docx and tables from xlsx. It needs a unioffice
// license key and stays unregistered without one.
type Office struct {
	key    string
	logger *logger.Logger
}

func NewOffice(cfg *Config, log *logger.Logger) *Office {
	return &Office{key: cfg.UniofficeLicenseKey, logger: log.Named("office")}
}

func (c *Office) Name() string { return "office" }

func (c *Office) InputFormats() []string { return []string{"docx", "xlsx"} }

func (c *Office) OutputFormats() []string {
	return []string{"csv", "html", "json", "md", "txt", "yaml"}
}

func (c *Office) CompatibleWith(format string) []string {
	switch Normalize(format) {
	case "docx":
		return []string{"html", "md", "txt"}
	case "xlsx":
		return []string{"csv", "json", "yaml"}
	}
	return nil
}

func (c *Office) Available() bool {
	if c.key == "" {
		return false
	}
	if err := activateLicense(c.key); err != nil {
		c.logger.Warn("unioffice license rejected", zap.Error(err))
		return false
	}
	return true
}

func (c *Office) Convert(ctx context.Context, job Job) ([]string, error) {
	if err := check(c, job); err != nil {
		return nil, err
	}

	out := outputPath(job)
	var err error
	if Normalize(job.InputFormat) == "docx" {
		err = c.convertDocx(job, out)
	} else {
		err = c.convertXlsx(ctx, job, out)
	}
	if err != nil {
		return nil, failed(c.Name(), err)
	}
	return []string{out}, nil
}

func (c *Office) convertDocx(job Job, out string) error {
	doc, err := document.Open(job.InputPath)
	if err != nil {
		return fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	format := Normalize(job.OutputFormat)
	var b strings.Builder
	for _, para := range doc.Paragraphs() {
		var text strings.Builder
		for _, run := range para.Runs() {
			text.WriteString(run.Text())
		}
		line := text.String()
		level := headingLevel(para.Style())

		switch format {
		case "txt":
			b.WriteString(line)
			b.WriteString("\n")
		case "md":
			if strings.TrimSpace(line) == "" {
				b.WriteString("\n")
				continue
			}
			if level > 0 {
				b.WriteString(strings.Repeat("#", level) + " ")
			}
			b.WriteString(line)
			b.WriteString("\n\n")
		case "html":
			if strings.TrimSpace(line) == "" {
				continue
			}
			tag := "p"
			if level > 0 {
				tag = fmt.Sprintf("h%d", level)
			}
			fmt.Fprintf(&b, "<%s>%s</%s>\n", tag, html.EscapeString(line), tag)
		}
	}

	content := b.String()
	if format == "html" {
		title := strings.TrimSuffix(filepath.Base(job.InputPath), filepath.Ext(job.InputPath))
		content = htmlPage(title, content)
	}
	return os.WriteFile(out, []byte(content), 0o640)
}

// headingLevel maps Word's "Heading1".."Heading6" and "Title" styles.
func headingLevel(style string) int {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if s == "title" {
		return 1
	}
	if strings.HasPrefix(s, "heading") && len(s) == len("heading")+1 {
		if n := int(s[len(s)-1] - '0'); n >= 1 && n <= 6 {
			return n
		}
	}
	return 0
}

// convertXlsx exports the first sheet; its first row is the header.
func (c *Office) convertXlsx(ctx context.Context, job Job, out string) error {
	wb, err := spreadsheet.Open(job.InputPath)
	if err != nil {
		return fmt.Errorf("open xlsx: %w", err)
	}
	defer wb.Close()

	sheets := wb.Sheets()
	if len(sheets) == 0 {
		return fmt.Errorf("workbook has no sheets")
	}

	var records [][]string
	for _, row := range sheets[0].Rows() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec []string
		for _, cell := range row.Cells() {
			col, err := cell.Column()
			if err != nil {
				continue
			}
			idx := int(reference.ColumnToIndex(col))
			for len(rec) <= idx {
				rec = append(rec, "")
			}
			rec[idx] = cell.GetFormattedValue()
		}
		records = append(records, rec)
	}

	t := fromStrings(records)
	return writeFile(out, func(f *os.File) error {
		return t.write(f, Normalize(job.OutputFormat))
	})
}
