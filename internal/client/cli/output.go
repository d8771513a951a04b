package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/gohs/pkg/query"
)

// printer writes command results as text or JSON.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) *printer {
	return &printer{format: opts.Format, w: w}
}

// tty reports whether output goes to a terminal.
func (p *printer) tty() bool {
	f, ok := p.w.(*os.File)
	return ok && isTerminal(int(f.Fd()))
}

// value prints a single result.
func (p *printer) value(key string, v any) error {
	if p.format == "json" {
		return json.NewEncoder(p.w).Encode(map[string]any{key: v})
	}
	switch t := v.(type) {
	case []byte:
		_, err := p.w.Write(t)
		if err == nil && p.tty() {
			_, err = fmt.Fprintln(p.w)
		}
		return err
	default:
		_, err := fmt.Fprintln(p.w, t)
		return err
	}
}

// result prints the rows of res; the text header only goes to terminals.
func (p *printer) result(res query.Result) error {
	if p.format == "json" {
		records := res.Records()
		if records == nil {
			records = []map[string]string{}
		}
		return json.NewEncoder(p.w).Encode(records)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	if p.tty() {
		fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	}
	for _, row := range res.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
