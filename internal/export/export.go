package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/yourorg/avail-checker/internal/storage"
	"github.com/yourorg/avail-checker/internal/types"
)

const (
	SheetName   = "Dominios Disponíveis"
	FileName    = "dominios_disponiveis.xlsx"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []any{"Coluna A", "Dominio"}

// WriteXLSX writes the available set as a single-sheet workbook.
func WriteXLSX(w io.Writer, items []types.DomainItem) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, it := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, []any{it.Label, it.Domain}); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

// Publisher writes a run's available set under a base URI (file:// or s3://).
type Publisher struct {
	store   storage.ObjectStore
	baseURI string
}

func NewPublisher(store storage.ObjectStore, baseURI string) *Publisher {
	return &Publisher{store: store, baseURI: strings.TrimSuffix(baseURI, "/")}
}

// Publish uploads <baseURI>/<runID>.xlsx and returns its URI.
func (p *Publisher) Publish(ctx context.Context, runID string, items []types.DomainItem) (string, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, items); err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}
	uri := p.baseURI + "/" + runID + ".xlsx"
	return p.store.Put(ctx, uri, &buf)
}
