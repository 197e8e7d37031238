package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// ExcelSheetName is the worksheet holding the link table.
const ExcelSheetName = "links"

// excelHeaders is the column order of the link sheet. Reads locate columns
// by header name, so hand-edited workbooks may reorder them.
var excelHeaders = []string{
	"device_type",
	"device_id",
	"sensor_type",
	"sensor_id",
	"auto_on",
	"auto_off",
	"off_threshold_used",
	"enabled",
	"updated_at",
}

// ExcelLinkStore implements LinkStore on a single .xlsx workbook: a header
// row followed by one row per linked device.
//
// Writes edit only the rows keyed by the affected device ID. Rows the store
// cannot parse, columns it does not know and other worksheets are left as
// they are. The edited workbook is written to a temporary file in the same
// directory and renamed over the original, so a crash never leaves a
// half-written workbook. A missing workbook reads as an empty table.
type ExcelLinkStore struct {
	path   string
	mu     sync.Mutex
	logger Logger
}

// NewExcelLinkStore creates a link store for the workbook at path.
func NewExcelLinkStore(path string, logger Logger) *ExcelLinkStore {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ExcelLinkStore{path: path, logger: logger}
}

// Path returns the workbook location.
func (s *ExcelLinkStore) Path() string {
	return s.path
}

// LoadAll returns every well-formed row ordered by device ID. Malformed
// rows are logged and skipped.
func (s *ExcelLinkStore) LoadAll(ctx context.Context) ([]AutomationLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	links, err := s.read()
	if err != nil {
		return nil, err
	}
	return sortedLinks(links), nil
}

// Upsert rewrites the row for link.DeviceID in place, or appends one.
func (s *ExcelLinkStore) Upsert(ctx context.Context, link AutomationLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if link.UpdatedAt.IsZero() {
		link.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sheet, err := s.open(true)
	if err != nil {
		return err
	}
	defer sheet.f.Close()

	rows := sheet.rowsFor(link.DeviceID)
	if len(rows) == 0 {
		rows = []int{len(sheet.rows) + 1}
	}
	for _, row := range rows {
		if err := sheet.setLink(row, link); err != nil {
			return err
		}
	}
	return s.save(sheet.f)
}

// Remove deletes the rows for deviceID. A missing row is not an error.
func (s *ExcelLinkStore) Remove(ctx context.Context, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sheet, err := s.open(false)
	if err != nil || sheet == nil {
		return err
	}
	defer sheet.f.Close()

	rows := sheet.rowsFor(deviceID)
	if len(rows) == 0 {
		return nil
	}
	// Bottom up so earlier row numbers stay valid.
	for i := len(rows) - 1; i >= 0; i-- {
		if err := sheet.f.RemoveRow(ExcelSheetName, rows[i]); err != nil {
			return fmt.Errorf("removing row %d: %w", rows[i], err)
		}
	}
	return s.save(sheet.f)
}

// read loads the workbook into a map keyed by device ID.
func (s *ExcelLinkStore) read() (map[string]AutomationLink, error) {
	links := make(map[string]AutomationLink)

	sheet, err := s.open(false)
	if err != nil || sheet == nil {
		return links, err
	}
	defer sheet.f.Close()

	for i, cells := range sheet.rows[1:] {
		if blankRow(cells) {
			continue
		}
		link, err := parseExcelRow(cells, sheet.columns)
		if err != nil {
			s.logger.Warn("skipping malformed link row", "path", s.path, "row", i+2, "error", err)
			continue
		}
		links[link.DeviceID] = link
	}
	return links, nil
}

// linkSheet is an open workbook together with the parsed link sheet.
type linkSheet struct {
	f       *excelize.File
	rows    [][]string
	columns map[string]int
}

// open loads the workbook and locates the link sheet. Without create, a
// missing workbook, sheet or header yields a nil sheet. With create, they
// are made, and any known column absent from the header is appended to it.
func (s *ExcelLinkStore) open(create bool) (*linkSheet, error) { //nolint:gocognit,gocyclo // each missing piece is created separately
	f, err := excelize.OpenFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if !create {
			return nil, nil
		}
		f = excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), ExcelSheetName); err != nil {
			f.Close()
			return nil, fmt.Errorf("naming sheet: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("opening link workbook: %w", err)
	}

	sheet := &linkSheet{f: f}
	ok := false
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	index, err := f.GetSheetIndex(ExcelSheetName)
	if err != nil {
		return nil, fmt.Errorf("locating sheet %q: %w", ExcelSheetName, err)
	}
	if index < 0 {
		if !create {
			return nil, nil
		}
		if _, err := f.NewSheet(ExcelSheetName); err != nil {
			return nil, fmt.Errorf("adding sheet %q: %w", ExcelSheetName, err)
		}
	}

	sheet.rows, err = f.GetRows(ExcelSheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", ExcelSheetName, err)
	}
	if len(sheet.rows) == 0 {
		if !create {
			return nil, nil
		}
		if err := sheet.writeHeader(); err != nil {
			return nil, err
		}
	}

	sheet.columns, err = headerColumns(sheet.rows[0])
	if err != nil {
		return nil, err
	}
	if create {
		for _, h := range excelHeaders {
			if _, found := sheet.columns[h]; found {
				continue
			}
			col := len(sheet.rows[0])
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, fmt.Errorf("converting coordinates: %w", err)
			}
			if err := f.SetCellValue(ExcelSheetName, cell, h); err != nil {
				return nil, fmt.Errorf("adding column %q: %w", h, err)
			}
			sheet.rows[0] = append(sheet.rows[0], h)
			sheet.columns[h] = col
		}
	}

	ok = true
	return sheet, nil
}

// writeHeader fills row 1 of an empty link sheet.
func (ls *linkSheet) writeHeader() error {
	header := make([]any, len(excelHeaders))
	for i, h := range excelHeaders {
		header[i] = h
	}
	if err := ls.f.SetSheetRow(ExcelSheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	style, err := ls.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(excelHeaders), 1)
	if err != nil {
		return fmt.Errorf("converting coordinates: %w", err)
	}
	if err := ls.f.SetCellStyle(ExcelSheetName, "A1", last, style); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	ls.rows = [][]string{append([]string(nil), excelHeaders...)}
	return nil
}

// rowsFor returns the 1-based sheet rows whose device_id is deviceID,
// whether or not the rest of the row parses.
func (ls *linkSheet) rowsFor(deviceID string) []int {
	col := ls.columns["device_id"]
	var rows []int
	for i, cells := range ls.rows[1:] {
		if col < len(cells) && strings.TrimSpace(cells[col]) == deviceID {
			rows = append(rows, i+2)
		}
	}
	return rows
}

// setLink writes the known columns of row. Other cells are untouched.
func (ls *linkSheet) setLink(row int, l AutomationLink) error {
	values := map[string]any{
		"device_type":        string(l.DeviceType),
		"device_id":          l.DeviceID,
		"sensor_type":        string(l.SensorType),
		"sensor_id":          l.SensorID,
		"auto_on":            l.AutoOn,
		"auto_off":           l.AutoOff,
		"off_threshold_used": boolToInt(l.OffThresholdUsed),
		"enabled":            boolToInt(l.Enabled),
		"updated_at":         l.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for name, v := range values {
		cell, err := excelize.CoordinatesToCellName(ls.columns[name]+1, row)
		if err != nil {
			return fmt.Errorf("converting coordinates: %w", err)
		}
		if err := ls.f.SetCellValue(ExcelSheetName, cell, v); err != nil {
			return fmt.Errorf("writing %s of row %d: %w", name, row, err)
		}
	}
	return nil
}

// save writes the workbook to a temporary file and renames it over path.
func (s *ExcelLinkStore) save(f *excelize.File) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating workbook directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".automation-links-*.xlsx")
	if err != nil {
		return fmt.Errorf("creating temp workbook: %w", err)
	}
	tmpPath := tmp.Name()

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp workbook: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing workbook: %w", err)
	}
	return nil
}

// headerColumns maps each known header to its column index.
func headerColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"device_id", "sensor_id", "auto_on"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("link sheet is missing the %q column", required)
		}
	}
	return columns, nil
}

func parseExcelRow(cells []string, columns map[string]int) (AutomationLink, error) {
	get := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	link := AutomationLink{
		DeviceID:   get("device_id"),
		SensorID:   get("sensor_id"),
		DeviceType: device.Type(get("device_type")),
		SensorType: sensor.Type(get("sensor_type")),
		Enabled:    true,
	}
	if link.DeviceID == "" || link.SensorID == "" {
		return AutomationLink{}, errors.New("device_id and sensor_id are required")
	}

	var err error
	if link.AutoOn, err = strconv.ParseFloat(get("auto_on"), 64); err != nil {
		return AutomationLink{}, fmt.Errorf("auto_on: %w", err)
	}
	link.AutoOff = link.AutoOn
	if v := get("auto_off"); v != "" {
		if link.AutoOff, err = strconv.ParseFloat(v, 64); err != nil {
			return AutomationLink{}, fmt.Errorf("auto_off: %w", err)
		}
	}
	if v := get("off_threshold_used"); v != "" {
		if link.OffThresholdUsed, err = parseCellBool(v); err != nil {
			return AutomationLink{}, fmt.Errorf("off_threshold_used: %w", err)
		}
	}
	if v := get("enabled"); v != "" {
		if link.Enabled, err = parseCellBool(v); err != nil {
			return AutomationLink{}, fmt.Errorf("enabled: %w", err)
		}
	}
	if v := get("updated_at"); v != "" {
		link.UpdatedAt, _ = time.Parse(time.RFC3339, v) //nolint:errcheck // zero time is acceptable for hand-edited rows
	}
	return link, nil
}

// parseCellBool accepts 1/0 as written by the store, plus the spellings a
// person editing the sheet is likely to use.
func parseCellBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func sortedLinks(m map[string]AutomationLink) []AutomationLink {
	links := make([]AutomationLink, 0, len(m))
	for _, l := range m {
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].DeviceID < links[j].DeviceID })
	return links
}
