// Package importer turns uploaded XLSX or CSV sheets into profile field sets.
// The first non-empty row is the header. Known columns map onto profile
// fields; any other non-empty cell is carried as metadata.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"esim-service/internal/model"

	"github.com/xuri/excelize/v2"
)

// MaxRows bounds a single import
const MaxRows = 1000

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoRows            = errors.New("no rows found in file")
	ErrTooManyRows       = fmt.Errorf("an import holds at most %d rows", MaxRows)
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Row is one data row with its 1-based line in the sheet
type Row struct {
	Line   int
	Fields model.ProfileFields
}

type column int

const (
	colMetadata column = iota
	colDisplayName
	colDescription
	colProvider
	colActivationCode
	colSMDPServerURL
	colDeviceID
)

var headerAliases = map[string]column{
	"displayname":    colDisplayName,
	"name":           colDisplayName,
	"description":    colDescription,
	"provider":       colProvider,
	"carrier":        colProvider,
	"activationcode": colActivationCode,
	"code":           colActivationCode,
	"smdpserverurl":  colSMDPServerURL,
	"smdpurl":        colSMDPServerURL,
	"smdp":           colSMDPServerURL,
	"deviceid":       colDeviceID,
	"device":         colDeviceID,
}

// Parse reads the sheet in payload; the format is chosen by fileName's extension
func Parse(fileName string, payload []byte) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv":
		records, err = readCSV(payload)
	case ".xlsx":
		records, err = readExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return toRows(records)
}

func readCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

func toRows(records [][]string) ([]Row, error) {
	headerIndex := -1
	for i, record := range records {
		if !blank(record) {
			headerIndex = i
			break
		}
	}
	if headerIndex < 0 {
		return nil, ErrNoRows
	}

	header := records[headerIndex]
	columns := make([]column, len(header))
	names := make([]string, len(header))
	for i, raw := range header {
		names[i] = strings.TrimSpace(raw)
		columns[i] = headerAliases[normalizeHeader(raw)]
	}

	var rows []Row
	for i := headerIndex + 1; i < len(records); i++ {
		record := records[i]
		if blank(record) {
			continue
		}
		if len(rows) == MaxRows {
			return nil, ErrTooManyRows
		}
		rows = append(rows, Row{Line: i + 1, Fields: rowFields(record, columns, names)})
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}

func rowFields(record []string, columns []column, names []string) model.ProfileFields {
	var fields model.ProfileFields
	for i, cell := range record {
		if i >= len(columns) {
			break
		}
		value := strings.TrimSpace(cell)
		switch columns[i] {
		case colDisplayName:
			fields.DisplayName = value
		case colDescription:
			fields.Description = value
		case colProvider:
			fields.Provider = value
		case colActivationCode:
			fields.ActivationCode = value
		case colSMDPServerURL:
			fields.SMDPServerURL = value
		case colDeviceID:
			fields.DeviceID = value
		default:
			if value == "" || names[i] == "" {
				continue
			}
			if fields.Metadata == nil {
				fields.Metadata = map[string]string{}
			}
			fields.Metadata[names[i]] = value
		}
	}
	return fields
}

// normalizeHeader folds "SM-DP+ Server URL", "smdp_server_url" and
// "smdpServerUrl" onto the same key
func normalizeHeader(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
