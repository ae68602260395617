// Package statement reads bank-statement exports into raw transactions.
package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-matcher/internal/domain/extract"
	"github.com/eshaffer321/invoice-matcher/internal/domain/ledger"
)

// Columns maps statement headers to transaction fields. Header lookup
// ignores case and accents. When Amount is absent from the file, the signed amount
// is Credit minus Debit.
type Columns struct {
	Delimiter rune
	Date      string
	Reference string
	Label     string
	Amount    string
	Debit     string
	Credit    string
	Detail    string
}

// DefaultColumns matches the usual French bank export
func DefaultColumns() Columns {
	return Columns{
		Delimiter: ';',
		Date:      "date",
		Reference: "reference",
		Label:     "libelle",
		Amount:    "montant",
		Debit:     "debit",
		Credit:    "credit",
		Detail:    "detail",
	}
}

// ErrMissingColumn is returned when a required header is absent
var ErrMissingColumn = errors.New("missing statement column")

// CSVReader parses delimited statements
type CSVReader struct {
	columns Columns
}

// NewCSVReader creates a reader. Empty fields in columns take the defaults.
func NewCSVReader(columns Columns) *CSVReader {
	d := DefaultColumns()
	if columns.Delimiter == 0 {
		columns.Delimiter = d.Delimiter
	}
	if columns.Date == "" {
		columns.Date = d.Date
	}
	if columns.Reference == "" {
		columns.Reference = d.Reference
	}
	if columns.Label == "" {
		columns.Label = d.Label
	}
	if columns.Amount == "" {
		columns.Amount = d.Amount
	}
	if columns.Debit == "" {
		columns.Debit = d.Debit
	}
	if columns.Credit == "" {
		columns.Credit = d.Credit
	}
	if columns.Detail == "" {
		columns.Detail = d.Detail
	}
	return &CSVReader{columns: columns}
}

// ReadFile parses the statement at path
func (r *CSVReader) ReadFile(path string) ([]ledger.RawTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement %s: %w", path, err)
	}
	defer file.Close()

	txs, err := r.Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return txs, nil
}

// Read parses a statement. Blank references are replaced by the line
// number and duplicates get a "#n" suffix, so every reference is unique.
func (r *CSVReader) Read(in io.Reader) ([]ledger.RawTransaction, error) {
	reader := csv.NewReader(in)
	reader.Comma = r.columns.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []ledger.RawTransaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idx := indexHeader(header)
	col := func(name string) int {
		if i, ok := idx[headerKey(name)]; ok {
			return i
		}
		return -1
	}

	dateCol := col(r.columns.Date)
	labelCol := col(r.columns.Label)
	amountCol := col(r.columns.Amount)
	debitCol := col(r.columns.Debit)
	creditCol := col(r.columns.Credit)
	refCol := col(r.columns.Reference)
	detailCol := col(r.columns.Detail)

	if dateCol < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, r.columns.Date)
	}
	if labelCol < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, r.columns.Label)
	}
	if amountCol < 0 && debitCol < 0 && creditCol < 0 {
		return nil, fmt.Errorf("%w: %q or %q/%q", ErrMissingColumn, r.columns.Amount, r.columns.Debit, r.columns.Credit)
	}

	transactions := make([]ledger.RawTransaction, 0)
	refs := newReferenceSet()
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record: %w", err)
		}
		line, _ := reader.FieldPos(0)

		tx := ledger.RawTransaction{
			Date:      field(record, dateCol),
			Reference: field(record, refCol),
			Label:     field(record, labelCol),
			Detail:    field(record, detailCol),
		}
		if amountCol >= 0 {
			tx.Amount = field(record, amountCol)
		} else {
			tx.Amount = signedAmount(field(record, debitCol), field(record, creditCol))
		}

		if tx.Reference == "" {
			tx.Reference = fmt.Sprintf("L%d", line)
		}
		tx.Reference = refs.claim(tx.Reference)

		transactions = append(transactions, tx)
	}
	return transactions, nil
}

// referenceSet hands out unique references. A repeated reference gets the
// first free "#n" suffix, skipping references already handed out.
type referenceSet struct {
	used map[string]bool
	next map[string]int
}

func newReferenceSet() *referenceSet {
	return &referenceSet{used: make(map[string]bool), next: make(map[string]int)}
}

func (s *referenceSet) claim(ref string) string {
	if !s.used[ref] {
		s.used[ref] = true
		return ref
	}
	n := max(s.next[ref], 2)
	for s.used[fmt.Sprintf("%s#%d", ref, n)] {
		n++
	}
	s.next[ref] = n + 1
	unique := fmt.Sprintf("%s#%d", ref, n)
	s.used[unique] = true
	return unique
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := headerKey(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

var accents = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "à", "a", "â", "a",
	"ô", "o", "û", "u", "ù", "u", "î", "i", "ï", "i", "ç", "c",
)

// headerKey folds case and French accents so "Libellé" finds "libelle"
func headerKey(h string) string {
	return accents.Replace(strings.ToLower(strings.TrimSpace(h)))
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// signedAmount returns credit - debit, debits counted negative whatever
// their sign in the export. Unparsable input is passed through so the
// normalizer reports it.
func signedAmount(debit, credit string) string {
	if debit == "" && credit == "" {
		return ""
	}
	total := decimal.Zero
	if debit != "" {
		d, ok := extract.ParseAmount(debit)
		if !ok {
			return debit
		}
		total = total.Sub(d.Abs())
	}
	if credit != "" {
		c, ok := extract.ParseAmount(credit)
		if !ok {
			return credit
		}
		total = total.Add(c.Abs())
	}
	return total.StringFixed(2)
}
