package bankfile

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
)

// Confirmation column keys, after header normalisation.
const (
	colEmail         = "email"
	colTransactionID = "transactionid"
	colUTR           = "utr"
	colPaymentDate   = "paymentdate"
)

var headerAliases = map[string]string{
	"email":         colEmail,
	"investoremail": colEmail,
	"transactionid": colTransactionID,
	"txnid":         colTransactionID,
	"utr":           colUTR,
	"utrnumber":     colUTR,
	"paymentdate":   colPaymentDate,
	"date":          colPaymentDate,
}

var paymentDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
}

// ConfirmationHeader is the canonical header of a confirmation file.
func ConfirmationHeader() []string {
	return []string{"email", "transaction_id", "utr", "payment_date"}
}

// ReadConfirmations parses a payment confirmation CSV. The header row is required and must
// contain an email column; matching ignores case, spaces, underscores and hyphens. Unknown
// columns are ignored and missing optional columns read as empty.
//
// Rows that cannot be parsed are returned as row errors alongside the good rows; only a
// missing or unusable header, or an I/O failure, aborts the read. Row numbers are file line
// numbers, so the first data row is row 2.
func ReadConfirmations(r io.Reader) ([]model.PaymentConfirmation, []model.ImportRowError, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: header row is required", apperrors.ErrInvalidCSVHeaders)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidCSVHeaders, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		if key, ok := headerAliases[normaliseHeader(h)]; ok {
			if _, dup := index[key]; !dup {
				index[key] = i
			}
		}
	}
	if _, ok := index[colEmail]; !ok {
		return nil, nil, fmt.Errorf("%w: missing required column %q", apperrors.ErrInvalidCSVHeaders, "email")
	}

	var rows []model.PaymentConfirmation
	var rowErrs []model.ImportRowError
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			rowErrs = append(rowErrs, model.ImportRowError{Row: parseErr.StartLine, Reason: parseErr.Err.Error()})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read confirmations: %w", err)
		}
		line, _ := reader.FieldPos(0)

		get := func(key string) string {
			i, ok := index[key]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		c := model.PaymentConfirmation{
			Row:           line,
			Email:         get(colEmail),
			TransactionID: get(colTransactionID),
			UTR:           get(colUTR),
		}
		if c.Email == "" && c.TransactionID == "" && c.UTR == "" && get(colPaymentDate) == "" {
			continue
		}
		if c.Email == "" {
			rowErrs = append(rowErrs, model.ImportRowError{Row: line, Reason: "email is required"})
			continue
		}
		if raw := get(colPaymentDate); raw != "" {
			d, err := parsePaymentDate(raw)
			if err != nil {
				rowErrs = append(rowErrs, model.ImportRowError{Row: line, Email: c.Email, Reason: err.Error()})
				continue
			}
			c.PaymentDate = &d
		}
		rows = append(rows, c)
	}

	return rows, rowErrs, nil
}

// WriteConfirmationTemplate writes the confirmation header followed by one row per email,
// for operators to fill in.
func WriteConfirmationTemplate(w io.Writer, emails []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ConfirmationHeader()); err != nil {
		return err
	}
	for _, e := range emails {
		if err := cw.Write([]string{e, "", "", ""}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func normaliseHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parsePaymentDate(s string) (time.Time, error) {
	for _, layout := range paymentDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid payment_date %q", s)
}
