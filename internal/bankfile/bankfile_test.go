package bankfile

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/apperrors"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRows() []model.BankBatchRow {
	return []model.BankBatchRow{
		{
			BeneficiaryName: "Asha Rao",
			AccountNumber:   "50100012345678",
			IFSC:            "HDFC0001234",
			BankName:        "HDFC Bank",
			Branch:          "Koramangala",
			Amount:          money.MustParse("4560000.00"),
			Reference:       "DIST-20260301-0A1B2C3D/alloc-1",
			Remark:          "Final sale proceeds, \"Orchid Towers\"",
		},
		{
			BeneficiaryName: "Vikram Shah",
			AccountNumber:   "000111222333",
			IFSC:            "ICIC0000001",
			BankName:        "ICICI Bank",
			Branch:          "Andheri",
			Amount:          money.MustParse("3040000.50"),
			Reference:       "DIST-20260301-0A1B2C3D/alloc-2",
			Remark:          "Final sale proceeds",
		},
	}
}

func TestWriteBankBatchCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBankBatchCSV(&buf, sampleRows()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"Beneficiary Name","Account Number","IFSC Code","Bank Name","Branch","Amount","Reference","Remark"`, lines[0])
	assert.Equal(t, `"Vikram Shah","000111222333","ICIC0000001","ICICI Bank","Andheri","3040000.50","DIST-20260301-0A1B2C3D/alloc-2","Final sale proceeds"`, lines[2])

	// round trips through a standard reader, embedded quotes included
	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, BankBatchHeader(), records[0])
	assert.Equal(t, "Final sale proceeds, \"Orchid Towers\"", records[1][7])
	assert.Equal(t, "4560000.00", records[1][5])
	assert.Equal(t, "000111222333", records[2][1], "leading zeros are kept")
}

func TestWriteBankBatchCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBankBatchCSV(&buf, nil))
	assert.Equal(t, 1, strings.Count(buf.String(), "\r\n"))
}

func TestWriteBankBatchXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBankBatchXLSX(&buf, "DIST-20260301-0A1B2C3D", sampleRows()))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("DIST-20260301-0A1B2C3D")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, BankBatchHeader(), rows[0])
	assert.Equal(t, "Asha Rao", rows[1][0])
	assert.Equal(t, "000111222333", rows[2][1])
	assert.Equal(t, "DIST-20260301-0A1B2C3D/alloc-2", rows[2][6])

	raw, err := f.GetCellValue("DIST-20260301-0A1B2C3D", "F3", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "3040000.50", raw)

	raw, err = f.GetCellValue("DIST-20260301-0A1B2C3D", "F2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "4560000.00", raw)
}

func TestWriteBankBatchXLSX_ExactAmounts(t *testing.T) {
	rows := sampleRows()[:1]
	// not representable as a binary float
	rows[0].Amount = money.MustParse("90071992547409.93")

	var buf bytes.Buffer
	require.NoError(t, WriteBankBatchXLSX(&buf, "", rows))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	raw, err := f.GetCellValue("Bank Batch", "F2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "90071992547409.93", raw)
}

func TestReadConfirmations(t *testing.T) {
	t.Run("parses rows with normalised headers and extra columns", func(t *testing.T) {
		in := "\xEF\xBB\xBFEmail,Transaction ID,UTR_Number,Payment-Date,Notes\n" +
			"asha@example.com,TXN-1,,2026-03-05,first\n" +
			"\"VIKRAM@example.com\",,UTR123,05/03/2026,\n"

		rows, rowErrs, err := ReadConfirmations(strings.NewReader(in))
		require.NoError(t, err)
		assert.Empty(t, rowErrs)
		require.Len(t, rows, 2)

		assert.Equal(t, 2, rows[0].Row)
		assert.Equal(t, "asha@example.com", rows[0].Email)
		assert.Equal(t, "TXN-1", rows[0].TransactionID)
		require.NotNil(t, rows[0].PaymentDate)
		assert.True(t, rows[0].PaymentDate.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)))

		assert.Equal(t, 3, rows[1].Row)
		assert.Equal(t, "UTR123", rows[1].UTR)
		assert.True(t, rows[1].PaymentDate.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("missing optional columns are empty", func(t *testing.T) {
		rows, rowErrs, err := ReadConfirmations(strings.NewReader("email\na@example.com\n"))
		require.NoError(t, err)
		assert.Empty(t, rowErrs)
		require.Len(t, rows, 1)
		assert.Empty(t, rows[0].TransactionID)
		assert.Nil(t, rows[0].PaymentDate)
	})

	t.Run("bad rows are reported without aborting", func(t *testing.T) {
		in := "email,transaction_id,payment_date\n" +
			",TXN-1,\n" +
			"b@example.com,TXN-2,yesterday\n" +
			",,\n" +
			"c@example.com,TXN-3,2026-03-05\n"

		rows, rowErrs, err := ReadConfirmations(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "c@example.com", rows[0].Email)
		assert.Equal(t, 5, rows[0].Row)

		require.Len(t, rowErrs, 2)
		assert.Equal(t, 2, rowErrs[0].Row)
		assert.Equal(t, "email is required", rowErrs[0].Reason)
		assert.Equal(t, 3, rowErrs[1].Row)
		assert.Equal(t, "b@example.com", rowErrs[1].Email)
	})

	t.Run("header without email is rejected", func(t *testing.T) {
		_, _, err := ReadConfirmations(strings.NewReader("utr,payment_date\nUTR1,2026-01-01\n"))
		require.ErrorIs(t, err, apperrors.ErrInvalidCSVHeaders)
	})

	t.Run("empty input is rejected", func(t *testing.T) {
		_, _, err := ReadConfirmations(strings.NewReader(""))
		require.ErrorIs(t, err, apperrors.ErrInvalidCSVHeaders)
	})
}

func TestWriteConfirmationTemplate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteConfirmationTemplate(&buf, []string{"a@example.com"}))

	rows, rowErrs, err := ReadConfirmations(&buf)
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, rows, 1)
	assert.Equal(t, "a@example.com", rows[0].Email)
}
