package consumer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

func TestNewSaveToExcel(t *testing.T) {
	_, err := NewSaveToExcel(map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, "invalid configuration: missing 'file_path'", err.Error())

	consumer, err := NewSaveToExcel(map[string]interface{}{"file_path": "report.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "report.xlsx", consumer.filePath)
}

func TestSaveToExcelProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customer360.xlsx")
	consumer, err := NewSaveToExcel(map[string]interface{}{"file_path": path})
	require.NoError(t, err)

	err = consumer.Process(context.Background(), datasetMessage())
	require.NoError(t, err)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")

	workbook, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer workbook.Close()

	assert.Equal(t, []string{
		TableEnriched, TablePredicted, TableSegmented, TableCampaigns, TableRuns,
	}, workbook.GetSheetList())

	cell := func(sheet, ref string) string {
		value, err := workbook.GetCellValue(sheet, ref)
		require.NoError(t, err)
		return value
	}

	assert.Equal(t, "customer_id", cell(TableEnriched, "A1"))
	assert.Equal(t, "C-1", cell(TableEnriched, "A2"))
	assert.Equal(t, "Lisbon", cell(TableEnriched, "B2"))
	assert.Equal(t, "C-2", cell(TableEnriched, "A3"))
	assert.Equal(t, "", cell(TableEnriched, "E3"), "missing signup date stays blank")
	assert.Equal(t, "430.5", cell(TableEnriched, "I2"))

	assert.Equal(t, "0.08", cell(TablePredicted, "B2"))
	assert.Equal(t, `{"recency_days":-0.8}`, cell(TablePredicted, "E2"))

	assert.Equal(t, "Champions", cell(TableSegmented, "C2"))
	assert.Equal(t, "At-Risk", cell(TableSegmented, "C3"))

	assert.Equal(t, "Spring", cell(TableCampaigns, "B2"))
	assert.Equal(t, "1000", cell(TableCampaigns, "D2"))

	assert.Equal(t, "run-42", cell(TableRuns, "A2"))
	assert.Equal(t, "FS", cell(TableRuns, "D2"))
	assert.Equal(t, "2", cell(TableRuns, "L2"))
}

func TestSaveToExcelProcessRejectsNonDataset(t *testing.T) {
	consumer, err := NewSaveToExcel(map[string]interface{}{"file_path": "unused.xlsx"})
	require.NoError(t, err)

	err = consumer.Process(context.Background(), processor.Message{Payload: []byte("raw")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected *Dataset payload")
}

func TestSegmentedRowsRendersNullCluster(t *testing.T) {
	dataset := materializedDataset()
	dataset.Segments = []processor.CustomerSegment{{
		CustomerID:   "C-9",
		ClusterID:    null.Int{},
		SegmentLabel: "Unsegmented",
	}}

	rows := segmentedRows(dataset)
	require.Len(t, rows, 1)
	assert.Equal(t, "C-9", rows[0][0])
	assert.Nil(t, rows[0][1], "null cluster renders as empty cell")
	assert.Equal(t, "Unsegmented", rows[0][2])
}
