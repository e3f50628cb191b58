package exports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	devices "purifier-cloud/internal/devices/domain"
	telemetry "purifier-cloud/internal/telemetry/domain"
)

// BuildTelemetryXLSX renders a telemetry history workbook for one device.
func BuildTelemetryXLSX(deviceID string, records []telemetry.Record) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "telemetry"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Telemetry history: %s", deviceID))
	headers := []string{"Timestamp", "Temperature", "Humidity", "PM1", "PM2.5", "PM10", "VOC", "Sound", "WiFi RSSI", "Fan Speed", "Power"}
	for i, name := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		_ = f.SetCellValue(sheet, cell, name)
	}
	for i, rec := range records {
		row := i + 4
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), rec.Timestamp.Format(time.RFC3339))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), rec.Temperature)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), rec.Humidity)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), rec.PM1)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), rec.PM25)
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), rec.PM10)
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), rec.VOC)
		_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), rec.SoundLevel)
		_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", row), rec.WifiRSSI)
		_ = f.SetCellValue(sheet, fmt.Sprintf("J%d", row), rec.FanSpeed)
		_ = f.SetCellValue(sheet, fmt.Sprintf("K%d", row), rec.PowerState)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildFleetPDF renders a one-page fleet summary across device snapshots.
func BuildFleetPDF(snapshots []devices.Snapshot, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Device Fleet Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	online := 0
	for _, snap := range snapshots {
		if snap.Online {
			online++
		}
	}
	pdf.Cell(0, 6, fmt.Sprintf("Devices: %d (%d online)", len(snapshots), online))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Device", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Power", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Fan", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Online", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Last Seen", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, snap := range snapshots {
		lastSeen := ""
		if !snap.LastSeen.IsZero() {
			lastSeen = snap.LastSeen.Format(time.RFC3339)
		}
		pdf.CellFormat(50, 6, snap.DeviceID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, snap.PowerState, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", snap.FanSpeed), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%t", snap.Online), "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, lastSeen, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
