package tickets

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"rueda/models"
)

// Entry is one accepted meeting as it appears on a schedule.
type Entry struct {
	Meeting models.MeetingRequest
	With    string
}

func (e Entry) start() models.Clock {
	if e.Meeting.TimeSlot == nil {
		return 0
	}
	return e.Meeting.TimeSlot.Start
}

// Schedule writes the participant's agenda, one row and one QR code per
// meeting, in time order.
func Schedule(w io.Writer, who models.Participant, entries []Entry, signer *Signer, now time.Time) error {
	entries = slices.Clone(entries)
	slices.SortFunc(entries, func(a, b Entry) int { return int(a.start() - b.start()) })

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Meeting schedule", true)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Meeting schedule")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 8, who.Label())
	pdf.Ln(12)

	if len(entries) == 0 {
		pdf.Cell(0, 8, "No meetings yet.")
	}

	const rowHeight = 34.0
	for i, e := range entries {
		if pdf.GetY()+rowHeight > 280 {
			pdf.AddPage()
		}
		y := pdf.GetY()

		when, table := "-", "-"
		if e.Meeting.TimeSlot != nil {
			when = e.Meeting.TimeSlot.String()
		}
		switch {
		case e.Meeting.TableName != "":
			table = e.Meeting.TableName
		case e.Meeting.TableAssigned != nil:
			table = fmt.Sprint(*e.Meeting.TableAssigned)
		}

		pdf.SetFont("Arial", "B", 12)
		pdf.Text(15, y+8, when)
		pdf.SetFont("Arial", "", 11)
		pdf.Text(15, y+15, "Table "+table)
		pdf.Text(15, y+22, "With "+e.With)

		png, err := qrcode.Encode(signer.Payload(e.Meeting.ID, who.UserID, now), qrcode.Medium, 256)
		if err != nil {
			return fmt.Errorf("qr for %s: %w", e.Meeting.ID, err)
		}
		name := fmt.Sprintf("qr%d", i)
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
		pdf.ImageOptions(name, 165, y, 30, 30, false, opts, 0, "")

		pdf.SetY(y + rowHeight)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render schedule: %w", err)
	}
	return pdf.Output(w)
}
