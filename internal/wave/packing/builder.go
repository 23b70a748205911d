// Package packing produces the packing list of completed outbound waves.
package packing

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/AlekseyRodimkin/warehouse/internal/wave"
)

const (
	// Unit is the counting unit printed on every line.
	Unit = "шт"
	// noteLimit is the number of description runes kept on a line.
	noteLimit = 48
)

// Line is one row of the packing list table.
type Line struct {
	Code     string
	Unit     string
	Quantity int64
	WeightG  int64
	Note     string
}

// Document is the packing list view model.
type Document struct {
	Number      string
	Sender      string
	Recipient   string
	NetWeightKg decimal.Decimal
	Date        time.Time
	Lines       []Line
}

// NetWeight formats the net weight with one decimal.
func (d Document) NetWeight() string {
	return d.NetWeightKg.StringFixed(1)
}

// FileName is the stored name of the rendered document.
func (d Document) FileName() string {
	return FileName(d.Number)
}

// FileName returns PACK_<number>.pdf.
func FileName(number string) string {
	return "PACK_" + number + ".pdf"
}

var legalForm = regexp.MustCompile(`(?i)^(ООО|ЗАО|ОАО|АО|ПАО|ИП|НОУ|ГОУ|МУП|ГУП|ФГУП|НКО|ТСЖ|ЖСК)\s+(.+)$`)

// NormalizeRecipient upper-cases a leading legal form and quotes the company
// name: "ооо Ромашка" becomes "ООО «Ромашка»". Other names are only trimmed.
func NormalizeRecipient(recipient string) string {
	recipient = strings.TrimSpace(recipient)
	m := legalForm.FindStringSubmatch(recipient)
	if m == nil {
		return recipient
	}
	name := strings.TrimSpace(m[2])
	if strings.HasPrefix(name, "«") || strings.HasPrefix(name, `"`) {
		return strings.ToUpper(m[1]) + " " + name
	}
	return strings.ToUpper(m[1]) + " «" + name + "»"
}

// ShortNote truncates long descriptions to 48 characters followed by "...".
func ShortNote(description string) string {
	if utf8.RuneCountInString(description) < noteLimit {
		return description
	}
	return string([]rune(description)[:noteLimit]) + "..."
}

// Build assembles the packing list of w. The net weight sums quantity times
// unit weight in grams and is reported in kilograms.
func Build(w wave.Wave, items []wave.Item, companyName string, now time.Time) Document {
	doc := Document{
		Number:    w.Number,
		Sender:    companyName,
		Recipient: NormalizeRecipient(wave.NormalizeParty(w.Party)),
		Date:      now,
		Lines:     make([]Line, 0, len(items)),
	}
	grams := decimal.Zero
	for _, it := range items {
		var weight int64
		if it.Weight != nil {
			weight = *it.Weight
		}
		grams = grams.Add(decimal.NewFromInt(weight).Mul(decimal.NewFromInt(it.Quantity)))
		doc.Lines = append(doc.Lines, Line{
			Code:     it.ItemCode,
			Unit:     Unit,
			Quantity: it.Quantity,
			WeightG:  weight,
			Note:     ShortNote(it.Description),
		})
	}
	doc.NetWeightKg = grams.Div(decimal.NewFromInt(1000))
	return doc
}
